package store

import (
	"context"
	"database/sql"
	"time"

	"ChamaCore/internal/errs"
	"ChamaCore/internal/model"
)

// CreatePool registers a group pool with an opening balance. Creating an
// already-known group is a no-op.
func (s *Store) CreatePool(ctx context.Context, groupID string, balance int64) error {
	if balance < 0 {
		return errs.New(errs.CodeValidation, "opening balance %d is negative", balance)
	}
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_pools (group_id, balance, last_tx_at, updated_at)
		 VALUES (?,?,?,?) ON CONFLICT(group_id) DO NOTHING`,
		groupID, balance, now, now)
	return err
}

// GetPool returns the current pool state for a group.
func (s *Store) GetPool(ctx context.Context, groupID string) (*model.GroupPool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT group_id, balance, last_tx_at, updated_at FROM group_pools WHERE group_id = ?`,
		groupID)
	var p model.GroupPool
	var lastTx, updated int64
	if err := row.Scan(&p.GroupID, &p.Balance, &lastTx, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.New(errs.CodeNotFound, "group pool %s", groupID)
		}
		return nil, err
	}
	p.LastTxAt = time.Unix(lastTx, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return &p, nil
}

// ListGroupIDs returns every known group, for scheduled scans.
func (s *Store) ListGroupIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT group_id FROM group_pools ORDER BY group_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DebitAndInvest atomically decrements the pool balance and creates the
// investment record. Both effects happen or neither. The conditional update
// re-verifies the balance inside the transaction, so a stale creation-time
// snapshot can never drive the pool negative.
func (s *Store) DebitAndInvest(ctx context.Context, inv *model.Investment) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		now := time.Now().Unix()
		res, err := tx.ExecContext(ctx,
			`UPDATE group_pools SET balance = balance - ?, last_tx_at = ?, updated_at = ?
			 WHERE group_id = ? AND balance >= ?`,
			inv.PrincipalAmount, now, now, inv.GroupID, inv.PrincipalAmount)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var balance int64
			row := tx.QueryRowContext(ctx, `SELECT balance FROM group_pools WHERE group_id = ?`, inv.GroupID)
			if err := row.Scan(&balance); err != nil {
				if err == sql.ErrNoRows {
					return errs.New(errs.CodeNotFound, "group pool %s", inv.GroupID)
				}
				return err
			}
			return errs.New(errs.CodeInsufficientFunds,
				"group %s balance %d < %d", inv.GroupID, balance, inv.PrincipalAmount)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO investments (id, proposal_id, group_id, principal_amount, status, executed_at)
			 VALUES (?,?,?,?,?,?)`,
			inv.ID, inv.ProposalID, inv.GroupID, inv.PrincipalAmount, inv.Status, inv.ExecutedAt.Unix())
		return err
	})
}

// CreditProfit writes the wealth reports for a matured investment and credits
// the maturity amount back to the pool, all in one transaction. Re-running
// for an investment that already has reports is a no-op.
func (s *Store) CreditProfit(ctx context.Context, investmentID string, maturityAmount int64, shares []model.WealthShare, distributedAt time.Time) (applied bool, err error) {
	err = s.tx(ctx, func(tx *sql.Tx) error {
		var existing int
		row := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM wealth_reports WHERE investment_id = ?`, investmentID)
		if err := row.Scan(&existing); err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}
		var groupID string
		row = tx.QueryRowContext(ctx,
			`SELECT group_id FROM investments WHERE id = ?`, investmentID)
		if err := row.Scan(&groupID); err != nil {
			if err == sql.ErrNoRows {
				return errs.New(errs.CodeNotFound, "investment %s", investmentID)
			}
			return err
		}
		for _, sh := range shares {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO wealth_reports (investment_id, member_id, profit_amount, distributed_at)
				 VALUES (?,?,?,?)`,
				investmentID, sh.MemberID, sh.Amount, distributedAt.Unix()); err != nil {
				return err
			}
		}
		now := time.Now().Unix()
		if _, err := tx.ExecContext(ctx,
			`UPDATE group_pools SET balance = balance + ?, last_tx_at = ?, updated_at = ?
			 WHERE group_id = ?`,
			maturityAmount, now, now, groupID); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// RecordContribution credits the pool and records the member deposit.
func (s *Store) RecordContribution(ctx context.Context, c *model.Contribution) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		now := time.Now().Unix()
		res, err := tx.ExecContext(ctx,
			`UPDATE group_pools SET balance = balance + ?, last_tx_at = ?, updated_at = ?
			 WHERE group_id = ?`,
			c.Amount, now, now, c.GroupID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.New(errs.CodeNotFound, "group pool %s", c.GroupID)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO contributions (id, group_id, member_id, amount, recorded_at)
			 VALUES (?,?,?,?,?)`,
			c.ID, c.GroupID, c.MemberID, c.Amount, c.RecordedAt.Unix())
		return err
	})
}

// ContributionTotals returns per-member contribution sums for a group.
func (s *Store) ContributionTotals(ctx context.Context, groupID string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member_id, SUM(amount) FROM contributions WHERE group_id = ? GROUP BY member_id`,
		groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := make(map[string]int64)
	for rows.Next() {
		var member string
		var sum int64
		if err := rows.Scan(&member, &sum); err != nil {
			return nil, err
		}
		totals[member] = sum
	}
	return totals, rows.Err()
}

// RecordExpense stores an expense for anomaly history.
func (s *Store) RecordExpense(ctx context.Context, e *model.Expense) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (id, group_id, member_id, amount, recorded_at) VALUES (?,?,?,?,?)`,
		e.ID, e.GroupID, e.MemberID, e.Amount, e.RecordedAt.Unix())
	return err
}

// ExpensesSince returns every expense recorded at or after the cutoff,
// oldest first, for the anomaly batch scan.
func (s *Store) ExpensesSince(ctx context.Context, since time.Time) ([]model.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, member_id, amount, recorded_at FROM expenses
		 WHERE recorded_at >= ? ORDER BY recorded_at`, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Expense
	for rows.Next() {
		var e model.Expense
		var at int64
		if err := rows.Scan(&e.ID, &e.GroupID, &e.MemberID, &e.Amount, &at); err != nil {
			return nil, err
		}
		e.RecordedAt = time.Unix(at, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// MemberExpensesSince returns a member's expense amounts recorded in the
// inclusive window [since, until], oldest first, excluding the expense with
// excludeID if present. The upper bound keeps an expense from being judged
// against samples recorded after it.
func (s *Store) MemberExpensesSince(ctx context.Context, memberID, excludeID string, since, until time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT amount FROM expenses
		 WHERE member_id = ? AND id != ? AND recorded_at >= ? AND recorded_at <= ?
		 ORDER BY recorded_at`,
		memberID, excludeID, since.Unix(), until.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var amounts []int64
	for rows.Next() {
		var a int64
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		amounts = append(amounts, a)
	}
	return amounts, rows.Err()
}
