package store

import (
	"context"
	"database/sql"
	"time"

	"ChamaCore/internal/errs"
	"ChamaCore/internal/model"
)

// InsertProposal stores a new proposal.
func (s *Store) InsertProposal(ctx context.Context, p *model.InvestmentProposal) error {
	var executed, maturity any
	if p.ExecutedAt != nil {
		executed = p.ExecutedAt.Unix()
	}
	if p.MaturityDate != nil {
		maturity = p.MaturityDate.Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO proposals (id, group_id, amount, option_id, initiator_id, status, fail_reason, created_at, executed_at, maturity_date)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.GroupID, p.Amount, p.OptionID, p.InitiatorID, p.Status, p.FailReason,
		p.CreatedAt.Unix(), executed, maturity)
	return err
}

// GetProposal loads a proposal by id.
func (s *Store) GetProposal(ctx context.Context, id string) (*model.InvestmentProposal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, amount, option_id, initiator_id, status, fail_reason, created_at, executed_at, maturity_date
		 FROM proposals WHERE id = ?`, id)
	return scanProposal(row)
}

func scanProposal(row *sql.Row) (*model.InvestmentProposal, error) {
	var p model.InvestmentProposal
	var created int64
	var executed, maturity sql.NullInt64
	err := row.Scan(&p.ID, &p.GroupID, &p.Amount, &p.OptionID, &p.InitiatorID,
		&p.Status, &p.FailReason, &created, &executed, &maturity)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.New(errs.CodeNotFound, "proposal not found")
		}
		return nil, err
	}
	p.CreatedAt = time.Unix(created, 0).UTC()
	if executed.Valid {
		t := time.Unix(executed.Int64, 0).UTC()
		p.ExecutedAt = &t
	}
	if maturity.Valid {
		t := time.Unix(maturity.Int64, 0).UTC()
		p.MaturityDate = &t
	}
	return &p, nil
}

// TransitionProposal moves a proposal from one status to another. The update
// is conditional on the current status, so concurrent transitions cannot
// both win; the loser gets ErrInvalidTransition.
func (s *Store) TransitionProposal(ctx context.Context, id string, from, to model.ProposalStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE proposals SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.New(errs.CodeInvalidTransition, "proposal %s is not %s", id, from)
	}
	return nil
}

// MarkProposalExecuted records the execution timestamp and maturity date
// alongside the EXECUTING -> ACTIVE transition.
func (s *Store) MarkProposalExecuted(ctx context.Context, id string, executedAt, maturityDate time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE proposals SET status = ?, executed_at = ?, maturity_date = ?
		 WHERE id = ? AND status = ?`,
		model.ProposalActive, executedAt.Unix(), maturityDate.Unix(), id, model.ProposalExecuting)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.New(errs.CodeInvalidTransition, "proposal %s is not EXECUTING", id)
	}
	return nil
}

// MarkProposalFailed records a terminal failure with its reason.
func (s *Store) MarkProposalFailed(ctx context.Context, id string, from model.ProposalStatus, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE proposals SET status = ?, fail_reason = ? WHERE id = ? AND status = ?`,
		model.ProposalFailed, reason, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.New(errs.CodeInvalidTransition, "proposal %s is not %s", id, from)
	}
	return nil
}

// ListProposalsByStatus returns proposals in the given status, oldest first.
func (s *Store) ListProposalsByStatus(ctx context.Context, status model.ProposalStatus) ([]*model.InvestmentProposal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, amount, option_id, initiator_id, status, fail_reason, created_at, executed_at, maturity_date
		 FROM proposals WHERE status = ? ORDER BY created_at`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.InvestmentProposal
	for rows.Next() {
		var p model.InvestmentProposal
		var created int64
		var executed, maturity sql.NullInt64
		if err := rows.Scan(&p.ID, &p.GroupID, &p.Amount, &p.OptionID, &p.InitiatorID,
			&p.Status, &p.FailReason, &created, &executed, &maturity); err != nil {
			return nil, err
		}
		p.CreatedAt = time.Unix(created, 0).UTC()
		if executed.Valid {
			t := time.Unix(executed.Int64, 0).UTC()
			p.ExecutedAt = &t
		}
		if maturity.Valid {
			t := time.Unix(maturity.Int64, 0).UTC()
			p.MaturityDate = &t
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// HasOpenProposal reports whether a group already has a proposal that has not
// reached a terminal state. The idle-cash detector uses it to avoid piling
// up duplicate proposals for the same pool.
func (s *Store) HasOpenProposal(ctx context.Context, groupID string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM proposals WHERE group_id = ? AND status IN (?,?,?,?)`,
		groupID, model.ProposalPendingApproval, model.ProposalApproved,
		model.ProposalExecuting, model.ProposalActive)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetInvestment loads an investment by id.
func (s *Store) GetInvestment(ctx context.Context, id string) (*model.Investment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, proposal_id, group_id, principal_amount, maturity_amount, status, executed_at, matured_at
		 FROM investments WHERE id = ?`, id)
	return scanInvestment(row.Scan)
}

// GetInvestmentByProposal loads the investment created for a proposal.
func (s *Store) GetInvestmentByProposal(ctx context.Context, proposalID string) (*model.Investment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, proposal_id, group_id, principal_amount, maturity_amount, status, executed_at, matured_at
		 FROM investments WHERE proposal_id = ?`, proposalID)
	return scanInvestment(row.Scan)
}

func scanInvestment(scan func(dest ...any) error) (*model.Investment, error) {
	var inv model.Investment
	var executed int64
	var maturityAmount, maturedAt sql.NullInt64
	err := scan(&inv.ID, &inv.ProposalID, &inv.GroupID, &inv.PrincipalAmount,
		&maturityAmount, &inv.Status, &executed, &maturedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.New(errs.CodeNotFound, "investment not found")
		}
		return nil, err
	}
	inv.ExecutedAt = time.Unix(executed, 0).UTC()
	if maturityAmount.Valid {
		inv.MaturityAmount = &maturityAmount.Int64
	}
	if maturedAt.Valid {
		t := time.Unix(maturedAt.Int64, 0).UTC()
		inv.MaturedAt = &t
	}
	return &inv, nil
}

// MarkInvestmentMatured records the maturity amount once.
func (s *Store) MarkInvestmentMatured(ctx context.Context, id string, maturityAmount int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE investments SET status = ?, maturity_amount = ?, matured_at = ?
		 WHERE id = ? AND status = ?`,
		model.InvestmentMatured, maturityAmount, at.Unix(), id, model.InvestmentActive)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.New(errs.CodeInvalidTransition, "investment %s is not ACTIVE", id)
	}
	return nil
}

// WealthReports returns the distribution rows for an investment.
func (s *Store) WealthReports(ctx context.Context, investmentID string) ([]model.WealthReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT investment_id, member_id, profit_amount, distributed_at
		 FROM wealth_reports WHERE investment_id = ? ORDER BY member_id`, investmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.WealthReport
	for rows.Next() {
		var r model.WealthReport
		var at int64
		if err := rows.Scan(&r.InvestmentID, &r.MemberID, &r.ProfitAmount, &at); err != nil {
			return nil, err
		}
		r.DistributedAt = time.Unix(at, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
