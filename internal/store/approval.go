package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"ChamaCore/internal/errs"
	"ChamaCore/internal/model"
)

// InsertApprovalRequest stores a request together with its signer set.
func (s *Store) InsertApprovalRequest(ctx context.Context, req *model.ApprovalRequest) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		percent := ""
		if req.Rule.Kind == model.RulePercentage {
			percent = req.Rule.Percent.String()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO approval_requests (id, subject_type, subject_id, rule_kind, rule_n, rule_percent, status, created_at, expires_at)
			 VALUES (?,?,?,?,?,?,?,?,?)`,
			req.ID, req.Subject.Type, req.Subject.ID, req.Rule.Kind, req.Rule.N, percent,
			req.Status, req.CreatedAt.Unix(), req.ExpiresAt.Unix())
		if err != nil {
			return err
		}
		for _, signer := range req.RequiredSigners {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO approval_signers (request_id, member_id) VALUES (?,?)`,
				req.ID, signer); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetApprovalRequest loads a request and its signer set.
func (s *Store) GetApprovalRequest(ctx context.Context, id string) (*model.ApprovalRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, subject_type, subject_id, rule_kind, rule_n, rule_percent, status, created_at, expires_at
		 FROM approval_requests WHERE id = ?`, id)
	var req model.ApprovalRequest
	var percent string
	var created, expires int64
	err := row.Scan(&req.ID, &req.Subject.Type, &req.Subject.ID, &req.Rule.Kind,
		&req.Rule.N, &percent, &req.Status, &created, &expires)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.New(errs.CodeNotFound, "approval request %s", id)
		}
		return nil, err
	}
	if percent != "" {
		req.Rule.Percent, err = decimal.NewFromString(percent)
		if err != nil {
			return nil, err
		}
	}
	req.CreatedAt = time.Unix(created, 0).UTC()
	req.ExpiresAt = time.Unix(expires, 0).UTC()

	rows, err := s.db.QueryContext(ctx,
		`SELECT member_id FROM approval_signers WHERE request_id = ? ORDER BY member_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		req.RequiredSigners = append(req.RequiredSigners, m)
	}
	return &req, rows.Err()
}

// SignatureTally is the post-insert count of cast decisions on a request,
// plus the status the request's rule resolved to under that tally. When the
// rule decided, the status transition was committed in the same transaction
// as the signature itself.
type SignatureTally struct {
	Approvals  int
	Rejections int
	Signers    int
	Status     model.ApprovalStatus
	Subject    model.Subject
}

// CastSignature inserts a signature with compare-and-set semantics: the
// duplicate check is the primary-key insert itself, and the expiry check
// happens in the same transaction so a signature can never land after an
// expiry has been committed. The request's rule is re-evaluated against the
// post-insert tally inside the same transaction, and a resulting
// PENDING-to-decided transition commits atomically with the signature, so
// no later sweep can expire a request whose quorum has already been met.
func (s *Store) CastSignature(ctx context.Context, sig *model.Signature, now time.Time) (*SignatureTally, error) {
	var tally SignatureTally
	err := s.tx(ctx, func(tx *sql.Tx) error {
		var status model.ApprovalStatus
		var rule model.Rule
		var percent string
		var expires int64
		row := tx.QueryRowContext(ctx,
			`SELECT status, expires_at, subject_type, subject_id, rule_kind, rule_n, rule_percent
			 FROM approval_requests WHERE id = ?`, sig.RequestID)
		if err := row.Scan(&status, &expires, &tally.Subject.Type, &tally.Subject.ID,
			&rule.Kind, &rule.N, &percent); err != nil {
			if err == sql.ErrNoRows {
				return errs.New(errs.CodeNotFound, "approval request %s", sig.RequestID)
			}
			return err
		}
		if percent != "" {
			var err error
			if rule.Percent, err = decimal.NewFromString(percent); err != nil {
				return err
			}
		}
		if status == model.ApprovalExpired {
			return errs.New(errs.CodeRequestExpired, "request %s expired", sig.RequestID)
		}
		if status != model.ApprovalPending {
			return errs.New(errs.CodeInvalidTransition, "request %s already %s", sig.RequestID, status)
		}
		if now.Unix() >= expires {
			if _, err := tx.ExecContext(ctx,
				`UPDATE approval_requests SET status = ? WHERE id = ?`,
				model.ApprovalExpired, sig.RequestID); err != nil {
				return err
			}
			return errs.New(errs.CodeRequestExpired, "request %s expired", sig.RequestID)
		}

		var isSigner int
		row = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM approval_signers WHERE request_id = ? AND member_id = ?`,
			sig.RequestID, sig.ApproverID)
		if err := row.Scan(&isSigner); err != nil {
			return err
		}
		if isSigner == 0 {
			return errs.New(errs.CodeUnauthorizedSigner,
				"%s is not a required signer on %s", sig.ApproverID, sig.RequestID)
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO signatures (request_id, approver_id, decision, signed_at) VALUES (?,?,?,?)`,
			sig.RequestID, sig.ApproverID, sig.Decision, sig.SignedAt.Unix())
		if err != nil {
			if isUniqueViolation(err) {
				return errs.New(errs.CodeDuplicateSignature,
					"%s already signed %s", sig.ApproverID, sig.RequestID)
			}
			return err
		}

		row = tx.QueryRowContext(ctx,
			`SELECT
				COUNT(CASE WHEN decision = ? THEN 1 END),
				COUNT(CASE WHEN decision = ? THEN 1 END)
			 FROM signatures WHERE request_id = ?`,
			model.DecisionApprove, model.DecisionReject, sig.RequestID)
		if err := row.Scan(&tally.Approvals, &tally.Rejections); err != nil {
			return err
		}
		row = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM approval_signers WHERE request_id = ?`, sig.RequestID)
		if err := row.Scan(&tally.Signers); err != nil {
			return err
		}

		tally.Status = rule.Evaluate(tally.Signers, tally.Approvals, tally.Rejections)
		if tally.Status == model.ApprovalPending {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE approval_requests SET status = ? WHERE id = ? AND status = ?`,
			tally.Status, sig.RequestID, model.ApprovalPending)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &tally, nil
}

// TransitionApproval moves a request out of PENDING. Conditional on the
// current status so two concurrent evaluations cannot both commit.
func (s *Store) TransitionApproval(ctx context.Context, id string, to model.ApprovalStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE approval_requests SET status = ? WHERE id = ? AND status = ?`,
		to, id, model.ApprovalPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.New(errs.CodeInvalidTransition, "request %s is not PENDING", id)
	}
	return nil
}

// ExpireDueRequests marks every overdue PENDING request EXPIRED and returns
// the subjects of the requests it actually flipped. Each update is
// conditional on PENDING so a request decided concurrently is never
// reported as expired.
func (s *Store) ExpireDueRequests(ctx context.Context, now time.Time) ([]model.Subject, error) {
	var subjects []model.Subject
	err := s.tx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, subject_type, subject_id FROM approval_requests
			 WHERE status = ? AND expires_at <= ?`,
			model.ApprovalPending, now.Unix())
		if err != nil {
			return err
		}
		type due struct {
			id   string
			subj model.Subject
		}
		var candidates []due
		for rows.Next() {
			var d due
			if err := rows.Scan(&d.id, &d.subj.Type, &d.subj.ID); err != nil {
				rows.Close()
				return err
			}
			candidates = append(candidates, d)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, d := range candidates {
			res, err := tx.ExecContext(ctx,
				`UPDATE approval_requests SET status = ? WHERE id = ? AND status = ?`,
				model.ApprovalExpired, d.id, model.ApprovalPending)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n > 0 {
				subjects = append(subjects, d.subj)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return subjects, nil
}

// RequestForSubject returns the newest approval request for a subject.
func (s *Store) RequestForSubject(ctx context.Context, subject model.Subject) (*model.ApprovalRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id FROM approval_requests WHERE subject_type = ? AND subject_id = ?
		 ORDER BY created_at DESC LIMIT 1`,
		subject.Type, subject.ID)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.New(errs.CodeNotFound, "no request for %s %s", subject.Type, subject.ID)
		}
		return nil, err
	}
	return s.GetApprovalRequest(ctx, id)
}
