// Package approval implements the quorum signature collector shared by
// investment execution, disbursement and expense subjects. One evaluator
// serves every subject type; only the subject tag differs.
package approval

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ChamaCore/internal/errs"
	"ChamaCore/internal/model"
	"ChamaCore/internal/store"
)

// Engine collects signatures and evaluates quorum rules.
type Engine struct {
	store  *store.Store
	expiry time.Duration

	// Decided is invoked after a request leaves PENDING. The proposal
	// lifecycle hooks in here for INVESTMENT subjects.
	Decided func(ctx context.Context, subject model.Subject, status model.ApprovalStatus)
}

// NewEngine creates an Engine. Requests expire after the given duration.
func NewEngine(st *store.Store, expiry time.Duration) *Engine {
	return &Engine{store: st, expiry: expiry}
}

// CreateRequest opens an approval request for a subject.
func (e *Engine) CreateRequest(ctx context.Context, subject model.Subject, signers []string, rule model.Rule) (*model.ApprovalRequest, error) {
	if len(signers) == 0 {
		return nil, errs.New(errs.CodeValidation, "required signer set is empty")
	}
	seen := make(map[string]bool, len(signers))
	for _, s := range signers {
		if seen[s] {
			return nil, errs.New(errs.CodeValidation, "duplicate signer %s", s)
		}
		seen[s] = true
	}
	if err := validateRule(rule, len(signers)); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	req := &model.ApprovalRequest{
		ID:              uuid.NewString(),
		Subject:         subject,
		RequiredSigners: signers,
		Rule:            rule,
		Status:          model.ApprovalPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(e.expiry),
	}
	if err := e.store.InsertApprovalRequest(ctx, req); err != nil {
		return nil, err
	}
	log.Printf("[INFO] approval request %s opened for %s %s (%s)", req.ID, subject.Type, subject.ID, rule.Kind)
	return req, nil
}

func validateRule(rule model.Rule, signers int) error {
	switch rule.Kind {
	case model.RuleCount:
		if rule.N < 1 || rule.N > signers {
			return errs.New(errs.CodeValidation, "count rule n=%d out of range for %d signers", rule.N, signers)
		}
	case model.RulePercentage:
		if rule.Percent.LessThanOrEqual(decimal.Zero) || rule.Percent.GreaterThan(decimal.NewFromInt(100)) {
			return errs.New(errs.CodeValidation, "percentage rule %s out of range", rule.Percent)
		}
	case model.RuleUnanimous:
	default:
		return errs.New(errs.CodeValidation, "unknown rule kind %q", rule.Kind)
	}
	return nil
}

// CastSignature records a signer's decision and re-evaluates the request.
// The duplicate check, the expiry check, the rule evaluation and any
// resulting status transition all commit in one store transaction, so a
// met quorum can never be undone by a later expiry sweep.
func (e *Engine) CastSignature(ctx context.Context, requestID, approverID string, decision model.Decision) (model.ApprovalStatus, error) {
	if decision != model.DecisionApprove && decision != model.DecisionReject {
		return "", errs.New(errs.CodeValidation, "unknown decision %q", decision)
	}
	sig := &model.Signature{
		RequestID:  requestID,
		ApproverID: approverID,
		Decision:   decision,
		SignedAt:   time.Now().UTC(),
	}
	tally, err := e.store.CastSignature(ctx, sig, sig.SignedAt)
	if err != nil {
		return "", err
	}
	if tally.Status == model.ApprovalPending {
		return tally.Status, nil
	}
	log.Printf("[INFO] approval request %s decided: %s (%d approve / %d reject of %d)",
		requestID, tally.Status, tally.Approvals, tally.Rejections, tally.Signers)
	if e.Decided != nil {
		e.Decided(ctx, tally.Subject, tally.Status)
	}
	return tally.Status, nil
}

// ExpireDue sweeps overdue PENDING requests into EXPIRED and reports their
// subjects so lifecycle owners can follow.
func (e *Engine) ExpireDue(ctx context.Context, now time.Time) ([]model.Subject, error) {
	subjects, err := e.store.ExpireDueRequests(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, subj := range subjects {
		log.Printf("[INFO] approval request for %s %s expired", subj.Type, subj.ID)
		if e.Decided != nil {
			e.Decided(ctx, subj, model.ApprovalExpired)
		}
	}
	return subjects, nil
}
