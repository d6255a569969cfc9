// Package proposal drives an investment proposal through its lifecycle:
// quorum approval, atomic execution against the group pool, external
// confirmation, maturity and profit distribution.
package proposal

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"ChamaCore/internal/approval"
	"ChamaCore/internal/distribution"
	"ChamaCore/internal/errs"
	"ChamaCore/internal/ledger"
	"ChamaCore/internal/model"
	"ChamaCore/internal/notifier"
	"ChamaCore/internal/store"
)

// Valuer is the external collaborator that prices an investment at maturity.
type Valuer interface {
	MaturityValue(ctx context.Context, inv *model.Investment) (int64, error)
}

// Engine is the proposal state machine.
type Engine struct {
	store        *store.Store
	coordinator  *ledger.Coordinator
	approvals    *approval.Engine
	calculator   *distribution.Calculator
	notifier     notifier.Notifier
	valuer       Valuer
	maturityTerm time.Duration
}

// NewEngine wires the lifecycle engine and registers it for approval
// outcomes on INVESTMENT subjects.
func NewEngine(st *store.Store, coord *ledger.Coordinator, appr *approval.Engine, calc *distribution.Calculator, n notifier.Notifier, valuer Valuer, maturityTerm time.Duration) *Engine {
	e := &Engine{
		store:        st,
		coordinator:  coord,
		approvals:    appr,
		calculator:   calc,
		notifier:     n,
		valuer:       valuer,
		maturityTerm: maturityTerm,
	}
	appr.Decided = e.onApprovalDecided
	return e
}

// Propose creates a PENDING_APPROVAL proposal and opens its approval
// request. The balance is checked here only as a courtesy; execution
// re-verifies it atomically because it may go stale under concurrency.
func (e *Engine) Propose(ctx context.Context, groupID, optionID, initiatorID string, amount int64, signers []string, rule model.Rule) (*model.InvestmentProposal, error) {
	if amount <= 0 {
		return nil, errs.New(errs.CodeValidation, "proposal amount %d must be positive", amount)
	}
	pool, err := e.store.GetPool(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if pool.Balance < amount {
		return nil, errs.New(errs.CodeInsufficientFunds,
			"group %s balance %d < %d at proposal time", groupID, pool.Balance, amount)
	}

	p := &model.InvestmentProposal{
		ID:          uuid.NewString(),
		GroupID:     groupID,
		Amount:      amount,
		OptionID:    optionID,
		InitiatorID: initiatorID,
		Status:      model.ProposalPendingApproval,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.InsertProposal(ctx, p); err != nil {
		return nil, err
	}
	subject := model.Subject{Type: model.SubjectInvestment, ID: p.ID}
	if _, err := e.approvals.CreateRequest(ctx, subject, signers, rule); err != nil {
		return nil, err
	}
	e.publish(ctx, notifier.Event{
		Type: notifier.EventProposalCreated, SubjectID: p.ID, GroupID: groupID,
		Actor: initiatorID, Amount: amount, At: p.CreatedAt,
	})
	log.Printf("[INFO] proposal %s created: group %s amount %d option %s", p.ID, groupID, amount, optionID)
	return p, nil
}

// Cancel withdraws a proposal. Only the initiator may cancel, and only
// while the quorum is still pending; once execution has begun the caller
// must wait for ACTIVE or FAILED.
func (e *Engine) Cancel(ctx context.Context, proposalID, memberID string) error {
	p, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	if p.InitiatorID != memberID {
		return errs.New(errs.CodeValidation, "%s is not the initiator of %s", memberID, proposalID)
	}
	if p.Status != model.ProposalPendingApproval {
		return errs.New(errs.CodeInvalidTransition, "cannot cancel proposal in %s", p.Status)
	}
	if err := e.store.TransitionProposal(ctx, proposalID, model.ProposalPendingApproval, model.ProposalCancelled); err != nil {
		return err
	}
	// Close out the approval request so late signatures bounce.
	subject := model.Subject{Type: model.SubjectInvestment, ID: proposalID}
	if req, err := e.store.RequestForSubject(ctx, subject); err == nil {
		if err := e.store.TransitionApproval(ctx, req.ID, model.ApprovalRejected); err != nil &&
			errs.CodeOf(err) != errs.CodeInvalidTransition {
			log.Printf("[WARN] close approval for cancelled proposal %s: %v", proposalID, err)
		}
	}
	log.Printf("[INFO] proposal %s cancelled by %s", proposalID, memberID)
	return nil
}

// onApprovalDecided reacts to quorum outcomes for INVESTMENT subjects.
func (e *Engine) onApprovalDecided(ctx context.Context, subject model.Subject, status model.ApprovalStatus) {
	if subject.Type != model.SubjectInvestment {
		return
	}
	proposalID := subject.ID
	switch status {
	case model.ApprovalApproved:
		e.publish(ctx, notifier.Event{
			Type: notifier.EventQuorumReached, SubjectID: proposalID, At: time.Now().UTC(),
		})
		if err := e.execute(ctx, proposalID); err != nil {
			log.Printf("[ERROR] execute proposal %s: %v", proposalID, err)
		}
	case model.ApprovalRejected:
		if err := e.store.TransitionProposal(ctx, proposalID, model.ProposalPendingApproval, model.ProposalRejected); err != nil {
			log.Printf("[ERROR] reject proposal %s: %v", proposalID, err)
		}
	case model.ApprovalExpired:
		if err := e.store.TransitionProposal(ctx, proposalID, model.ProposalPendingApproval, model.ProposalExpired); err != nil {
			log.Printf("[ERROR] expire proposal %s: %v", proposalID, err)
		}
	}
}

// execute moves an approved proposal through EXECUTING and debits the pool.
// The balance seen at proposal time may have gone stale, so the coordinator
// re-verifies it atomically; a shortfall here is terminal FAILED with no
// compensation needed, the debit and the investment insert being
// all-or-nothing.
func (e *Engine) execute(ctx context.Context, proposalID string) error {
	if err := e.store.TransitionProposal(ctx, proposalID, model.ProposalPendingApproval, model.ProposalApproved); err != nil {
		return err
	}
	if err := e.store.TransitionProposal(ctx, proposalID, model.ProposalApproved, model.ProposalExecuting); err != nil {
		return err
	}
	p, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	_, err = e.coordinator.DebitAndInvest(ctx, p.GroupID, proposalID, p.Amount)
	if err != nil {
		if errors.Is(err, errs.ErrInsufficientFunds) {
			log.Printf("[WARN] proposal %s: balance went stale, failing: %v", proposalID, err)
			return e.store.MarkProposalFailed(ctx, proposalID, model.ProposalExecuting, string(errs.CodeInsufficientFunds))
		}
		return err
	}
	return nil
}

// Confirm applies the payment-execution confirmation callback. A confirmed
// amount that differs from the proposed amount fails the proposal with
// reason ExternalConfirmationMismatch.
func (e *Engine) Confirm(ctx context.Context, proposalID, externalTxID string, confirmedAmount int64, confirmedAt time.Time) error {
	p, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	if p.Status != model.ProposalExecuting {
		return errs.New(errs.CodeInvalidTransition, "proposal %s is %s, not EXECUTING", proposalID, p.Status)
	}
	if confirmedAmount != p.Amount {
		log.Printf("[ERROR] proposal %s: confirmed %d != proposed %d (external tx %s)",
			proposalID, confirmedAmount, p.Amount, externalTxID)
		if err := e.store.MarkProposalFailed(ctx, proposalID, model.ProposalExecuting,
			string(errs.CodeExternalConfirmationMismatch)); err != nil {
			return err
		}
		return errs.New(errs.CodeExternalConfirmationMismatch,
			"confirmed %d != proposed %d", confirmedAmount, p.Amount)
	}
	maturity := confirmedAt.Add(e.maturityTerm)
	if err := e.store.MarkProposalExecuted(ctx, proposalID, confirmedAt, maturity); err != nil {
		return err
	}
	e.publish(ctx, notifier.Event{
		Type: notifier.EventProposalExecuted, SubjectID: proposalID, GroupID: p.GroupID,
		Amount: p.Amount, Detail: "external_tx=" + externalTxID, At: confirmedAt,
	})
	log.Printf("[INFO] proposal %s confirmed active, matures %s", proposalID, maturity.Format("2006-01-02"))
	return nil
}

// SweepExpired expires overdue approval requests; the Decided hook moves the
// affected proposals to EXPIRED.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) error {
	_, err := e.approvals.ExpireDue(ctx, now)
	return err
}

// SweepMatured finds ACTIVE proposals past their maturity date, prices them
// through the external valuer and distributes profit. One proposal's
// failure does not abort the sweep.
func (e *Engine) SweepMatured(ctx context.Context, now time.Time) error {
	active, err := e.store.ListProposalsByStatus(ctx, model.ProposalActive)
	if err != nil {
		return err
	}
	for _, p := range active {
		if p.MaturityDate == nil || p.MaturityDate.After(now) {
			continue
		}
		if err := e.mature(ctx, p, now); err != nil {
			log.Printf("[ERROR] mature proposal %s: %v", p.ID, err)
		}
	}
	return nil
}

func (e *Engine) mature(ctx context.Context, p *model.InvestmentProposal, now time.Time) error {
	inv, err := e.store.GetInvestmentByProposal(ctx, p.ID)
	if err != nil {
		return err
	}
	if inv.MaturityAmount == nil {
		value, err := e.valuer.MaturityValue(ctx, inv)
		if err != nil {
			return err
		}
		if err := e.store.MarkInvestmentMatured(ctx, inv.ID, value, now); err != nil {
			return err
		}
		inv.MaturityAmount = &value
	}
	if err := e.store.TransitionProposal(ctx, p.ID, model.ProposalActive, model.ProposalMatured); err != nil {
		return err
	}

	totals, err := e.store.ContributionTotals(ctx, p.GroupID)
	if err != nil {
		return err
	}
	shares, err := distribution.SharesFromContributions(totals)
	if err != nil {
		return err
	}
	profit := *inv.MaturityAmount - inv.PrincipalAmount
	amounts, err := e.calculator.Distribute(profit, shares)
	if err != nil {
		return err
	}
	if err := e.coordinator.CreditProfit(ctx, inv.ID, amounts); err != nil {
		return err
	}
	e.publish(ctx, notifier.Event{
		Type: notifier.EventProfitDistributed, SubjectID: inv.ID, GroupID: p.GroupID,
		Amount: profit, At: now,
	})
	log.Printf("[INFO] investment %s matured: principal %d maturity %d profit %d across %d members",
		inv.ID, inv.PrincipalAmount, *inv.MaturityAmount, profit, len(amounts))
	return nil
}

func (e *Engine) publish(ctx context.Context, evt notifier.Event) {
	if err := e.notifier.Publish(ctx, evt); err != nil {
		log.Printf("[ERROR] publish %s event: %v", evt.Type, err)
	}
}
