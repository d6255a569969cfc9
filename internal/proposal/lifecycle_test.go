package proposal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"ChamaCore/internal/approval"
	"ChamaCore/internal/distribution"
	"ChamaCore/internal/errs"
	"ChamaCore/internal/ledger"
	"ChamaCore/internal/model"
	"ChamaCore/internal/notifier"
	"ChamaCore/internal/store"
)

type harness struct {
	store     *store.Store
	coord     *ledger.Coordinator
	approvals *approval.Engine
	engine    *Engine
}

func newHarness(t *testing.T, expiry time.Duration) *harness {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	coord := ledger.NewCoordinator(st)
	appr := approval.NewEngine(st, expiry)
	calc := distribution.NewCalculator(distribution.DefaultEpsilon)
	eng := NewEngine(st, coord, appr, calc, notifier.NewNoop(),
		FixedRateValuer{RateBps: 1000}, 90*24*time.Hour)
	return &harness{store: st, coord: coord, approvals: appr, engine: eng}
}

// seedPool funds a group through member contributions so maturity
// distribution has shares to work from.
func (h *harness) seedPool(t *testing.T, groupID string, contributions map[string]int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.CreatePool(ctx, groupID, 0))
	for member, amount := range contributions {
		_, err := h.coord.RecordContribution(ctx, groupID, member, amount)
		require.NoError(t, err)
	}
}

func (h *harness) proposalStatus(t *testing.T, id string) model.ProposalStatus {
	t.Helper()
	p, err := h.store.GetProposal(context.Background(), id)
	require.NoError(t, err)
	return p.Status
}

func TestLifecycle_ProposeToDistribution(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour)
	h.seedPool(t, "g1", map[string]int64{"alice": 50000, "bob": 30000, "carol": 20000})

	p, err := h.engine.Propose(ctx, "g1", "money-market", "alice", 60000,
		[]string{"alice", "bob", "carol"}, model.CountRule(2))
	require.NoError(t, err)
	require.Equal(t, model.ProposalPendingApproval, p.Status)

	req, err := h.store.RequestForSubject(ctx, model.Subject{Type: model.SubjectInvestment, ID: p.ID})
	require.NoError(t, err)

	_, err = h.approvals.CastSignature(ctx, req.ID, "alice", model.DecisionApprove)
	require.NoError(t, err)
	require.Equal(t, model.ProposalPendingApproval, h.proposalStatus(t, p.ID))

	// Quorum reached: the engine debits the pool and moves to EXECUTING.
	_, err = h.approvals.CastSignature(ctx, req.ID, "bob", model.DecisionApprove)
	require.NoError(t, err)
	require.Equal(t, model.ProposalExecuting, h.proposalStatus(t, p.ID))

	pool, err := h.store.GetPool(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, int64(40000), pool.Balance)

	// External confirmation activates the investment.
	confirmedAt := time.Now().UTC()
	require.NoError(t, h.engine.Confirm(ctx, p.ID, "ext-tx-1", 60000, confirmedAt))
	require.Equal(t, model.ProposalActive, h.proposalStatus(t, p.ID))

	// Past the maturity date the sweep prices, matures and distributes.
	require.NoError(t, h.engine.SweepMatured(ctx, confirmedAt.Add(91*24*time.Hour)))
	require.Equal(t, model.ProposalMatured, h.proposalStatus(t, p.ID))

	inv, err := h.store.GetInvestmentByProposal(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, inv.MaturityAmount)
	require.Equal(t, int64(66000), *inv.MaturityAmount)

	// Profit 6000 split by contribution shares 50/30/20.
	reports, err := h.store.WealthReports(ctx, inv.ID)
	require.NoError(t, err)
	want := map[string]int64{"alice": 3000, "bob": 1800, "carol": 1200}
	require.Len(t, reports, len(want))
	for _, r := range reports {
		require.Equal(t, want[r.MemberID], r.ProfitAmount, r.MemberID)
	}

	// Pool got the full maturity value back.
	pool, err = h.store.GetPool(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, int64(106000), pool.Balance)

	// A second sweep is a no-op.
	require.NoError(t, h.engine.SweepMatured(ctx, confirmedAt.Add(92*24*time.Hour)))
	reports, err = h.store.WealthReports(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, reports, len(want))
}

func TestPropose_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour)
	h.seedPool(t, "g1", map[string]int64{"alice": 50000})

	_, err := h.engine.Propose(ctx, "g1", "money-market", "alice", 60000,
		[]string{"alice"}, model.UnanimousRule())
	require.ErrorIs(t, err, errs.ErrInsufficientFunds)
}

func TestLifecycle_QuorumRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour)
	h.seedPool(t, "g1", map[string]int64{"alice": 100000})

	p, err := h.engine.Propose(ctx, "g1", "money-market", "alice", 60000,
		[]string{"alice", "bob", "carol"}, model.CountRule(2))
	require.NoError(t, err)
	req, err := h.store.RequestForSubject(ctx, model.Subject{Type: model.SubjectInvestment, ID: p.ID})
	require.NoError(t, err)

	_, err = h.approvals.CastSignature(ctx, req.ID, "bob", model.DecisionReject)
	require.NoError(t, err)
	_, err = h.approvals.CastSignature(ctx, req.ID, "carol", model.DecisionReject)
	require.NoError(t, err)

	require.Equal(t, model.ProposalRejected, h.proposalStatus(t, p.ID))
	pool, err := h.store.GetPool(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, int64(100000), pool.Balance, "rejection must not touch the pool")
}

func TestLifecycle_StaleBalanceFailsProposal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour)
	h.seedPool(t, "g1", map[string]int64{"alice": 100000})

	p, err := h.engine.Propose(ctx, "g1", "money-market", "alice", 60000,
		[]string{"alice", "bob"}, model.CountRule(2))
	require.NoError(t, err)

	// The balance goes stale between proposal and quorum.
	_, err = h.coord.DebitAndInvest(ctx, "g1", "drain", 70000)
	require.NoError(t, err)

	req, err := h.store.RequestForSubject(ctx, model.Subject{Type: model.SubjectInvestment, ID: p.ID})
	require.NoError(t, err)
	_, err = h.approvals.CastSignature(ctx, req.ID, "alice", model.DecisionApprove)
	require.NoError(t, err)
	_, err = h.approvals.CastSignature(ctx, req.ID, "bob", model.DecisionApprove)
	require.NoError(t, err)

	got, err := h.store.GetProposal(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, model.ProposalFailed, got.Status)
	require.Equal(t, string(errs.CodeInsufficientFunds), got.FailReason)

	pool, err := h.store.GetPool(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, int64(30000), pool.Balance, "failed execution debits nothing")
}

func TestConfirm_AmountMismatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour)
	h.seedPool(t, "g1", map[string]int64{"alice": 100000})

	p, err := h.engine.Propose(ctx, "g1", "money-market", "alice", 60000,
		[]string{"alice"}, model.UnanimousRule())
	require.NoError(t, err)
	req, err := h.store.RequestForSubject(ctx, model.Subject{Type: model.SubjectInvestment, ID: p.ID})
	require.NoError(t, err)
	_, err = h.approvals.CastSignature(ctx, req.ID, "alice", model.DecisionApprove)
	require.NoError(t, err)
	require.Equal(t, model.ProposalExecuting, h.proposalStatus(t, p.ID))

	err = h.engine.Confirm(ctx, p.ID, "ext-tx-1", 59999, time.Now().UTC())
	require.Equal(t, errs.CodeExternalConfirmationMismatch, errs.CodeOf(err))

	got, err := h.store.GetProposal(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, model.ProposalFailed, got.Status)
	require.Equal(t, string(errs.CodeExternalConfirmationMismatch), got.FailReason)
}

func TestConfirm_RequiresExecuting(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour)
	h.seedPool(t, "g1", map[string]int64{"alice": 100000})

	p, err := h.engine.Propose(ctx, "g1", "money-market", "alice", 60000,
		[]string{"alice", "bob"}, model.CountRule(2))
	require.NoError(t, err)

	err = h.engine.Confirm(ctx, p.ID, "ext-tx-1", 60000, time.Now().UTC())
	require.Equal(t, errs.CodeInvalidTransition, errs.CodeOf(err))
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour)
	h.seedPool(t, "g1", map[string]int64{"alice": 100000})

	p, err := h.engine.Propose(ctx, "g1", "money-market", "alice", 60000,
		[]string{"alice", "bob"}, model.CountRule(2))
	require.NoError(t, err)

	// Only the initiator may cancel.
	err = h.engine.Cancel(ctx, p.ID, "bob")
	require.Equal(t, errs.CodeValidation, errs.CodeOf(err))

	require.NoError(t, h.engine.Cancel(ctx, p.ID, "alice"))
	require.Equal(t, model.ProposalCancelled, h.proposalStatus(t, p.ID))

	// The approval request is closed out; late signatures bounce.
	req, err := h.store.RequestForSubject(ctx, model.Subject{Type: model.SubjectInvestment, ID: p.ID})
	require.NoError(t, err)
	_, err = h.approvals.CastSignature(ctx, req.ID, "bob", model.DecisionApprove)
	require.Equal(t, errs.CodeInvalidTransition, errs.CodeOf(err))

	// Cancelling twice is an invalid transition.
	err = h.engine.Cancel(ctx, p.ID, "alice")
	require.Equal(t, errs.CodeInvalidTransition, errs.CodeOf(err))
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour)
	h.seedPool(t, "g1", map[string]int64{"alice": 100000})

	p, err := h.engine.Propose(ctx, "g1", "money-market", "alice", 60000,
		[]string{"alice", "bob"}, model.CountRule(2))
	require.NoError(t, err)

	require.NoError(t, h.engine.SweepExpired(ctx, time.Now().UTC().Add(2*time.Hour)))
	require.Equal(t, model.ProposalExpired, h.proposalStatus(t, p.ID))
}

func TestFixedRateValuer(t *testing.T) {
	v := FixedRateValuer{RateBps: 1000}
	value, err := v.MaturityValue(context.Background(), &model.Investment{PrincipalAmount: 60000})
	require.NoError(t, err)
	require.Equal(t, int64(66000), value)

	flat := FixedRateValuer{}
	value, err = flat.MaturityValue(context.Background(), &model.Investment{PrincipalAmount: 60000})
	require.NoError(t, err)
	require.Equal(t, int64(60000), value)
}

func TestLifecycle_PercentageQuorum(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour)
	h.seedPool(t, "g1", map[string]int64{"alice": 100000})

	signers := []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8", "m9"}
	p, err := h.engine.Propose(ctx, "g1", "money-market", "m1", 60000,
		signers, model.PercentageRule(decimal.RequireFromString("66.67")))
	require.NoError(t, err)
	req, err := h.store.RequestForSubject(ctx, model.Subject{Type: model.SubjectInvestment, ID: p.ID})
	require.NoError(t, err)

	for _, m := range signers[:5] {
		_, err = h.approvals.CastSignature(ctx, req.ID, m, model.DecisionApprove)
		require.NoError(t, err)
	}
	require.Equal(t, model.ProposalPendingApproval, h.proposalStatus(t, p.ID))

	// The sixth approval is 66.67% of nine: the proposal executes.
	_, err = h.approvals.CastSignature(ctx, req.ID, "m6", model.DecisionApprove)
	require.NoError(t, err)
	require.Equal(t, model.ProposalExecuting, h.proposalStatus(t, p.ID))
}
