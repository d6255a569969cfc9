// Package idlecash scans group pools for balances left unspent beyond the
// staleness window and turns them into investment proposals.
package idlecash

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"ChamaCore/internal/errs"
	"ChamaCore/internal/model"
	"ChamaCore/internal/proposal"
	"ChamaCore/internal/store"
)

// Config controls when idle cash triggers a proposal.
type Config struct {
	// MinIdleBalance is the smallest pool balance worth proposing for.
	MinIdleBalance int64
	// StaleAfter is how long the pool must sit untouched.
	StaleAfter time.Duration
	// InvestFraction is the share of the idle balance to propose, e.g. 0.5.
	InvestFraction decimal.Decimal
	// OptionID is the default investment option for automatic proposals.
	OptionID string
	// Rule is the quorum rule automatic proposals are gated by.
	Rule model.Rule
	// Initiator is the synthetic actor recorded on automatic proposals.
	Initiator string
}

// Detector produces zero or one proposal per scanned group.
type Detector struct {
	store     *store.Store
	proposals *proposal.Engine
	cfg       Config
}

// NewDetector creates a Detector.
func NewDetector(st *store.Store, pe *proposal.Engine, cfg Config) *Detector {
	return &Detector{store: st, proposals: pe, cfg: cfg}
}

// Scan inspects one group and proposes an investment when the balance is
// idle. Returns nil, nil when there is nothing to do.
func (d *Detector) Scan(ctx context.Context, groupID string, now time.Time) (*model.InvestmentProposal, error) {
	pool, err := d.store.GetPool(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if pool.Balance < d.cfg.MinIdleBalance {
		return nil, nil
	}
	if now.Sub(pool.LastTxAt) < d.cfg.StaleAfter {
		return nil, nil
	}
	open, err := d.store.HasOpenProposal(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, nil
	}

	amount := d.cfg.InvestFraction.
		Mul(decimal.NewFromInt(pool.Balance)).
		Floor().IntPart()
	if amount <= 0 {
		return nil, nil
	}
	signers, err := d.store.ListActiveMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(signers) == 0 {
		log.Printf("[WARN] group %s has idle cash but no active members to sign", groupID)
		return nil, nil
	}
	p, err := d.proposals.Propose(ctx, groupID, d.cfg.OptionID, d.cfg.Initiator, amount, signers, d.cfg.Rule)
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] idle cash: proposed %d of group %s balance %d", amount, groupID, pool.Balance)
	return p, nil
}

// ScanAll runs Scan over every known group, isolating per-group failures.
func (d *Detector) ScanAll(ctx context.Context, now time.Time) {
	groups, err := d.store.ListGroupIDs(ctx)
	if err != nil {
		log.Printf("[ERROR] idle cash scan: list groups: %v", err)
		return
	}
	for _, g := range groups {
		if _, err := d.Scan(ctx, g, now); err != nil && !errors.Is(err, errs.ErrNotFound) {
			log.Printf("[ERROR] idle cash scan group %s: %v", g, err)
		}
	}
}
