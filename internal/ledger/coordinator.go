// Package ledger serializes and atomically applies balance-affecting
// operations per group. The per-group lock is the only synchronization the
// money path needs: operations on different groups proceed in parallel,
// operations on the same group queue behind one another.
package ledger

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"ChamaCore/internal/errs"
	"ChamaCore/internal/model"
	"ChamaCore/internal/store"
)

const (
	defaultLockTimeout = 2 * time.Second
	maxRetries         = 3
)

// Coordinator applies ledger mutations under per-group mutual exclusion.
type Coordinator struct {
	store *store.Store

	mu          sync.Mutex
	locks       map[string]chan struct{}
	lockTimeout time.Duration
}

// NewCoordinator creates a Coordinator over the given store.
func NewCoordinator(st *store.Store) *Coordinator {
	return &Coordinator{
		store:       st,
		locks:       make(map[string]chan struct{}),
		lockTimeout: defaultLockTimeout,
	}
}

// groupLock returns the semaphore channel for a group, creating it on first use.
func (c *Coordinator) groupLock(groupID string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[groupID]
	if !ok {
		l = make(chan struct{}, 1)
		c.locks[groupID] = l
	}
	return l
}

// withGroupLock runs fn while holding the group's exclusive lock. Failing to
// acquire the lock within the timeout is a retryable ErrConcurrencyConflict.
func (c *Coordinator) withGroupLock(ctx context.Context, groupID string, fn func() error) error {
	l := c.groupLock(groupID)
	select {
	case l <- struct{}{}:
	case <-time.After(c.lockTimeout):
		return errs.New(errs.CodeConcurrencyConflict, "group %s lock timeout", groupID)
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l }()
	return fn()
}

// withRetry retries fn with exponential backoff, but only for
// ErrConcurrencyConflict. Other ledger failures mean the underlying
// financial condition has genuinely changed and must surface immediately.
func (c *Coordinator) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
			log.Printf("[WARN] %s conflict (attempt %d/%d), retrying in %v", op, attempt, maxRetries, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		lastErr = fn()
		if lastErr == nil || !errs.Retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// DebitAndInvest acquires the group lock, re-verifies the balance and, in a
// single transaction, debits the pool and creates the Investment record.
// Both effects happen or neither.
func (c *Coordinator) DebitAndInvest(ctx context.Context, groupID, proposalID string, amount int64) (*model.Investment, error) {
	if amount <= 0 {
		return nil, errs.New(errs.CodeValidation, "investment amount %d must be positive", amount)
	}
	inv := &model.Investment{
		ID:              uuid.NewString(),
		ProposalID:      proposalID,
		GroupID:         groupID,
		PrincipalAmount: amount,
		Status:          model.InvestmentActive,
		ExecutedAt:      time.Now().UTC(),
	}
	err := c.withRetry(ctx, "debit_and_invest", func() error {
		return c.withGroupLock(ctx, groupID, func() error {
			return c.store.DebitAndInvest(ctx, inv)
		})
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] group %s debited %d for investment %s", groupID, amount, inv.ID)
	return inv, nil
}

// CreditProfit validates that the shares reconcile exactly to the
// investment's profit and applies the distribution. Rounding is handled
// upstream by the distribution calculator; here the tolerance is zero.
func (c *Coordinator) CreditProfit(ctx context.Context, investmentID string, shares []model.WealthShare) error {
	inv, err := c.store.GetInvestment(ctx, investmentID)
	if err != nil {
		return err
	}
	if inv.MaturityAmount == nil {
		return errs.New(errs.CodeValidation, "investment %s has not matured", investmentID)
	}
	totalProfit := *inv.MaturityAmount - inv.PrincipalAmount
	var sum int64
	for _, sh := range shares {
		sum += sh.Amount
	}
	if sum != totalProfit {
		return errs.New(errs.CodeDistributionMismatch,
			"shares sum %d != profit %d for investment %s", sum, totalProfit, investmentID)
	}

	var applied bool
	err = c.withRetry(ctx, "credit_profit", func() error {
		return c.withGroupLock(ctx, inv.GroupID, func() error {
			var err error
			applied, err = c.store.CreditProfit(ctx, investmentID, *inv.MaturityAmount, shares, time.Now().UTC())
			return err
		})
	})
	if err != nil {
		return err
	}
	if !applied {
		log.Printf("[INFO] investment %s already distributed, skipping", investmentID)
	}
	return nil
}

// RecordContribution credits a member deposit into the pool.
func (c *Coordinator) RecordContribution(ctx context.Context, groupID, memberID string, amount int64) (*model.Contribution, error) {
	if amount <= 0 {
		return nil, errs.New(errs.CodeValidation, "contribution amount %d must be positive", amount)
	}
	contrib := &model.Contribution{
		ID:         uuid.NewString(),
		GroupID:    groupID,
		MemberID:   memberID,
		Amount:     amount,
		RecordedAt: time.Now().UTC(),
	}
	err := c.withRetry(ctx, "record_contribution", func() error {
		return c.withGroupLock(ctx, groupID, func() error {
			return c.store.RecordContribution(ctx, contrib)
		})
	})
	if err != nil {
		return nil, err
	}
	return contrib, nil
}
