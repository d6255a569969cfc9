// Package score recomputes per-member reliability scores from historical
// counters. The computation is pure: the same counters always produce the
// same record.
package score

import (
	"context"
	"log"
	"time"

	"ChamaCore/internal/model"
	"ChamaCore/internal/store"
)

// Component weights. Each raw component is in 0..1 before weighting and the
// weighted terms sum to at most 1, scaled to 0..100 for the final score.
const (
	weightRegularity = 0.40
	weightRepayment  = 0.30
	weightAttendance = 0.20
	weightTenure     = 0.10

	tenureFullDays = 365
)

// Compute derives a credit score record from a member's counters.
func Compute(c *model.MemberCounters, now time.Time) *model.CreditScoreRecord {
	regularity := scoreRegularity(c)
	repayment := scoreRepayment(c)
	attendance := scoreAttendance(c)
	tenure := scoreTenure(c)

	components := []model.ComponentScore{regularity, repayment, attendance, tenure}
	total := 0.0
	for _, comp := range components {
		total += comp.Weighted
	}
	return &model.CreditScoreRecord{
		MemberID:   c.MemberID,
		Score:      total * 100,
		Components: components,
		ComputedAt: now,
	}
}

// scoreRegularity rewards keeping up with expected contributions, capped at 1.
func scoreRegularity(c *model.MemberCounters) model.ComponentScore {
	raw := 1.0
	if c.ExpectedContributions > 0 {
		raw = float64(c.ActualContributions) / float64(c.ExpectedContributions)
		if raw > 1 {
			raw = 1
		}
	}
	return component("regularity", raw, weightRegularity)
}

// scoreRepayment is the on-time repayment ratio; members with no loan
// history score full marks rather than being penalized for never borrowing.
func scoreRepayment(c *model.MemberCounters) model.ComponentScore {
	raw := 1.0
	if c.TotalLoans > 0 {
		raw = float64(c.OnTimeRepaidLoans) / float64(c.TotalLoans)
	}
	return component("repayment", raw, weightRepayment)
}

// scoreAttendance is the meeting attendance ratio, full marks when no
// meetings have occurred.
func scoreAttendance(c *model.MemberCounters) model.ComponentScore {
	raw := 1.0
	if c.TotalMeetings > 0 {
		raw = float64(c.AttendedMeetings) / float64(c.TotalMeetings)
	}
	return component("attendance", raw, weightAttendance)
}

// scoreTenure saturates after a full year of membership.
func scoreTenure(c *model.MemberCounters) model.ComponentScore {
	raw := float64(c.DaysActive) / tenureFullDays
	if raw > 1 {
		raw = 1
	}
	if raw < 0 {
		raw = 0
	}
	return component("tenure", raw, weightTenure)
}

func component(name string, raw, weight float64) model.ComponentScore {
	return model.ComponentScore{Name: name, Raw: raw, Weight: weight, Weighted: raw * weight}
}

// Engine runs the periodic batch recompute.
type Engine struct {
	store *store.Store
}

// NewEngine creates an Engine over the given store.
func NewEngine(st *store.Store) *Engine {
	return &Engine{store: st}
}

// RecomputeGroup recomputes every active member's score from a consistent
// snapshot of their counters. A single member's failure is logged and
// skipped; the batch continues.
func (e *Engine) RecomputeGroup(ctx context.Context, groupID string, now time.Time) error {
	members, err := e.store.ListActiveMembers(ctx, groupID)
	if err != nil {
		return err
	}
	for _, member := range members {
		counters, err := e.store.MemberCounters(ctx, groupID, member, now)
		if err != nil {
			log.Printf("[WARN] score: counters for %s/%s: %v", groupID, member, err)
			continue
		}
		rec := Compute(counters, now)
		if err := e.store.InsertCreditScore(ctx, rec); err != nil {
			log.Printf("[WARN] score: persist %s/%s: %v", groupID, member, err)
			continue
		}
	}
	return nil
}

// RecomputeAll recomputes scores for every group.
func (e *Engine) RecomputeAll(ctx context.Context, now time.Time) {
	groups, err := e.store.ListGroupIDs(ctx)
	if err != nil {
		log.Printf("[ERROR] score recompute: list groups: %v", err)
		return
	}
	for _, g := range groups {
		if err := e.RecomputeGroup(ctx, g, now); err != nil {
			log.Printf("[ERROR] score recompute group %s: %v", g, err)
		}
	}
}
