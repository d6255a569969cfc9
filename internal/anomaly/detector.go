// Package anomaly scans member expense activity for statistical outliers.
// Output is advisory: alerts inform, they never block the transaction that
// triggered them.
package anomaly

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"ChamaCore/internal/model"
	"ChamaCore/internal/notifier"
	"ChamaCore/internal/store"
)

const (
	// window is the trailing period the rolling statistics cover.
	window = 90 * 24 * time.Hour
	// minSamples is the minimum history before any flagging happens.
	minSamples = 10
	// zThreshold is the minimum |z| for an alert.
	zThreshold = 3.0
)

// severityFor tiers a z-score magnitude: [3,4) MEDIUM, [4,6) HIGH, >=6 CRITICAL.
func severityFor(z float64) model.Severity {
	abs := math.Abs(z)
	switch {
	case abs >= 6:
		return model.SeverityCritical
	case abs >= 4:
		return model.SeverityHigh
	default:
		return model.SeverityMedium
	}
}

// mean computes the arithmetic mean of the samples.
func mean(samples []int64) float64 {
	sum := 0.0
	for _, s := range samples {
		sum += float64(s)
	}
	return sum / float64(len(samples))
}

// stdDev computes the population standard deviation of the samples.
func stdDev(samples []int64, m float64) float64 {
	sum := 0.0
	for _, s := range samples {
		d := float64(s) - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Detector evaluates expenses against each member's trailing window.
type Detector struct {
	store    *store.Store
	notifier notifier.Notifier
}

// NewDetector creates a Detector.
func NewDetector(st *store.Store, n notifier.Notifier) *Detector {
	return &Detector{store: st, notifier: n}
}

// Check evaluates one expense against the member's prior samples. Only
// samples recorded at or before the expense itself count as history, so a
// backfilled batch scan never judges an expense against its future. It
// returns the alert when one fires, nil otherwise. Insufficient history is
// not an error: the expense simply passes unflagged.
func (d *Detector) Check(ctx context.Context, e *model.Expense) (*model.AnomalyAlert, error) {
	since := e.RecordedAt.Add(-window)
	prior, err := d.store.MemberExpensesSince(ctx, e.MemberID, e.ID, since, e.RecordedAt)
	if err != nil {
		return nil, err
	}
	if len(prior) < minSamples {
		return nil, nil
	}
	m := mean(prior)
	sd := stdDev(prior, m)
	if sd == 0 {
		return nil, nil
	}
	z := (float64(e.Amount) - m) / sd
	if math.Abs(z) < zThreshold {
		return nil, nil
	}
	already, err := d.store.HasAnomalyAlert(ctx, "expense:"+e.ID)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, nil
	}

	alert := &model.AnomalyAlert{
		ID:         uuid.NewString(),
		SubjectRef: "expense:" + e.ID,
		MemberID:   e.MemberID,
		Metric:     "expense_amount",
		ZScore:     z,
		Severity:   severityFor(z),
		DetectedAt: e.RecordedAt,
	}
	if err := d.store.InsertAnomalyAlert(ctx, alert); err != nil {
		return nil, err
	}
	if err := d.notifier.Publish(ctx, notifier.Event{
		Type: notifier.EventAnomalyDetected, SubjectID: alert.SubjectRef,
		GroupID: e.GroupID, Actor: e.MemberID, Amount: e.Amount,
		Detail: string(alert.Severity), At: alert.DetectedAt,
	}); err != nil {
		log.Printf("[ERROR] publish anomaly event: %v", err)
	}
	log.Printf("[INFO] anomaly: member %s expense %d z=%.2f severity=%s",
		e.MemberID, e.Amount, z, alert.Severity)
	return alert, nil
}

// RecordAndCheck persists an expense and evaluates it. The check failing
// never fails the record: detection is advisory and isolated.
func (d *Detector) RecordAndCheck(ctx context.Context, e *model.Expense) error {
	if err := d.store.RecordExpense(ctx, e); err != nil {
		return err
	}
	if _, err := d.Check(ctx, e); err != nil {
		log.Printf("[DEBUG] anomaly check for expense %s: %v", e.ID, err)
	}
	return nil
}

// ScanSince re-evaluates every expense recorded since the cutoff. One
// member's failure is logged and skipped; the batch continues.
func (d *Detector) ScanSince(ctx context.Context, since time.Time) {
	expenses, err := d.store.ExpensesSince(ctx, since)
	if err != nil {
		log.Printf("[ERROR] anomaly scan: list expenses: %v", err)
		return
	}
	for i := range expenses {
		if _, err := d.Check(ctx, &expenses[i]); err != nil {
			log.Printf("[DEBUG] anomaly scan expense %s: %v", expenses[i].ID, err)
		}
	}
}
