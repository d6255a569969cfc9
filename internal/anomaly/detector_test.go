package anomaly

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ChamaCore/internal/model"
	"ChamaCore/internal/notifier"
	"ChamaCore/internal/store"
)

func TestSeverityTiers(t *testing.T) {
	cases := []struct {
		z    float64
		want model.Severity
	}{
		{3.0, model.SeverityMedium},
		{3.9, model.SeverityMedium},
		{4.0, model.SeverityHigh},
		{5.9, model.SeverityHigh},
		{6.0, model.SeverityCritical},
		{9.5, model.SeverityCritical},
		{-7.0, model.SeverityCritical},
		{-3.5, model.SeverityMedium},
	}
	for _, tc := range cases {
		if got := severityFor(tc.z); got != tc.want {
			t.Errorf("severityFor(%.1f): expected %s, got %s", tc.z, tc.want, got)
		}
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// seedHistory records n prior expenses alternating low/high around a mean of
// 1000 with a population standard deviation of 100.
func seedHistory(t *testing.T, st *store.Store, memberID string, n int, at time.Time) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		amount := int64(900)
		if i%2 == 1 {
			amount = 1100
		}
		require.NoError(t, st.RecordExpense(ctx, &model.Expense{
			ID:         fmt.Sprintf("%s-hist-%d", memberID, i),
			GroupID:    "g1",
			MemberID:   memberID,
			Amount:     amount,
			RecordedAt: at.Add(time.Duration(i) * time.Hour),
		}))
	}
}

func TestCheck_InsufficientHistory(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	d := NewDetector(st, notifier.NewNoop())

	now := time.Now().UTC()
	seedHistory(t, st, "alice", 9, now.Add(-20*24*time.Hour))

	alert, err := d.Check(ctx, &model.Expense{
		ID: "spike", GroupID: "g1", MemberID: "alice", Amount: 100000, RecordedAt: now,
	})
	require.NoError(t, err)
	require.Nil(t, alert, "nine prior samples must never flag")
}

func TestCheck_FlagsOutlier(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	d := NewDetector(st, notifier.NewNoop())

	now := time.Now().UTC()
	seedHistory(t, st, "alice", 10, now.Add(-20*24*time.Hour))

	// mean 1000, stddev 100: 1400 gives z=4.0.
	alert, err := d.Check(ctx, &model.Expense{
		ID: "spike", GroupID: "g1", MemberID: "alice", Amount: 1400, RecordedAt: now,
	})
	require.NoError(t, err)
	require.NotNil(t, alert)
	require.Equal(t, model.SeverityHigh, alert.Severity)
	require.InDelta(t, 4.0, alert.ZScore, 1e-9)
	require.Equal(t, "expense:spike", alert.SubjectRef)

	alerts, err := st.ListAnomalyAlerts(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
}

func TestCheck_MediumBand(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	d := NewDetector(st, notifier.NewNoop())

	now := time.Now().UTC()
	seedHistory(t, st, "alice", 10, now.Add(-20*24*time.Hour))

	// z = 3.5 lands in the MEDIUM band.
	alert, err := d.Check(ctx, &model.Expense{
		ID: "spike", GroupID: "g1", MemberID: "alice", Amount: 1350, RecordedAt: now,
	})
	require.NoError(t, err)
	require.NotNil(t, alert)
	require.Equal(t, model.SeverityMedium, alert.Severity)
}

func TestCheck_WithinNormalRange(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	d := NewDetector(st, notifier.NewNoop())

	now := time.Now().UTC()
	seedHistory(t, st, "alice", 10, now.Add(-20*24*time.Hour))

	alert, err := d.Check(ctx, &model.Expense{
		ID: "ordinary", GroupID: "g1", MemberID: "alice", Amount: 1200, RecordedAt: now,
	})
	require.NoError(t, err)
	require.Nil(t, alert, "z=2.0 is below the threshold")
}

func TestCheck_IgnoresLaterSamples(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	d := NewDetector(st, notifier.NewNoop())

	// The member's very first expense, followed by plenty of later ones.
	now := time.Now().UTC()
	first := &model.Expense{
		ID: "first", GroupID: "g1", MemberID: "alice", Amount: 100, RecordedAt: now.Add(-20 * 24 * time.Hour),
	}
	require.NoError(t, st.RecordExpense(ctx, first))
	seedHistory(t, st, "alice", 10, now.Add(-10*24*time.Hour))

	// Evaluated with zero genuinely prior samples, the first expense must
	// pass unflagged no matter what came after it.
	alert, err := d.Check(ctx, first)
	require.NoError(t, err)
	require.Nil(t, alert)
}

func TestCheck_ZeroVariance(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	d := NewDetector(st, notifier.NewNoop())

	now := time.Now().UTC()
	for i := 0; i < 12; i++ {
		require.NoError(t, st.RecordExpense(ctx, &model.Expense{
			ID: fmt.Sprintf("flat-%d", i), GroupID: "g1", MemberID: "alice",
			Amount: 1000, RecordedAt: now.Add(-time.Duration(i+1) * time.Hour),
		}))
	}
	alert, err := d.Check(ctx, &model.Expense{
		ID: "spike", GroupID: "g1", MemberID: "alice", Amount: 5000, RecordedAt: now,
	})
	require.NoError(t, err)
	require.Nil(t, alert, "identical history has no defined z-score")
}

func TestRecordAndCheck_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	d := NewDetector(st, notifier.NewNoop())

	now := time.Now().UTC()
	seedHistory(t, st, "alice", 10, now.Add(-20*24*time.Hour))

	spike := &model.Expense{
		ID: "spike", GroupID: "g1", MemberID: "alice", Amount: 1400, RecordedAt: now,
	}
	require.NoError(t, d.RecordAndCheck(ctx, spike))

	// The batch scan re-examines the same expense; it must not re-alert.
	d.ScanSince(ctx, now.Add(-30*24*time.Hour))

	alerts, err := st.ListAnomalyAlerts(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
}
