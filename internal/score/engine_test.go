package score

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"ChamaCore/internal/model"
	"ChamaCore/internal/store"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCompute_FullMarks(t *testing.T) {
	c := &model.MemberCounters{
		MemberID:              "alice",
		ActualContributions:   12,
		ExpectedContributions: 12,
		OnTimeRepaidLoans:     2,
		TotalLoans:            2,
		AttendedMeetings:      10,
		TotalMeetings:         10,
		DaysActive:            365,
	}
	rec := Compute(c, time.Now().UTC())
	if !almostEqual(rec.Score, 100) {
		t.Errorf("expected 100, got %.4f", rec.Score)
	}
	if len(rec.Components) != 4 {
		t.Fatalf("expected 4 components, got %d", len(rec.Components))
	}
}

func TestCompute_WeightedComponents(t *testing.T) {
	c := &model.MemberCounters{
		MemberID:              "bob",
		ActualContributions:   5,
		ExpectedContributions: 10, // 0.5
		OnTimeRepaidLoans:     3,
		TotalLoans:            4, // 0.75
		AttendedMeetings:      8,
		TotalMeetings:         10, // 0.8
		DaysActive:            730, // capped at 1.0
	}
	rec := Compute(c, time.Now().UTC())
	// 0.5*0.4 + 0.75*0.3 + 0.8*0.2 + 1.0*0.1 = 0.685
	if !almostEqual(rec.Score, 68.5) {
		t.Errorf("expected 68.5, got %.4f", rec.Score)
	}
	wantRaw := map[string]float64{"regularity": 0.5, "repayment": 0.75, "attendance": 0.8, "tenure": 1.0}
	for _, comp := range rec.Components {
		if !almostEqual(comp.Raw, wantRaw[comp.Name]) {
			t.Errorf("%s: expected raw %.2f, got %.4f", comp.Name, wantRaw[comp.Name], comp.Raw)
		}
		if !almostEqual(comp.Weighted, comp.Raw*comp.Weight) {
			t.Errorf("%s: weighted %.4f != raw*weight", comp.Name, comp.Weighted)
		}
	}
}

func TestCompute_NoHistoryDefaults(t *testing.T) {
	// No loans and no meetings score full marks instead of penalizing
	// members who never borrowed or had no meetings to attend.
	c := &model.MemberCounters{
		MemberID:              "carol",
		ActualContributions:   6,
		ExpectedContributions: 6,
		DaysActive:            365,
	}
	rec := Compute(c, time.Now().UTC())
	if !almostEqual(rec.Score, 100) {
		t.Errorf("expected 100 with defaulted components, got %.4f", rec.Score)
	}
}

func TestCompute_RegularityCapped(t *testing.T) {
	// Contributing more than expected does not score above 1.
	c := &model.MemberCounters{
		MemberID:              "dan",
		ActualContributions:   20,
		ExpectedContributions: 10,
		DaysActive:            365,
	}
	rec := Compute(c, time.Now().UTC())
	if !almostEqual(rec.Score, 100) {
		t.Errorf("expected capped 100, got %.4f", rec.Score)
	}
}

func TestCompute_TenureRampsUp(t *testing.T) {
	c := &model.MemberCounters{
		MemberID:              "eve",
		ActualContributions:   1,
		ExpectedContributions: 1,
		DaysActive:            0,
	}
	rec := Compute(c, time.Now().UTC())
	// Only tenure is below full: 0.4 + 0.3 + 0.2 + 0 = 0.9
	if !almostEqual(rec.Score, 90) {
		t.Errorf("expected 90 for a brand new member, got %.4f", rec.Score)
	}
}

func TestRecomputeGroup(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	now := time.Now().UTC()
	joined := now.AddDate(0, -6, 0)
	if err := st.UpsertMember(ctx, "g1", "alice", joined, true); err != nil {
		t.Fatalf("upsert member: %v", err)
	}
	if err := st.RecordLoan(ctx, "l1", "g1", "alice", 10000, true, false, joined); err != nil {
		t.Fatalf("record loan: %v", err)
	}
	if err := st.RecordAttendance(ctx, "mtg1", "g1", "alice", true, joined); err != nil {
		t.Fatalf("record attendance: %v", err)
	}

	eng := NewEngine(st)
	if err := eng.RecomputeGroup(ctx, "g1", now); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	rec, err := st.LatestCreditScore(ctx, "alice")
	if err != nil {
		t.Fatalf("latest score: %v", err)
	}
	if rec.Score < 0 || rec.Score > 100 {
		t.Errorf("score %.2f outside [0,100]", rec.Score)
	}
	if len(rec.Components) != 4 {
		t.Errorf("expected 4 persisted components, got %d", len(rec.Components))
	}
}
