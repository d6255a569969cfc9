package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRuleEvaluate_Count(t *testing.T) {
	rule := CountRule(2)
	cases := []struct {
		name                  string
		approvals, rejections int
		want                  ApprovalStatus
	}{
		{"no signatures yet", 0, 0, ApprovalPending},
		{"one approval of three", 1, 0, ApprovalPending},
		{"threshold met", 2, 0, ApprovalApproved},
		{"threshold met with a rejection", 2, 1, ApprovalApproved},
		{"unreachable after two rejections", 0, 2, ApprovalRejected},
		{"one approve one reject still open", 1, 1, ApprovalPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := rule.Evaluate(3, tc.approvals, tc.rejections)
			if got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestRuleEvaluate_Percentage(t *testing.T) {
	rule := PercentageRule(decimal.RequireFromString("66.67"))
	cases := []struct {
		name                  string
		signers               int
		approvals, rejections int
		want                  ApprovalStatus
	}{
		{"six of nine meets two thirds", 9, 6, 3, ApprovalApproved},
		{"five of nine still pending", 9, 5, 3, ApprovalPending},
		{"five of nine unreachable", 9, 5, 4, ApprovalRejected},
		{"two of three meets exactly", 3, 2, 0, ApprovalApproved},
		{"one of three unreachable after two rejections", 3, 0, 2, ApprovalRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := rule.Evaluate(tc.signers, tc.approvals, tc.rejections)
			if got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestRuleEvaluate_Unanimous(t *testing.T) {
	rule := UnanimousRule()
	if got := rule.Evaluate(3, 3, 0); got != ApprovalApproved {
		t.Errorf("all approvals: expected APPROVED, got %s", got)
	}
	if got := rule.Evaluate(3, 0, 1); got != ApprovalRejected {
		t.Errorf("single rejection: expected REJECTED, got %s", got)
	}
	if got := rule.Evaluate(3, 2, 0); got != ApprovalPending {
		t.Errorf("partial approvals: expected PENDING, got %s", got)
	}
}

func TestMeets_Boundary(t *testing.T) {
	twoThirds := decimal.RequireFromString("66.67")
	cases := []struct {
		count, total int
		want         bool
	}{
		{6, 9, true},  // 66.666... rounds to 66.67, inclusive
		{5, 9, false}, // 55.56
		{2, 3, true},  // 66.67 exactly after rounding
		{1, 3, false},
		{0, 0, false},
	}
	for _, tc := range cases {
		if got := Meets(twoThirds, tc.count, tc.total); got != tc.want {
			t.Errorf("Meets(66.67, %d, %d): expected %v, got %v", tc.count, tc.total, tc.want, got)
		}
	}
}
