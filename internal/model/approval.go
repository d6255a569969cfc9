package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubjectType tags what an approval request is about. The evaluator never
// branches on it; only the lifecycle wiring differs per subject.
type SubjectType string

const (
	SubjectInvestment   SubjectType = "INVESTMENT"
	SubjectDisbursement SubjectType = "DISBURSEMENT"
	SubjectExpense      SubjectType = "EXPENSE"
)

// Subject identifies the thing awaiting approval.
type Subject struct {
	Type SubjectType `json:"type"`
	ID   string      `json:"id"`
}

// RuleKind selects the quorum evaluation variant.
type RuleKind string

const (
	RuleCount      RuleKind = "COUNT"
	RulePercentage RuleKind = "PERCENTAGE"
	RuleUnanimous  RuleKind = "UNANIMOUS"
)

// Rule is a closed quorum rule: COUNT(n), PERCENTAGE(p) or UNANIMOUS.
type Rule struct {
	Kind    RuleKind        `json:"kind"`
	N       int             `json:"n,omitempty"`
	Percent decimal.Decimal `json:"percent,omitempty"`
}

// CountRule requires at least n APPROVE signatures.
func CountRule(n int) Rule { return Rule{Kind: RuleCount, N: n} }

// PercentageRule requires approvals from at least p percent of signers.
func PercentageRule(p decimal.Decimal) Rule { return Rule{Kind: RulePercentage, Percent: p} }

// UnanimousRule requires every signer to approve.
func UnanimousRule() Rule { return Rule{Kind: RuleUnanimous} }

// Evaluate applies the rule to the current tally. It terminates early in
// both directions: APPROVED as soon as the threshold is met, REJECTED as
// soon as the remaining unsigned signers could no longer reach it.
func (r Rule) Evaluate(signers, approvals, rejections int) ApprovalStatus {
	remaining := signers - approvals - rejections

	switch r.Kind {
	case RuleCount:
		if approvals >= r.N {
			return ApprovalApproved
		}
		if approvals+remaining < r.N {
			return ApprovalRejected
		}
	case RulePercentage:
		if Meets(r.Percent, approvals, signers) {
			return ApprovalApproved
		}
		// Even if every remaining signer approves the rule cannot be met.
		if !Meets(r.Percent, approvals+remaining, signers) {
			return ApprovalRejected
		}
	case RuleUnanimous:
		if rejections > 0 {
			return ApprovalRejected
		}
		if approvals == signers {
			return ApprovalApproved
		}
	}
	return ApprovalPending
}

// Meets reports whether count out of total satisfies an inclusive
// percentage threshold. The ratio is rounded to two decimal places before
// comparison so that thresholds expressed as 66.67 accept 6 of 9. The
// voting engine reuses this for its majority rules.
func Meets(threshold decimal.Decimal, count, total int) bool {
	if total == 0 {
		return false
	}
	ratio := decimal.NewFromInt(int64(count * 100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2)
	return ratio.GreaterThanOrEqual(threshold)
}

// ApprovalStatus is the state of an approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
	ApprovalExpired  ApprovalStatus = "EXPIRED"
)

// ApprovalRequest collects signatures for one subject under one rule.
type ApprovalRequest struct {
	ID              string         `json:"id"`
	Subject         Subject        `json:"subject"`
	RequiredSigners []string       `json:"required_signers"`
	Rule            Rule           `json:"rule"`
	Status          ApprovalStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	ExpiresAt       time.Time      `json:"expires_at"`
}

// Decision is a signer's verdict.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// Signature is one signer's immutable decision on a request. At most one
// exists per (request, approver), enforced by the store.
type Signature struct {
	RequestID  string    `json:"request_id"`
	ApproverID string    `json:"approver_id"`
	Decision   Decision  `json:"decision"`
	SignedAt   time.Time `json:"signed_at"`
}
