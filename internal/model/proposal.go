package model

import "time"

// ProposalStatus is the lifecycle state of an investment proposal.
type ProposalStatus string

const (
	ProposalPendingApproval ProposalStatus = "PENDING_APPROVAL"
	ProposalApproved        ProposalStatus = "APPROVED"
	ProposalRejected        ProposalStatus = "REJECTED"
	ProposalExpired         ProposalStatus = "EXPIRED"
	ProposalExecuting       ProposalStatus = "EXECUTING"
	ProposalActive          ProposalStatus = "ACTIVE"
	ProposalMatured         ProposalStatus = "MATURED"
	ProposalFailed          ProposalStatus = "FAILED"
	ProposalCancelled       ProposalStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
func (s ProposalStatus) Terminal() bool {
	switch s {
	case ProposalRejected, ProposalExpired, ProposalMatured, ProposalFailed, ProposalCancelled:
		return true
	}
	return false
}

// InvestmentProposal is a request to move pooled funds into an investment
// option. Terminal proposals are retained for audit, never deleted.
type InvestmentProposal struct {
	ID           string         `json:"id"`
	GroupID      string         `json:"group_id"`
	Amount       int64          `json:"amount"`
	OptionID     string         `json:"option_id"`
	InitiatorID  string         `json:"initiator_id"`
	Status       ProposalStatus `json:"status"`
	FailReason   string         `json:"fail_reason,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	ExecutedAt   *time.Time     `json:"executed_at,omitempty"`
	MaturityDate *time.Time     `json:"maturity_date,omitempty"`
}

// InvestmentStatus mirrors the proposal's post-execution phase.
type InvestmentStatus string

const (
	InvestmentActive  InvestmentStatus = "ACTIVE"
	InvestmentMatured InvestmentStatus = "MATURED"
)

// Investment is the executed counterpart of an approved proposal. The
// coordinator creates it in the same transaction as the pool debit.
type Investment struct {
	ID              string           `json:"id"`
	ProposalID      string           `json:"proposal_id"`
	GroupID         string           `json:"group_id"`
	PrincipalAmount int64            `json:"principal_amount"`
	MaturityAmount  *int64           `json:"maturity_amount,omitempty"`
	Status          InvestmentStatus `json:"status"`
	ExecutedAt      time.Time        `json:"executed_at"`
	MaturedAt       *time.Time       `json:"matured_at,omitempty"`
}

// WealthReport is one member's slice of a matured investment's profit or
// loss. Amounts over one investment always sum to maturity minus principal.
type WealthReport struct {
	InvestmentID  string    `json:"investment_id"`
	MemberID      string    `json:"member_id"`
	ProfitAmount  int64     `json:"profit_amount"`
	DistributedAt time.Time `json:"distributed_at"`
}

// WealthShare is a computed per-member distribution amount, the input to the
// coordinator's profit credit.
type WealthShare struct {
	MemberID string
	Amount   int64
}
