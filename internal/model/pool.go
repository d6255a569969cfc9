package model

import "time"

// GroupPool is the pooled balance of one chama group.
// Balance is in the smallest currency unit and never goes negative.
type GroupPool struct {
	GroupID   string    `json:"group_id"`
	Balance   int64     `json:"balance"`
	LastTxAt  time.Time `json:"last_tx_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Contribution is a member deposit into a group pool.
type Contribution struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"group_id"`
	MemberID   string    `json:"member_id"`
	Amount     int64     `json:"amount"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Expense is a spend against a group pool, the input stream for anomaly scanning.
type Expense struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"group_id"`
	MemberID   string    `json:"member_id"`
	Amount     int64     `json:"amount"`
	RecordedAt time.Time `json:"recorded_at"`
}
