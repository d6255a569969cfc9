// Package notifier emits governance events to an external delivery
// collaborator. Delivery transport is out of scope; implementations here
// hand events off (webhook JSON, process log) and nothing more.
package notifier

import (
	"context"
	"time"
)

// EventType names the notification events the core emits.
type EventType string

const (
	EventProposalCreated   EventType = "ProposalCreated"
	EventQuorumReached     EventType = "QuorumReached"
	EventProposalExecuted  EventType = "ProposalExecuted"
	EventProfitDistributed EventType = "ProfitDistributed"
	EventAnomalyDetected   EventType = "AnomalyDetected"
	EventVoteClosed        EventType = "VoteClosed"
)

// Event is one notification: subject, actor and timestamp, plus the amount
// where money moved.
type Event struct {
	Type      EventType `json:"type"`
	SubjectID string    `json:"subject_id"`
	GroupID   string    `json:"group_id,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier hands events to the delivery collaborator.
type Notifier interface {
	Publish(ctx context.Context, evt Event) error
}

// Noop discards events, used when no sink is configured.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (n *Noop) Publish(_ context.Context, _ Event) error { return nil }
