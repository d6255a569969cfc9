package model

import "time"

// VoteRule selects the majority threshold for a formal vote.
type VoteRule string

const (
	SimpleMajority VoteRule = "SIMPLE_MAJORITY"
	TwoThirds      VoteRule = "TWO_THIRDS"
	UnanimousVote  VoteRule = "UNANIMOUS"
)

// VoteStatus is OPEN until closure; the result freezes at close time.
type VoteStatus string

const (
	VoteOpen   VoteStatus = "OPEN"
	VoteClosed VoteStatus = "CLOSED"
)

// VoteResult is the outcome computed exactly once at closure.
type VoteResult string

const (
	VoteApproved VoteResult = "APPROVED"
	VoteRejected VoteResult = "REJECTED"
)

// Vote is a formal governance vote over a set of eligible voters.
type Vote struct {
	ID             string     `json:"id"`
	GroupID        string     `json:"group_id"`
	Question       string     `json:"question"`
	Rule           VoteRule   `json:"rule"`
	EligibleVoters []string   `json:"eligible_voters"`
	Status         VoteStatus `json:"status"`
	Result         VoteResult `json:"result,omitempty"`
	YesCount       int        `json:"yes_count"`
	NoCount        int        `json:"no_count"`
	OpenedAt       time.Time  `json:"opened_at"`
	Deadline       time.Time  `json:"deadline"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
}

// BallotChoice is a single yes/no choice.
type BallotChoice string

const (
	ChoiceYes BallotChoice = "YES"
	ChoiceNo  BallotChoice = "NO"
)

// Ballot is one cast vote. A proxy ballot carries the delegating member in
// ProxyFor; delegation depth is capped at one.
type Ballot struct {
	VoteID   string       `json:"vote_id"`
	VoterID  string       `json:"voter_id"`
	Choice   BallotChoice `json:"choice"`
	IsProxy  bool         `json:"is_proxy"`
	ProxyFor string       `json:"proxy_for,omitempty"`
	CastAt   time.Time    `json:"cast_at"`
}
