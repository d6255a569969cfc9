package model

import "time"

// MemberCounters are the historical counters a credit score is derived from.
// They come from a consistent read snapshot; scoring never mutates them.
type MemberCounters struct {
	MemberID              string
	ActualContributions   int
	ExpectedContributions int
	OnTimeRepaidLoans     int
	TotalLoans            int
	AttendedMeetings      int
	TotalMeetings         int
	DaysActive            int
}

// ComponentScore is one weighted term of a credit score.
type ComponentScore struct {
	Name     string  `json:"name"`
	Raw      float64 `json:"raw"`
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"`
}

// CreditScoreRecord is a reproducible per-member reliability score in 0..100
// with its component breakdown.
type CreditScoreRecord struct {
	MemberID   string           `json:"member_id"`
	Score      float64          `json:"score"`
	Components []ComponentScore `json:"components"`
	ComputedAt time.Time        `json:"computed_at"`
}
