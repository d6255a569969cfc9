package model

import "time"

// Severity classifies how far outside a member's normal range an expense sits.
type Severity string

const (
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// AnomalyAlert flags a statistical outlier in a member's expense activity.
// Advisory only: nothing in the ledger path consults it.
type AnomalyAlert struct {
	ID         string    `json:"id"`
	SubjectRef string    `json:"subject_ref"`
	MemberID   string    `json:"member_id"`
	Metric     string    `json:"metric"`
	ZScore     float64   `json:"z_score"`
	Severity   Severity  `json:"severity"`
	DetectedAt time.Time `json:"detected_at"`
}
