package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"ChamaCore/internal/errs"
	"ChamaCore/internal/model"
)

// UpsertMember mirrors a member record from the platform's CRUD layer. The
// governance core only reads it for batch iteration and tenure.
func (s *Store) UpsertMember(ctx context.Context, groupID, memberID string, joinedAt time.Time, active bool) error {
	act := 0
	if active {
		act = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (member_id, group_id, joined_at, active) VALUES (?,?,?,?)
		 ON CONFLICT(group_id, member_id) DO UPDATE SET active = excluded.active`,
		memberID, groupID, joinedAt.Unix(), act)
	return err
}

// ListActiveMembers returns the active member ids of a group.
func (s *Store) ListActiveMembers(ctx context.Context, groupID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member_id FROM members WHERE group_id = ? AND active = 1 ORDER BY member_id`,
		groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecordLoan stores a loan outcome used by the repayment score component.
func (s *Store) RecordLoan(ctx context.Context, id, groupID, memberID string, amount int64, repaid, repaidLate bool, disbursedAt time.Time) error {
	r, l := 0, 0
	if repaid {
		r = 1
	}
	if repaidLate {
		l = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO loans (id, group_id, member_id, amount, repaid, repaid_late, disbursed_at)
		 VALUES (?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET repaid = excluded.repaid, repaid_late = excluded.repaid_late`,
		id, groupID, memberID, amount, r, l, disbursedAt.Unix())
	return err
}

// RecordAttendance stores one member's attendance at one meeting.
func (s *Store) RecordAttendance(ctx context.Context, meetingID, groupID, memberID string, attended bool, heldAt time.Time) error {
	a := 0
	if attended {
		a = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meeting_attendance (meeting_id, group_id, member_id, attended, held_at)
		 VALUES (?,?,?,?,?)
		 ON CONFLICT(meeting_id, member_id) DO UPDATE SET attended = excluded.attended`,
		meetingID, groupID, memberID, a, heldAt.Unix())
	return err
}

// MemberCounters assembles the historical counters the credit score is
// derived from, as of now. Expected contributions are counted as one per
// calendar month of membership.
func (s *Store) MemberCounters(ctx context.Context, groupID, memberID string, now time.Time) (*model.MemberCounters, error) {
	var joined int64
	row := s.db.QueryRowContext(ctx,
		`SELECT joined_at FROM members WHERE group_id = ? AND member_id = ?`, groupID, memberID)
	if err := row.Scan(&joined); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.New(errs.CodeNotFound, "member %s in group %s", memberID, groupID)
		}
		return nil, err
	}
	joinedAt := time.Unix(joined, 0).UTC()

	c := &model.MemberCounters{MemberID: memberID}
	c.DaysActive = int(now.Sub(joinedAt).Hours() / 24)
	if c.DaysActive < 0 {
		c.DaysActive = 0
	}
	months := (now.Year()-joinedAt.Year())*12 + int(now.Month()) - int(joinedAt.Month())
	if months < 0 {
		months = 0
	}
	c.ExpectedContributions = months

	row = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contributions WHERE group_id = ? AND member_id = ?`, groupID, memberID)
	if err := row.Scan(&c.ActualContributions); err != nil {
		return nil, err
	}

	row = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COUNT(CASE WHEN repaid = 1 AND repaid_late = 0 THEN 1 END)
		 FROM loans WHERE group_id = ? AND member_id = ?`, groupID, memberID)
	if err := row.Scan(&c.TotalLoans, &c.OnTimeRepaidLoans); err != nil {
		return nil, err
	}

	row = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(CASE WHEN attended = 1 THEN 1 END)
		 FROM meeting_attendance WHERE group_id = ? AND member_id = ?`, groupID, memberID)
	if err := row.Scan(&c.TotalMeetings, &c.AttendedMeetings); err != nil {
		return nil, err
	}
	return c, nil
}

// InsertCreditScore appends a computed score record.
func (s *Store) InsertCreditScore(ctx context.Context, rec *model.CreditScoreRecord) error {
	components, err := json.Marshal(rec.Components)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO credit_scores (member_id, score, components, computed_at) VALUES (?,?,?,?)`,
		rec.MemberID, rec.Score, string(components), rec.ComputedAt.Unix())
	return err
}

// LatestCreditScore returns the most recent score record for a member.
func (s *Store) LatestCreditScore(ctx context.Context, memberID string) (*model.CreditScoreRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT member_id, score, components, computed_at FROM credit_scores
		 WHERE member_id = ? ORDER BY computed_at DESC LIMIT 1`, memberID)
	var rec model.CreditScoreRecord
	var components string
	var at int64
	if err := row.Scan(&rec.MemberID, &rec.Score, &components, &at); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.New(errs.CodeNotFound, "no score for member %s", memberID)
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(components), &rec.Components); err != nil {
		return nil, err
	}
	rec.ComputedAt = time.Unix(at, 0).UTC()
	return &rec, nil
}

// InsertAnomalyAlert appends an advisory alert.
func (s *Store) InsertAnomalyAlert(ctx context.Context, a *model.AnomalyAlert) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO anomaly_alerts (id, subject_ref, member_id, metric, z_score, severity, detected_at)
		 VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.SubjectRef, a.MemberID, a.Metric, a.ZScore, a.Severity, a.DetectedAt.Unix())
	return err
}

// HasAnomalyAlert reports whether an alert already exists for a subject,
// keeping repeated scans idempotent.
func (s *Store) HasAnomalyAlert(ctx context.Context, subjectRef string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM anomaly_alerts WHERE subject_ref = ?`, subjectRef)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListAnomalyAlerts returns alerts for a member, newest first.
func (s *Store) ListAnomalyAlerts(ctx context.Context, memberID string) ([]model.AnomalyAlert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_ref, member_id, metric, z_score, severity, detected_at
		 FROM anomaly_alerts WHERE member_id = ? ORDER BY detected_at DESC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AnomalyAlert
	for rows.Next() {
		var a model.AnomalyAlert
		var at int64
		if err := rows.Scan(&a.ID, &a.SubjectRef, &a.MemberID, &a.Metric, &a.ZScore, &a.Severity, &at); err != nil {
			return nil, err
		}
		a.DetectedAt = time.Unix(at, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
