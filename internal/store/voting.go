package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"ChamaCore/internal/errs"
	"ChamaCore/internal/model"
)

// InsertVote stores a newly opened vote.
func (s *Store) InsertVote(ctx context.Context, v *model.Vote) error {
	voters, err := json.Marshal(v.EligibleVoters)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO votes (id, group_id, question, rule, eligible_voters, status, opened_at, deadline)
		 VALUES (?,?,?,?,?,?,?,?)`,
		v.ID, v.GroupID, v.Question, v.Rule, string(voters), v.Status,
		v.OpenedAt.Unix(), v.Deadline.Unix())
	return err
}

// GetVote loads a vote by id.
func (s *Store) GetVote(ctx context.Context, id string) (*model.Vote, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, question, rule, eligible_voters, status, result, yes_count, no_count, opened_at, deadline, closed_at
		 FROM votes WHERE id = ?`, id)
	var v model.Vote
	var voters, result string
	var opened, deadline int64
	var closed sql.NullInt64
	err := row.Scan(&v.ID, &v.GroupID, &v.Question, &v.Rule, &voters, &v.Status,
		&result, &v.YesCount, &v.NoCount, &opened, &deadline, &closed)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.New(errs.CodeNotFound, "vote %s", id)
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(voters), &v.EligibleVoters); err != nil {
		return nil, err
	}
	v.Result = model.VoteResult(result)
	v.OpenedAt = time.Unix(opened, 0).UTC()
	v.Deadline = time.Unix(deadline, 0).UTC()
	if closed.Valid {
		t := time.Unix(closed.Int64, 0).UTC()
		v.ClosedAt = &t
	}
	return &v, nil
}

// InsertBallot stores a ballot. countedFor is the member the ballot counts
// for (the voter, or the delegator on a proxy ballot); the primary key on
// (vote_id, counted_for) makes double counting a constraint violation.
func (s *Store) InsertBallot(ctx context.Context, b *model.Ballot, countedFor string) error {
	isProxy := 0
	if b.IsProxy {
		isProxy = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ballots (vote_id, voter_id, choice, is_proxy, proxy_for, counted_for, cast_at)
		 VALUES (?,?,?,?,?,?,?)`,
		b.VoteID, b.VoterID, b.Choice, isProxy, b.ProxyFor, countedFor, b.CastAt.Unix())
	if isUniqueViolation(err) {
		return errs.New(errs.CodeDuplicateSignature, "ballot already counted for %s", countedFor)
	}
	return err
}

// ListBallots returns the ballots cast on a vote.
func (s *Store) ListBallots(ctx context.Context, voteID string) ([]model.Ballot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT vote_id, voter_id, choice, is_proxy, proxy_for, cast_at
		 FROM ballots WHERE vote_id = ? ORDER BY cast_at`, voteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Ballot
	for rows.Next() {
		var b model.Ballot
		var isProxy int
		var at int64
		if err := rows.Scan(&b.VoteID, &b.VoterID, &b.Choice, &isProxy, &b.ProxyFor, &at); err != nil {
			return nil, err
		}
		b.IsProxy = isProxy == 1
		b.CastAt = time.Unix(at, 0).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// CloseVote freezes the result. Conditional on OPEN so the result is
// computed and committed exactly once.
func (s *Store) CloseVote(ctx context.Context, id string, result model.VoteResult, yes, no int, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE votes SET status = ?, result = ?, yes_count = ?, no_count = ?, closed_at = ?
		 WHERE id = ? AND status = ?`,
		model.VoteClosed, result, yes, no, at.Unix(), id, model.VoteOpen)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.New(errs.CodeInvalidTransition, "vote %s is not OPEN", id)
	}
	return nil
}

// ListVotesDue returns open votes whose deadline has passed.
func (s *Store) ListVotesDue(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM votes WHERE status = ? AND deadline <= ?`, model.VoteOpen, now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
