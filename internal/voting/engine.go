// Package voting runs formal governance votes. Threshold evaluation reuses
// the shared quorum math in model; voting adds proxy delegation and a
// close-once result.
package voting

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ChamaCore/internal/errs"
	"ChamaCore/internal/model"
	"ChamaCore/internal/notifier"
	"ChamaCore/internal/store"
)

var twoThirds = decimal.RequireFromString("66.67")

// Engine manages votes and ballots.
type Engine struct {
	store    *store.Store
	notifier notifier.Notifier

	// mu serializes the proxy-rule checks and the closing tally against
	// ballot insertion.
	mu sync.Mutex
}

// NewEngine creates a voting Engine.
func NewEngine(st *store.Store, n notifier.Notifier) *Engine {
	return &Engine{store: st, notifier: n}
}

// Open starts a vote over the given eligible voters.
func (e *Engine) Open(ctx context.Context, groupID, question string, rule model.VoteRule, voters []string, deadline time.Time) (*model.Vote, error) {
	if len(voters) == 0 {
		return nil, errs.New(errs.CodeValidation, "eligible voter set is empty")
	}
	switch rule {
	case model.SimpleMajority, model.TwoThirds, model.UnanimousVote:
	default:
		return nil, errs.New(errs.CodeValidation, "unknown vote rule %q", rule)
	}
	v := &model.Vote{
		ID:             uuid.NewString(),
		GroupID:        groupID,
		Question:       question,
		Rule:           rule,
		EligibleVoters: voters,
		Status:         model.VoteOpen,
		OpenedAt:       time.Now().UTC(),
		Deadline:       deadline,
	}
	if err := e.store.InsertVote(ctx, v); err != nil {
		return nil, err
	}
	log.Printf("[INFO] vote %s opened: %q (%s, %d voters)", v.ID, question, rule, len(voters))
	return v, nil
}

// CastBallot records a ballot. When proxyFor is set the ballot is cast on
// behalf of that member: delegation depth is capped at one and a voter may
// hold at most one proxy besides their own ballot.
func (e *Engine) CastBallot(ctx context.Context, voteID, voterID string, choice model.BallotChoice, proxyFor string) error {
	if choice != model.ChoiceYes && choice != model.ChoiceNo {
		return errs.New(errs.CodeValidation, "unknown choice %q", choice)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.store.GetVote(ctx, voteID)
	if err != nil {
		return err
	}
	if v.Status != model.VoteOpen {
		return errs.New(errs.CodeInvalidTransition, "vote %s is closed", voteID)
	}
	now := time.Now().UTC()
	if now.After(v.Deadline) {
		return errs.New(errs.CodeRequestExpired, "vote %s deadline passed", voteID)
	}
	if !eligible(v, voterID) {
		return errs.New(errs.CodeUnauthorizedSigner, "%s is not eligible on vote %s", voterID, voteID)
	}

	countedFor := voterID
	isProxy := proxyFor != ""
	if isProxy {
		if proxyFor == voterID {
			return errs.New(errs.CodeValidation, "cannot hold a proxy for yourself")
		}
		if !eligible(v, proxyFor) {
			return errs.New(errs.CodeUnauthorizedSigner, "%s is not eligible on vote %s", proxyFor, voteID)
		}
		ballots, err := e.store.ListBallots(ctx, voteID)
		if err != nil {
			return err
		}
		for _, b := range ballots {
			// One proxy per holder.
			if b.VoterID == voterID && b.IsProxy {
				return errs.New(errs.CodeValidation, "%s already holds a proxy on vote %s", voterID, voteID)
			}
			// No chained delegation: a member counted through a proxy
			// cannot act as a holder, and a holder's own vote cannot be
			// delegated onward.
			if b.ProxyFor == voterID {
				return errs.New(errs.CodeValidation, "%s has delegated their vote and cannot hold a proxy", voterID)
			}
			if b.VoterID == proxyFor && b.IsProxy {
				return errs.New(errs.CodeValidation, "%s holds a proxy and cannot delegate", proxyFor)
			}
		}
		countedFor = proxyFor
	}

	b := &model.Ballot{
		VoteID:   voteID,
		VoterID:  voterID,
		Choice:   choice,
		IsProxy:  isProxy,
		ProxyFor: proxyFor,
		CastAt:   now,
	}
	return e.store.InsertBallot(ctx, b, countedFor)
}

func eligible(v *model.Vote, memberID string) bool {
	for _, m := range v.EligibleVoters {
		if m == memberID {
			return true
		}
	}
	return false
}

// Close tallies the ballots and freezes the result. The computation happens
// exactly once; closing an already-closed vote is InvalidTransition. Holds
// e.mu so no ballot that passed its OPEN check can land between the tally
// and the closure.
func (e *Engine) Close(ctx context.Context, voteID string, now time.Time) (*model.Vote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.store.GetVote(ctx, voteID)
	if err != nil {
		return nil, err
	}
	ballots, err := e.store.ListBallots(ctx, voteID)
	if err != nil {
		return nil, err
	}
	yes, no := 0, 0
	for _, b := range ballots {
		if b.Choice == model.ChoiceYes {
			yes++
		} else {
			no++
		}
	}
	result := evaluate(v.Rule, yes, no)
	if err := e.store.CloseVote(ctx, voteID, result, yes, no, now); err != nil {
		return nil, err
	}
	if err := e.notifier.Publish(ctx, notifier.Event{
		Type: notifier.EventVoteClosed, SubjectID: voteID, GroupID: v.GroupID,
		Detail: string(result), At: now,
	}); err != nil {
		log.Printf("[ERROR] publish vote closed event: %v", err)
	}
	log.Printf("[INFO] vote %s closed: %s (%d yes / %d no)", voteID, result, yes, no)
	closed, err := e.store.GetVote(ctx, voteID)
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// evaluate applies the majority rule over cast ballots. SIMPLE_MAJORITY is
// strictly more than half; TWO_THIRDS is an inclusive 66.67%; UNANIMOUS
// requires every cast ballot to be yes.
func evaluate(rule model.VoteRule, yes, no int) model.VoteResult {
	cast := yes + no
	if cast == 0 {
		return model.VoteRejected
	}
	switch rule {
	case model.SimpleMajority:
		if yes*2 > cast {
			return model.VoteApproved
		}
	case model.TwoThirds:
		if model.Meets(twoThirds, yes, cast) {
			return model.VoteApproved
		}
	case model.UnanimousVote:
		if no == 0 {
			return model.VoteApproved
		}
	}
	return model.VoteRejected
}

// CloseDue closes every open vote whose deadline has passed.
func (e *Engine) CloseDue(ctx context.Context, now time.Time) {
	ids, err := e.store.ListVotesDue(ctx, now)
	if err != nil {
		log.Printf("[ERROR] vote deadline sweep: %v", err)
		return
	}
	for _, id := range ids {
		if _, err := e.Close(ctx, id, now); err != nil {
			log.Printf("[ERROR] close vote %s: %v", id, err)
		}
	}
}
