// Package scheduler registers the periodic governance jobs: idle-cash
// scanning, approval expiry, maturity distribution, score recomputation and
// vote deadline closure.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"ChamaCore/internal/anomaly"
	"ChamaCore/internal/idlecash"
	"ChamaCore/internal/proposal"
	"ChamaCore/internal/score"
	"ChamaCore/internal/voting"
)

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron      *cron.Cron
	IdleCash  *idlecash.Detector
	Proposals *proposal.Engine
	Scores    *score.Engine
	Votes     *voting.Engine
	Anomalies *anomaly.Detector
	Ctx       context.Context
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, ic *idlecash.Detector, pe *proposal.Engine, se *score.Engine, ve *voting.Engine, ad *anomaly.Detector) *Scheduler {
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		IdleCash:  ic,
		Proposals: pe,
		Scores:    se,
		Votes:     ve,
		Anomalies: ad,
		Ctx:       ctx,
	}
}

// RegisterAll registers every periodic job.
func (s *Scheduler) RegisterAll(idleCron, expiryCron, maturityCron, scoreCron, voteCron, anomalyCron string) error {
	if _, err := s.Cron.AddFunc(idleCron, s.idleScanTask); err != nil {
		return fmt.Errorf("register idle scan: %w", err)
	}
	if _, err := s.Cron.AddFunc(expiryCron, s.expiryTask); err != nil {
		return fmt.Errorf("register expiry sweep: %w", err)
	}
	if _, err := s.Cron.AddFunc(maturityCron, s.maturityTask); err != nil {
		return fmt.Errorf("register maturity sweep: %w", err)
	}
	if _, err := s.Cron.AddFunc(scoreCron, s.scoreTask); err != nil {
		return fmt.Errorf("register score recompute: %w", err)
	}
	if _, err := s.Cron.AddFunc(voteCron, s.voteTask); err != nil {
		return fmt.Errorf("register vote sweep: %w", err)
	}
	if _, err := s.Cron.AddFunc(anomalyCron, s.anomalyTask); err != nil {
		return fmt.Errorf("register anomaly scan: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] scheduler stopped")
}

// RunIdleScanNow executes the idle cash scan immediately (for RUN_ON_START).
func (s *Scheduler) RunIdleScanNow() {
	s.idleScanTask()
}

func (s *Scheduler) idleScanTask() {
	log.Println("[INFO] running idle cash scan")
	s.IdleCash.ScanAll(s.Ctx, time.Now().UTC())
}

func (s *Scheduler) expiryTask() {
	if err := s.Proposals.SweepExpired(s.Ctx, time.Now().UTC()); err != nil {
		log.Printf("[ERROR] expiry sweep: %v", err)
	}
}

func (s *Scheduler) maturityTask() {
	log.Println("[INFO] running maturity sweep")
	if err := s.Proposals.SweepMatured(s.Ctx, time.Now().UTC()); err != nil {
		log.Printf("[ERROR] maturity sweep: %v", err)
	}
}

func (s *Scheduler) scoreTask() {
	log.Println("[INFO] running credit score recompute")
	s.Scores.RecomputeAll(s.Ctx, time.Now().UTC())
}

func (s *Scheduler) voteTask() {
	s.Votes.CloseDue(s.Ctx, time.Now().UTC())
}

func (s *Scheduler) anomalyTask() {
	log.Println("[INFO] running anomaly scan")
	s.Anomalies.ScanSince(s.Ctx, time.Now().UTC().Add(-24*time.Hour))
}
