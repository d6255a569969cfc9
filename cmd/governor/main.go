package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"ChamaCore/internal/anomaly"
	"ChamaCore/internal/approval"
	"ChamaCore/internal/config"
	"ChamaCore/internal/distribution"
	"ChamaCore/internal/idlecash"
	"ChamaCore/internal/ledger"
	"ChamaCore/internal/model"
	"ChamaCore/internal/notifier"
	"ChamaCore/internal/proposal"
	"ChamaCore/internal/scheduler"
	"ChamaCore/internal/score"
	"ChamaCore/internal/store"
	"ChamaCore/internal/voting"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] ChamaCore governor starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Init store
	st, err := store.Open(cfg.Database.SQLitePath)
	if err != nil {
		log.Fatalf("[FATAL] open store: %v", err)
	}
	defer st.Close()

	// Init notifier
	var events notifier.Notifier
	if cfg.Notifier.WebhookURL != "" {
		events = notifier.NewWebhookNotifier(cfg.Notifier.WebhookURL)
		log.Printf("[INFO] event sink: webhook %s", cfg.Notifier.WebhookURL)
	} else {
		events = notifier.NewLogNotifier()
		log.Println("[INFO] event sink: process log")
	}

	// Init engines
	coord := ledger.NewCoordinator(st)
	approvals := approval.NewEngine(st, time.Duration(cfg.Governance.ApprovalExpiryHours)*time.Hour)
	epsilon, _ := decimal.NewFromString(cfg.Governance.DistributionEpsilon)
	calc := distribution.NewCalculator(epsilon)
	proposals := proposal.NewEngine(st, coord, approvals, calc, events,
		proposal.FixedRateValuer{RateBps: 1000},
		time.Duration(cfg.Governance.MaturityTermDays)*24*time.Hour)

	investFraction, _ := decimal.NewFromString(cfg.IdleCash.InvestFraction)
	approvalPercent, _ := decimal.NewFromString(cfg.IdleCash.ApprovalPercent)
	idle := idlecash.NewDetector(st, proposals, idlecash.Config{
		MinIdleBalance: cfg.IdleCash.MinIdleBalance,
		StaleAfter:     time.Duration(cfg.IdleCash.StaleAfterDays) * 24 * time.Hour,
		InvestFraction: investFraction,
		OptionID:       cfg.IdleCash.OptionID,
		Rule:           model.PercentageRule(approvalPercent),
		Initiator:      "idle-cash-detector",
	})
	scores := score.NewEngine(st)
	votes := voting.NewEngine(st, events)
	anomalies := anomaly.NewDetector(st, events)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, idle, proposals, scores, votes, anomalies)
	if err := sched.RegisterAll(
		cfg.Schedule.IdleScanCron, cfg.Schedule.ExpiryCron, cfg.Schedule.MaturityCron,
		cfg.Schedule.ScoreCron, cfg.Schedule.VoteCron, cfg.Schedule.AnomalyCron,
	); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing idle cash scan now")
		go sched.RunIdleScanNow()
	}

	log.Println("[INFO] ChamaCore governor is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	log.Println("[INFO] ChamaCore governor stopped")
}
