package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Notifier struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"notifier"`
	Schedule struct {
		IdleScanCron string `yaml:"idle_scan_cron"`
		ExpiryCron   string `yaml:"expiry_cron"`
		MaturityCron string `yaml:"maturity_cron"`
		ScoreCron    string `yaml:"score_cron"`
		VoteCron     string `yaml:"vote_cron"`
		AnomalyCron  string `yaml:"anomaly_cron"`
	} `yaml:"schedule"`
	Governance struct {
		ApprovalExpiryHours int    `yaml:"approval_expiry_hours"`
		MaturityTermDays    int    `yaml:"maturity_term_days"`
		DistributionEpsilon string `yaml:"distribution_epsilon"`
	} `yaml:"governance"`
	IdleCash struct {
		MinIdleBalance  int64  `yaml:"min_idle_balance"`
		StaleAfterDays  int    `yaml:"stale_after_days"`
		InvestFraction  string `yaml:"invest_fraction"`
		OptionID        string `yaml:"option_id"`
		ApprovalPercent string `yaml:"approval_percent"`
	} `yaml:"idle_cash"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("NOTIFIER_WEBHOOK_URL"); v != "" {
		cfg.Notifier.WebhookURL = v
	}
	if v := os.Getenv("CRON_IDLE_SCAN"); v != "" {
		cfg.Schedule.IdleScanCron = v
	}
	if v := os.Getenv("CRON_EXPIRY"); v != "" {
		cfg.Schedule.ExpiryCron = v
	}
	if v := os.Getenv("CRON_MATURITY"); v != "" {
		cfg.Schedule.MaturityCron = v
	}
	if v := os.Getenv("CRON_SCORE"); v != "" {
		cfg.Schedule.ScoreCron = v
	}
	if v := os.Getenv("CRON_VOTE"); v != "" {
		cfg.Schedule.VoteCron = v
	}
	if v := os.Getenv("CRON_ANOMALY"); v != "" {
		cfg.Schedule.AnomalyCron = v
	}
	if v := os.Getenv("APPROVAL_EXPIRY_HOURS"); v != "" {
		var hours int
		if _, err := fmt.Sscanf(v, "%d", &hours); err == nil {
			cfg.Governance.ApprovalExpiryHours = hours
		}
	}

	// Defaults
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/chama_core.db"
	}
	if cfg.Schedule.IdleScanCron == "" {
		cfg.Schedule.IdleScanCron = "0 0 7 * * *"
	}
	if cfg.Schedule.ExpiryCron == "" {
		cfg.Schedule.ExpiryCron = "0 */15 * * * *"
	}
	if cfg.Schedule.MaturityCron == "" {
		cfg.Schedule.MaturityCron = "0 30 7 * * *"
	}
	if cfg.Schedule.ScoreCron == "" {
		cfg.Schedule.ScoreCron = "0 0 2 1 * *"
	}
	if cfg.Schedule.VoteCron == "" {
		cfg.Schedule.VoteCron = "0 */30 * * * *"
	}
	if cfg.Schedule.AnomalyCron == "" {
		cfg.Schedule.AnomalyCron = "0 0 22 * * *"
	}
	if cfg.Governance.ApprovalExpiryHours == 0 {
		cfg.Governance.ApprovalExpiryHours = 72
	}
	if cfg.Governance.MaturityTermDays == 0 {
		cfg.Governance.MaturityTermDays = 90
	}
	if cfg.Governance.DistributionEpsilon == "" {
		cfg.Governance.DistributionEpsilon = "0.001"
	}
	if cfg.IdleCash.MinIdleBalance == 0 {
		cfg.IdleCash.MinIdleBalance = 1000000
	}
	if cfg.IdleCash.StaleAfterDays == 0 {
		cfg.IdleCash.StaleAfterDays = 30
	}
	if cfg.IdleCash.InvestFraction == "" {
		cfg.IdleCash.InvestFraction = "0.5"
	}
	if cfg.IdleCash.OptionID == "" {
		cfg.IdleCash.OptionID = "money-market-default"
	}
	if cfg.IdleCash.ApprovalPercent == "" {
		cfg.IdleCash.ApprovalPercent = "60"
	}

	return cfg, nil
}

// Validate checks that all required fields parse.
func (c *Config) Validate() error {
	if c.Database.SQLitePath == "" {
		return fmt.Errorf("database.sqlite_path is required")
	}
	if c.Governance.ApprovalExpiryHours <= 0 {
		return fmt.Errorf("governance.approval_expiry_hours must be positive")
	}
	if c.Governance.MaturityTermDays <= 0 {
		return fmt.Errorf("governance.maturity_term_days must be positive")
	}
	if _, err := decimal.NewFromString(c.Governance.DistributionEpsilon); err != nil {
		return fmt.Errorf("governance.distribution_epsilon: %w", err)
	}
	frac, err := decimal.NewFromString(c.IdleCash.InvestFraction)
	if err != nil {
		return fmt.Errorf("idle_cash.invest_fraction: %w", err)
	}
	if frac.LessThanOrEqual(decimal.Zero) || frac.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("idle_cash.invest_fraction must be in (0,1]")
	}
	pct, err := decimal.NewFromString(c.IdleCash.ApprovalPercent)
	if err != nil {
		return fmt.Errorf("idle_cash.approval_percent: %w", err)
	}
	if pct.LessThanOrEqual(decimal.Zero) || pct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("idle_cash.approval_percent must be in (0,100]")
	}
	return nil
}
