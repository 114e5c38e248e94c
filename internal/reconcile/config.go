package reconcile

import (
	"time"

	"github.com/smallbiznis/washbay/internal/config"
)

const (
	JobScheduledPlanChanges = "scheduled_plan_changes"
	JobInvoiceReminders     = "invoice_reminders"
)

// Config controls reconciliation batches and the cron trigger.
type Config struct {
	Enabled     bool
	Schedule    string
	BatchSize   int
	MaxBatches  int
	JobTimeout  time.Duration
	LockTTL     time.Duration
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Schedule:   "0 */5 * * * *",
		BatchSize:  50,
		MaxBatches: 20,
		JobTimeout: 30 * time.Second,
		LockTTL:    2 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	out := DefaultConfig()
	out.Enabled = cfg.Reconcile.Enabled
	if cfg.Reconcile.Schedule != "" {
		out.Schedule = cfg.Reconcile.Schedule
	}
	out.BatchSize = cfg.Reconcile.BatchSize
	return out.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Schedule == "" {
		c.Schedule = defaults.Schedule
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.MaxBatches <= 0 {
		c.MaxBatches = defaults.MaxBatches
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
