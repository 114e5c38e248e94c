// Package reconcile runs the periodic billing jobs: applying scheduled plan
// changes whose effective date passed and dispatching due invoice reminders.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/washbay/internal/billing/domain"
	"github.com/smallbiznis/washbay/internal/clock"
	obsmetrics "github.com/smallbiznis/washbay/internal/observability/metrics"
	"github.com/smallbiznis/washbay/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidConfig = errors.New("reconcile: invalid config")
	ErrUnknownJob    = errors.New("reconcile: unknown job")
)

const lockPrefix = "washbay:reconcile:"

type Params struct {
	fx.In

	Log     *zap.Logger
	Billing billingdomain.Service
	GenID   *snowflake.Node
	Clock   clock.Clock
	Locker  *ratelimit.Locker `optional:"true"`
	Config  Config            `optional:"true"`
}

type Reconciler struct {
	log     *zap.Logger
	cfg     Config
	billing billingdomain.Service
	genID   *snowflake.Node
	clock   clock.Clock
	locker  *ratelimit.Locker
}

// JobResult summarizes one job run.
type JobResult struct {
	Job       string         `json:"job"`
	Processed int            `json:"processed"`
	Errors    int            `json:"errors"`
	Outcomes  map[string]int `json:"outcomes"`
	Skipped   bool           `json:"skipped,omitempty"`
}

func New(p Params) (*Reconciler, error) {
	if p.Log == nil || p.Billing == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Reconciler{
		log:     p.Log.Named("reconcile").With(zap.String("component", "reconciler")),
		cfg:     p.Config.withDefaults(),
		billing: p.Billing,
		genID:   p.GenID,
		clock:   p.Clock,
		locker:  p.Locker,
	}, nil
}

// Jobs lists the job names in run order.
func Jobs() []string {
	return []string{JobScheduledPlanChanges, JobInvoiceReminders}
}

func (s *Reconciler) runJob(
	parent context.Context,
	name string,
	fn func(ctx context.Context) error,
) (JobResult, error) {
	result := JobResult{Job: name}
	start := s.clock.Now()

	if s.locker != nil {
		lease, err := s.locker.Acquire(parent, lockPrefix+name, s.cfg.LockTTL)
		switch {
		case errors.Is(err, ratelimit.ErrLeaseHeld):
			obsmetrics.Reconcile().IncLockSkipped(name)
			result.Skipped = true
			return result, nil
		case err != nil:
			s.log.Warn("reconcile lock unavailable, running unguarded", zap.String("job", name), zap.Error(err))
		default:
			defer func() {
				if err := lease.Release(context.Background()); err != nil {
					s.log.Warn("reconcile lock release failed", zap.String("job", name), zap.Error(err))
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	m := obsmetrics.Reconcile()
	m.IncJobRun(name)

	err := fn(ctx)
	m.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	result.Processed = run.processedCount
	result.Errors = run.errorCount
	result.Outcomes = run.outcomes
	if err == nil {
		return result, nil
	}

	// Deadlines are soft: unfinished rows stay due for the next run.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		m.IncJobTimeout(name)
		m.IncJobError(name, err)
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return result, nil
	}
	m.IncJobError(name, err)
	return result, fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job once.
func (s *Reconciler) RunOnce(ctx context.Context) ([]JobResult, error) {
	var (
		results []JobResult
		err     error
	)
	for _, name := range Jobs() {
		if !s.isJobEnabled(name) {
			continue
		}
		result, jobErr := s.Run(ctx, name)
		results = append(results, result)
		err = errors.Join(err, jobErr)
	}
	return results, err
}

// Run runs a single job by name.
func (s *Reconciler) Run(ctx context.Context, name string) (JobResult, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case JobScheduledPlanChanges:
		return s.runJob(ctx, JobScheduledPlanChanges, s.ApplyScheduledPlanChanges)
	case JobInvoiceReminders:
		return s.runJob(ctx, JobInvoiceReminders, s.ProcessReminders)
	default:
		return JobResult{Job: name}, ErrUnknownJob
	}
}

func (s *Reconciler) isJobEnabled(name string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, name) {
			return true
		}
	}
	return false
}

// ApplyScheduledPlanChanges resolves due scheduled plan changes in batches.
// The scan moves forward on (effective_date, id), so rows left pending are
// not revisited within the same run and never hold back later ones.
func (s *Reconciler) ApplyScheduledPlanChanges(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobScheduledPlanChanges, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	m := obsmetrics.Reconcile()
	var cursor billingdomain.Cursor

	for batch := 0; batch < s.cfg.MaxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		changes, err := s.billing.DueScheduledChanges(ctx, cursor, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		for _, change := range changes {
			cursor = billingdomain.Cursor{At: change.EffectiveDate, ID: change.ID}

			outcome, err := s.billing.ApplyScheduledChange(ctx, change.ID)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					return err
				}
				s.logRowError(ctx, run, "scheduled plan change failed", change.ID.String(), err)
				m.IncRowOutcome(obsmetrics.ResourceScheduledPlanChanges, obsmetrics.OutcomeFailed)
				continue
			}
			run.IncOutcome(string(outcome))
			m.IncRowOutcome(obsmetrics.ResourceScheduledPlanChanges, string(outcome))
		}
		run.AddProcessed(len(changes))
		m.AddBatchProcessed(JobScheduledPlanChanges, obsmetrics.ResourceScheduledPlanChanges, len(changes))
		if len(changes) < s.cfg.BatchSize {
			return nil
		}
	}
	return nil
}

// ProcessReminders dispatches due invoice reminders in batches, paging on
// (scheduled_for, id).
func (s *Reconciler) ProcessReminders(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobInvoiceReminders, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	m := obsmetrics.Reconcile()
	var cursor billingdomain.Cursor

	for batch := 0; batch < s.cfg.MaxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		reminders, err := s.billing.DueReminders(ctx, cursor, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		for _, reminder := range reminders {
			cursor = billingdomain.Cursor{At: reminder.ScheduledFor, ID: reminder.ID}

			outcome, err := s.billing.ProcessReminder(ctx, reminder.ID)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					return err
				}
				s.logRowError(ctx, run, "invoice reminder failed", reminder.ID.String(), err)
				m.IncRowOutcome(obsmetrics.ResourceInvoiceReminders, obsmetrics.OutcomeFailed)
				continue
			}
			run.IncOutcome(string(outcome))
			m.IncRowOutcome(obsmetrics.ResourceInvoiceReminders, string(outcome))
		}
		run.AddProcessed(len(reminders))
		m.AddBatchProcessed(JobInvoiceReminders, obsmetrics.ResourceInvoiceReminders, len(reminders))
		if len(reminders) < s.cfg.BatchSize {
			return nil
		}
	}
	return nil
}

// Schedule returns the cron spec the reconciler runs on.
func (s *Reconciler) Schedule() string {
	return s.cfg.Schedule
}

func (s *Reconciler) Enabled() bool {
	return s.cfg.Enabled
}
