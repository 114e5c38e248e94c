package reconcile

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/washbay/internal/observability/context"
	obslogger "github.com/smallbiznis/washbay/internal/observability/logger"
	"go.uber.org/zap"
)

type jobRun struct {
	job            string
	runID          string
	batchSize      int
	startedAt      time.Time
	processedCount int
	errorCount     int
	outcomes       map[string]int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.processedCount += count
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.errorCount++
}

func (r *jobRun) IncOutcome(outcome string) {
	if r == nil {
		return
	}
	if r.outcomes == nil {
		r.outcomes = map[string]int{}
	}
	r.outcomes[outcome]++
}

func (s *Reconciler) ensureJobRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, bool) {
	if existing := jobRunFromContext(ctx); existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: time.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithActor(ctx, "system", "reconciler")
	return ctx, run, true
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return run
	}
	return nil
}

func (s *Reconciler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Reconciler) logJobStart(ctx context.Context, run *jobRun) {
	s.logger(ctx).Info("reconcile.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", run.batchSize),
	)
}

func (s *Reconciler) logJobFinish(ctx context.Context, run *jobRun) {
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", time.Since(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processedCount),
		zap.Int("error_count", run.errorCount),
		zap.Any("outcomes", run.outcomes),
	}
	log := s.logger(ctx)
	if run.errorCount > 0 {
		log.Warn("reconcile.job.finish", fields...)
		return
	}
	log.Info("reconcile.job.finish", fields...)
}

func (s *Reconciler) logRowError(ctx context.Context, run *jobRun, msg string, id string, err error) {
	if run != nil {
		run.IncError()
	}
	s.logger(ctx).Warn(msg,
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.String("id", id),
		zap.Error(err),
	)
}
