package reconcile

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewCron registers RunOnce on the configured six-field cron spec.
func NewCron(s *Reconciler) (*cron.Cron, error) {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err := c.AddFunc(s.Schedule(), func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.log.Warn("reconcile run failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// StartCron ties the cron lifecycle to the application.
func StartCron(lc fx.Lifecycle, s *Reconciler) error {
	if !s.Enabled() {
		s.log.Info("reconcile cron disabled")
		return nil
	}
	c, err := NewCron(s)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.Start()
			s.log.Info("reconcile cron started", zap.String("schedule", s.Schedule()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopped := c.Stop()
			select {
			case <-stopped.Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}
