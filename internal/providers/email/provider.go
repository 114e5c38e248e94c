package email

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}

// LogProvider records outgoing mail instead of sending it. Used when SMTP is
// not configured.
type LogProvider struct {
	log *zap.Logger
}

func NewLogProvider(log *zap.Logger) *LogProvider {
	return &LogProvider{log: log.Named("email")}
}

func (p *LogProvider) Send(_ context.Context, to []string, subject string, _ string) error {
	p.log.Info("email suppressed, smtp not configured",
		zap.String("to", strings.Join(to, ",")),
		zap.String("subject", subject),
	)
	return nil
}
