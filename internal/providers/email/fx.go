package email

import (
	billingdomain "github.com/smallbiznis/washbay/internal/billing/domain"
	"github.com/smallbiznis/washbay/internal/config"
	"github.com/smallbiznis/washbay/internal/hostresolver"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
	fx.Provide(NewBillingNotifier),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	emailCfg := Config{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUsername,
		Password: cfg.Email.SMTPPassword,
		From:     cfg.Email.SMTPFrom,
	}
	if !emailCfg.Enabled() {
		return NewLogProvider(log)
	}
	return NewSMTP(emailCfg)
}

func NewBillingNotifier(provider Provider, resolver *hostresolver.Resolver) billingdomain.Notifier {
	return NewReminderNotifier(provider, func(slug string) string {
		return resolver.TenantURL(slug, "/billing")
	})
}
