package payment

import (
	billingdomain "github.com/smallbiznis/washbay/internal/billing/domain"
	"github.com/smallbiznis/washbay/internal/config"
	"github.com/smallbiznis/washbay/internal/payment/adapters"
	"github.com/smallbiznis/washbay/internal/payment/adapters/stripe"
	"github.com/smallbiznis/washbay/internal/payment/adapters/wompi"
	paymentdomain "github.com/smallbiznis/washbay/internal/payment/domain"
	"github.com/smallbiznis/washbay/internal/payment/repository"
	paymentservice "github.com/smallbiznis/washbay/internal/payment/service"
	"github.com/smallbiznis/washbay/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config, log *zap.Logger) *wompi.Adapter {
		return wompi.New(cfg.Wompi, log)
	}),
	fx.Provide(func(cfg config.Config) *stripe.Adapter {
		return stripe.New(cfg.Stripe)
	}),
	fx.Provide(func(w *wompi.Adapter, s *stripe.Adapter) *adapters.Registry {
		return adapters.NewRegistry(
			[]paymentdomain.WebhookAdapter{w, s},
			[]paymentdomain.Gateway{w},
		)
	}),
	fx.Provide(func(cfg config.Config, s *stripe.Adapter) billingdomain.PortalSessions {
		if cfg.Stripe.SecretKey == "" {
			return nil
		}
		return s
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(func(s *paymentservice.Service) paymentdomain.Service {
		return s
	}),
	fx.Provide(webhook.NewService),
)
