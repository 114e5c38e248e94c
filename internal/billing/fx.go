package billing

import (
	"github.com/smallbiznis/washbay/internal/billing/repository"
	"github.com/smallbiznis/washbay/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
