package edge

import (
	"github.com/smallbiznis/washbay/internal/hostresolver"
	"go.uber.org/fx"
)

var Module = fx.Module("edge",
	fx.Provide(DefaultRoutes),
	fx.Provide(func(routes Routes, resolver *hostresolver.Resolver) *Router {
		return NewRouter(routes, resolver)
	}),
)
