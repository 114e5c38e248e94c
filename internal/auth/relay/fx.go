package relay

import "go.uber.org/fx"

var Module = fx.Module("auth.relay",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
