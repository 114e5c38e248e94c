package hostresolver

import "go.uber.org/fx"

var Module = fx.Module("hostresolver",
	fx.Provide(NewResolver),
)
