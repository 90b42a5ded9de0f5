package httpapi

import (
	"go.uber.org/fx"
)

var Module = fx.Module("api.handler",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
