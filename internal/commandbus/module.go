package commandbus

import "go.uber.org/fx"

var Module = fx.Module("commandbus",
	fx.Provide(func() *Bus { return New(LoggingMiddleware) }),
)
