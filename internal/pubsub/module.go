package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/fx"
)

var Module = fx.Module("pubsub",
	fx.Provide(
		func(cfg Config) (Client, error) {
			return NewNATSClient(cfg, watermill.NopLogger{}), nil
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, client Client) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return client.StartUp(ctx)
			},
			OnStop: func(ctx context.Context) error {
				return client.Shutdown(ctx)
			},
		})
	}),
)
