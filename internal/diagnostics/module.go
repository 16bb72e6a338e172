package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/fx"
)

// Config carries the one §6 key this package reads directly.
type Config struct {
	Port int
}

const refreshInterval = 5 * time.Second

var Module = fx.Module("diagnostics",
	fx.Provide(NewMetrics, newServer),
	fx.Invoke(registerLifecycle),
)

func newServer(cfg Config) *Server {
	return NewServer(fmt.Sprintf(":%d", cfg.Port))
}

func registerLifecycle(lc fx.Lifecycle, server *Server, metrics *Metrics, stats StatsProvider, logger *slog.Logger) {
	stopRefresh := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := server.Serve(); err != nil {
					logger.Error("DIAGNOSTICS_SERVE_FAILED", "error", err)
				}
			}()
			go refreshLoop(stopRefresh, metrics, stats)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(stopRefresh)
			return server.Close(ctx)
		},
	})
}

func refreshLoop(stop <-chan struct{}, metrics *Metrics, stats StatsProvider) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			metrics.Refresh(stats.Stats())
		}
	}
}
