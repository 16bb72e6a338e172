package tcp

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/chatfabric/relay-node/internal/domain/registry"
	"github.com/chatfabric/relay-node/internal/service"
)

// Config carries the one §6 key this package reads directly.
type Config struct {
	Port        int
	MailboxSize int
}

var Module = fx.Module("tcp",
	fx.Provide(
		newServer,
		fx.Annotate(
			func(s *service.ParticipantService) Dispatcher { return s },
			fx.As(new(Dispatcher)),
		),
	),
	fx.Invoke(registerLifecycle),
)

func newServer(cfg Config, registrar registry.Registrar, dispatcher Dispatcher, logger *slog.Logger) *Server {
	return NewServer(fmt.Sprintf(":%d", cfg.Port), registrar, dispatcher, logger, cfg.MailboxSize)
}

func registerLifecycle(lc fx.Lifecycle, server *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := server.Serve(context.Background()); err != nil {
					slog.Error("TCP_SERVE_FAILED", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Close()
		},
	})
}
