package cmd

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/chatfabric/relay-node/config"
	"github.com/chatfabric/relay-node/internal/commandbus"
	"github.com/chatfabric/relay-node/internal/diagnostics"
	"github.com/chatfabric/relay-node/internal/domain/registry"
	"github.com/chatfabric/relay-node/internal/handler/tcp"
	"github.com/chatfabric/relay-node/internal/pubsub"
	"github.com/chatfabric/relay-node/internal/repository"
	"github.com/chatfabric/relay-node/internal/security/token"
	"github.com/chatfabric/relay-node/internal/service"
)

// participantBucketName is the JetStream KV bucket backing the cross-node
// routing table (§4.3); not one of §6's recognized keys, so it lives here
// rather than in config.Config.
const participantBucketName = "relay-node-participants"

// NewApp assembles the node's fx graph from one loaded config.Config,
// translating it into each package's own narrow Config type the way the
// teacher's fx.go feeds one *config.Config into every module's constructor.
func NewApp(cfg *config.Config, logger *slog.Logger) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			func() *slog.Logger { return logger },
			func() repository.DatabaseConfig { return repository.DatabaseConfig{URI: cfg.Database.URI} },
			func() token.Config { return token.Config{KeyPath: cfg.TokenKeyPath} },
			func() pubsub.Config {
				return pubsub.Config{
					Servers:               cfg.NATS.Servers,
					Verbose:               cfg.NATS.Verbose,
					AllowReconnect:        cfg.NATS.AllowReconnect,
					ConnectTimeout:        cfg.NATS.ConnectTimeout,
					ReconnectTimeWait:     cfg.NATS.ReconnectTimeWait,
					MaxReconnectAttempts:  cfg.NATS.MaxReconnectAttempts,
					LocalNode:             cfg.Node,
					ParticipantBucketName: participantBucketName,
				}
			},
			func() service.Config {
				return service.Config{LocalNode: cfg.Node, AccountServiceURL: cfg.AccountServiceURL}
			},
			func() tcp.Config { return tcp.Config{Port: cfg.Port, MailboxSize: 256} },
			func() diagnostics.Config { return diagnostics.Config{Port: cfg.MetricsPort} },
		),
		commandbus.Module,
		token.Module,
		pubsub.Module,
		repository.Module,
		service.Module,
		registry.Module,
		diagnostics.Module,
		tcp.Module,
	)
}
