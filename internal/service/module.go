package service

import (
	"go.uber.org/fx"

	"github.com/chatfabric/relay-node/internal/commandbus"
	"github.com/chatfabric/relay-node/internal/diagnostics"
	"github.com/chatfabric/relay-node/internal/pubsub"
	"github.com/chatfabric/relay-node/internal/repository"
)

// Config carries the §6 keys this package reads directly.
type Config struct {
	LocalNode         string
	AccountServiceURL string
}

var Module = fx.Module("service",
	fx.Provide(
		func(cfg Config) *AccountClient { return NewAccountClient(cfg.AccountServiceURL) },
		newParticipantService,
	),
	fx.Invoke(registerCommandHandlers, attachMetrics),
)

// participantServiceParams groups NewParticipantService's dependencies so
// fx can inject them as one params struct.
type participantServiceParams struct {
	fx.In

	Config       Config
	Bus          *commandbus.Bus
	Participants repository.ParticipantRepository
	Devices      repository.DeviceRepository
	Messages     repository.MessageRepository
	PubSub       pubsub.Client
	Account      *AccountClient
}

func newParticipantService(p participantServiceParams) *ParticipantService {
	return NewParticipantService(p.Config.LocalNode, p.Bus, p.Participants, p.Devices, p.Messages, p.PubSub, p.Account)
}

// registerCommandHandlers has nothing to register yet: ParticipantService
// is driven by the Connection Handler and its own pub/sub subscription, not
// by Command Bus dispatch. Kept as an fx.Invoke hook point that makes the
// service (and its pass-over subscription) get constructed at startup.
func registerCommandHandlers(*ParticipantService) {}

// attachMetrics wires the diagnostics recorder in after construction, so
// tests that build a ParticipantService directly never need to touch it.
func attachMetrics(svc *ParticipantService, metrics *diagnostics.Metrics) {
	svc.SetMetrics(metrics)
}
