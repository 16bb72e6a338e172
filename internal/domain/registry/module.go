package registry

import (
	"go.uber.org/fx"

	"github.com/chatfabric/relay-node/internal/commandbus"
	"github.com/chatfabric/relay-node/internal/diagnostics"
	"github.com/chatfabric/relay-node/internal/service"
)

var Module = fx.Module("registry",
	fx.Provide(
		NewRegistry,
		fx.Annotate(
			func(r *Registry) Registrar { return r },
			fx.As(new(Registrar)),
		),
		fx.Annotate(
			func(r *Registry) diagnostics.StatsProvider { return r },
			fx.As(new(diagnostics.StatsProvider)),
		),
		fx.Annotate(
			func(s *service.ParticipantService) ParticipantResolver { return s },
			fx.As(new(ParticipantResolver)),
		),
	),
	fx.Invoke(registerCommandHandlers),
)

// registerCommandHandlers binds the registry's fan-out to the Command Bus
// commands it serves (§4.4): one handler per command type, registered once
// at startup.
func registerCommandHandlers(bus *commandbus.Bus, r *Registry) error {
	if err := commandbus.Register(bus, r.HandleMessageDispatch); err != nil {
		return err
	}
	return commandbus.Register(bus, r.HandleDeviceBroadcast)
}
