package registry

import (
	"github.com/google/uuid"

	"github.com/chatfabric/relay-node/internal/domain/event"
	"github.com/chatfabric/relay-node/internal/domain/wire"
)

var _ event.Eventer = directEvent{}

// directEvent is pushed straight to one Connector.Send call (REQUEST_IDENTITY,
// IDENTITY_ACCEPTED/REJECTION, DISCONNECTION_ACCEPTED): frames that never go
// through a DeviceCollective's fan-out because the connection that receives
// them may not belong to one yet.
type directEvent struct {
	responseType wire.ResponseType
	payload      []byte
}

func (d directEvent) ParticipantIdentifier() string    { return "" }
func (d directEvent) Priority() event.Priority         { return event.PriorityHigh }
func (d directEvent) ResponseType() wire.ResponseType  { return d.responseType }
func (d directEvent) Payload() []byte                  { return d.payload }
func (d directEvent) Exclude() (uuid.UUID, bool)       { return uuid.Nil, false }
