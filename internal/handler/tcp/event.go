package tcp

import (
	"github.com/google/uuid"

	"github.com/chatfabric/relay-node/internal/domain/event"
	"github.com/chatfabric/relay-node/internal/domain/wire"
)

// directResponse carries a reply to the request that produced it (e.g. a
// CONTACT_BATCH for a MATCH_CONTACTS request) through the same mailbox
// fan-out path as every other outbound event, keeping run()'s write loop
// the single point of serialization.
type directResponse struct {
	responseType wire.ResponseType
	payload      []byte
}

func (d directResponse) ParticipantIdentifier() string  { return "" }
func (d directResponse) Priority() event.Priority        { return event.PriorityNormal }
func (d directResponse) ResponseType() wire.ResponseType { return d.responseType }
func (d directResponse) Payload() []byte                 { return d.payload }
func (d directResponse) Exclude() (uuid.UUID, bool)      { return uuid.Nil, false }
