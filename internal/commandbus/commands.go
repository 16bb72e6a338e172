package commandbus

import (
	"time"

	"github.com/google/uuid"

	"github.com/chatfabric/relay-node/internal/domain/event"
	"github.com/chatfabric/relay-node/internal/domain/wire"
)

var (
	_ event.Eventer = MessageDispatchCommand{}
	_ event.Eventer = DeviceBroadcastCommand{}
)

// MessageDispatchCommand asks the Connection Registry to write payload to
// every connection in the target participant's collective, with no
// exclusion. Handled by the registry's fan-out (§4.5). It also satisfies
// event.Eventer, since the fan-out pushes the command itself into each
// connection's mailbox rather than re-wrapping it.
type MessageDispatchCommand struct {
	ParticipantID  string
	PayloadBytes   []byte
	ResponseKind   wire.ResponseType
	SentAt         time.Time
}

func (c MessageDispatchCommand) CommandName() string { return "MessageDispatchCommand" }

func (c MessageDispatchCommand) ParticipantIdentifier() string  { return c.ParticipantID }
func (c MessageDispatchCommand) Priority() event.Priority       { return event.PriorityNormal }
func (c MessageDispatchCommand) ResponseType() wire.ResponseType { return c.ResponseKind }
func (c MessageDispatchCommand) Payload() []byte                 { return c.PayloadBytes }
func (c MessageDispatchCommand) Exclude() (uuid.UUID, bool)       { return uuid.Nil, false }

// DeviceBroadcastCommand asks the Connection Registry to mirror payload to
// every connection in the participant's collective except the connection
// that produced it. Handled by the registry to mirror traffic across a
// participant's other devices (§4.5, §4.4).
type DeviceBroadcastCommand struct {
	ParticipantID      string
	SourceConnectionID uuid.UUID
	ResponseKind       wire.ResponseType
	PayloadBytes       []byte
}

func (c DeviceBroadcastCommand) CommandName() string { return "DeviceBroadcastCommand" }

func (c DeviceBroadcastCommand) ParticipantIdentifier() string  { return c.ParticipantID }
func (c DeviceBroadcastCommand) Priority() event.Priority       { return event.PriorityHigh }
func (c DeviceBroadcastCommand) ResponseType() wire.ResponseType { return c.ResponseKind }
func (c DeviceBroadcastCommand) Payload() []byte                 { return c.PayloadBytes }
func (c DeviceBroadcastCommand) Exclude() (uuid.UUID, bool) {
	return c.SourceConnectionID, true
}
