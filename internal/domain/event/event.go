// Package event defines the narrow contract a Connection mailbox deals in:
// something with a target participant, a delivery priority, and an already
// wire-encoded payload. Command types constructed by the command bus satisfy
// this interface structurally; the registry never imports the command bus.
package event

import (
	"github.com/google/uuid"

	"github.com/chatfabric/relay-node/internal/domain/wire"
)

// Priority orders events competing for a saturated connection mailbox.
// Higher values win eviction contests (see Connector.Send backpressure
// handling in the registry package).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Eventer is pushed through a participant's device collective down to each
// attached connection, which frames ResponseType+Payload per §4.1 and writes
// it to its socket.
type Eventer interface {
	// ParticipantIdentifier names the collective this event is destined for.
	ParticipantIdentifier() string

	// Priority governs backpressure eviction when a connection's mailbox is full.
	Priority() Priority

	// ResponseType is the wire response type the payload decodes as.
	ResponseType() wire.ResponseType

	// Payload is the already-encoded submessage body.
	Payload() []byte

	// Exclude names a connection ID that must not receive this event (used by
	// DeviceBroadcastCommand to mirror to every device but the source). The
	// second return value is false when no exclusion applies.
	Exclude() (connID uuid.UUID, ok bool)
}
