package tcp

import "context"

// Dispatcher is the slice of the Participant Service the Connection Handler
// calls into once a connection is Authenticated (§4.7).
type Dispatcher interface {
	RelayDirectMessage(ctx context.Context, senderIdentifier string, payload []byte) error
	ResolveContacts(payload []byte) ([]byte, error)
}
