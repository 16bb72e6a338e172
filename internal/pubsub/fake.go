package pubsub

import (
	"context"
	"sync"

	"github.com/chatfabric/relay-node/internal/domain/wire"
)

var _ Client = (*Fake)(nil)

// Fake is the test-mode Client variant described in §4.3: it records
// subscriptions in memory, never reaches a network, and exposes Inject so
// tests can simulate a frame arriving on a subject. The original's fake
// iterated `for i, k in self.__calls` over a mapping (a bug the spec's Open
// Questions call out); Inject here simply looks up the handler registered
// for the given subject and invokes it, which is the (subject, handler)
// pairing the spec recommends.
type Fake struct {
	mu            sync.RWMutex
	subscriptions map[string]SubscriptionHandler
	routes        map[string]string
	passovers     []FakePassover

	localNode string
}

// FakePassover records one call to PassoverDirectMessageTo, for assertions.
type FakePassover struct {
	Node     string
	Envelope wire.ParticipantPassOver
}

// NewFake constructs a Fake bound to localNode (used only as the value
// RegisterParticipant stores against a routing identifier).
func NewFake(localNode string) *Fake {
	return &Fake{
		subscriptions: make(map[string]SubscriptionHandler),
		routes:        make(map[string]string),
		localNode:     localNode,
	}
}

func (f *Fake) StartUp(_ context.Context) error  { return nil }
func (f *Fake) Shutdown(_ context.Context) error { return nil }

func (f *Fake) RegisterSubscriptionHandler(subject string, handler SubscriptionHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions[subject] = handler
}

func (f *Fake) RegisterSubscriber(_ string) {}

func (f *Fake) FetchLastKnownNode(_ context.Context, routingIdentifier string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	node, ok := f.routes[routingIdentifier]
	return node, ok, nil
}

func (f *Fake) RegisterParticipant(_ context.Context, routingIdentifier string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[routingIdentifier] = f.localNode
	return nil
}

func (f *Fake) PassoverDirectMessageTo(_ context.Context, node string, passover wire.ParticipantPassOver) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passovers = append(f.passovers, FakePassover{Node: node, Envelope: passover})
	return nil
}

// Passovers returns every PassoverDirectMessageTo call recorded so far.
func (f *Fake) Passovers() []FakePassover {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]FakePassover, len(f.passovers))
	copy(out, f.passovers)
	return out
}

// SetRoute seeds the routing table a test expects FetchLastKnownNode to
// answer from, independent of RegisterParticipant (used to simulate a peer
// node's participant).
func (f *Fake) SetRoute(routingIdentifier, node string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[routingIdentifier] = node
}

// Inject simulates subject receiving payload: it looks up the handler
// registered for subject and invokes it synchronously.
func (f *Fake) Inject(ctx context.Context, subject string, payload []byte) error {
	f.mu.RLock()
	handler, ok := f.subscriptions[subject]
	f.mu.RUnlock()

	if !ok {
		return nil
	}
	return handler(ctx, payload)
}
