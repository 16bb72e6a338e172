package tcp

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatfabric/relay-node/internal/domain/event"
	"github.com/chatfabric/relay-node/internal/domain/model"
	"github.com/chatfabric/relay-node/internal/domain/registry"
	"github.com/chatfabric/relay-node/internal/domain/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeConnector struct {
	id            uuid.UUID
	participantID string
	state         model.ConnectionState

	mu       sync.Mutex
	sendCh   chan event.Eventer
	sent     []event.Eventer
	closed   bool
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{id: uuid.New(), state: model.ConnectionPending, sendCh: make(chan event.Eventer, 8)}
}

func (f *fakeConnector) ID() uuid.UUID                 { return f.id }
func (f *fakeConnector) ParticipantIdentifier() string { return f.participantID }
func (f *fakeConnector) State() model.ConnectionState  { return f.state }

func (f *fakeConnector) Send(ev event.Eventer, _ time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.sent = append(f.sent, ev)
	select {
	case f.sendCh <- ev:
	default:
	}
	return true
}

func (f *fakeConnector) Recv() <-chan event.Eventer { return f.sendCh }

func (f *fakeConnector) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.sendCh)
}

func (f *fakeConnector) snapshot() []event.Eventer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]event.Eventer, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeRegistrar struct {
	mu          sync.Mutex
	connected   []uuid.UUID
	registered  [][]byte
	registerErr error
	removed     []uuid.UUID
}

func (r *fakeRegistrar) OnConnect(conn registry.Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, conn.ID())
}

func (r *fakeRegistrar) Register(_ context.Context, _ registry.Connector, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, payload)
	return r.registerErr
}

func (r *fakeRegistrar) Remove(conn registry.Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, conn.ID())
}

func (r *fakeRegistrar) IsConnected(string) bool      { return false }
func (r *fakeRegistrar) Stats() model.HubStats        { return model.HubStats{} }
func (r *fakeRegistrar) Shutdown()                    {}

func (r *fakeRegistrar) removeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.removed)
}

type fakeDispatcher struct {
	mu               sync.Mutex
	relayedSender    string
	relayedPayload   []byte
	relayErr         error
	resolvePayload   []byte
	resolveResp      []byte
	resolveErr       error
}

func (d *fakeDispatcher) RelayDirectMessage(_ context.Context, senderIdentifier string, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.relayedSender = senderIdentifier
	d.relayedPayload = payload
	return d.relayErr
}

func (d *fakeDispatcher) ResolveContacts(payload []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolvePayload = payload
	return d.resolveResp, d.resolveErr
}

func TestHandleFramePendingIdentityDelegatesToRegistrar(t *testing.T) {
	t.Parallel()

	registrar := &fakeRegistrar{}
	conn := newFakeConnector()
	s := &session{ctx: context.Background(), registrar: registrar, dispatcher: &fakeDispatcher{}, logger: testLogger(), connector: conn}

	ident := wire.Identification{Token: "tok"}
	require.NoError(t, s.handleFrame(wire.Identity, ident.Marshal()))

	require.Len(t, registrar.registered, 1)
	assert.Equal(t, ident.Marshal(), registrar.registered[0])
}

func TestHandleFramePendingNonIdentityIsDropped(t *testing.T) {
	t.Parallel()

	registrar := &fakeRegistrar{}
	conn := newFakeConnector()
	s := &session{ctx: context.Background(), registrar: registrar, dispatcher: &fakeDispatcher{}, logger: testLogger(), connector: conn}

	require.NoError(t, s.handleFrame(wire.DirectMessage, []byte("ignored")))
	assert.Empty(t, registrar.registered)
}

func TestHandleFrameAuthenticatedDirectMessageDelegatesToDispatcher(t *testing.T) {
	t.Parallel()

	conn := newFakeConnector()
	conn.state = model.ConnectionAuthenticated
	conn.participantID = "alice"
	dispatcher := &fakeDispatcher{}
	s := &session{ctx: context.Background(), registrar: &fakeRegistrar{}, dispatcher: dispatcher, logger: testLogger(), connector: conn}

	msg := wire.DirectMessage{TargetIdentifier: "bob-routing", Payload: []byte("hi")}
	require.NoError(t, s.handleFrame(wire.DirectMessage, msg.Marshal()))

	assert.Equal(t, "alice", dispatcher.relayedSender)
	assert.Equal(t, msg.Marshal(), dispatcher.relayedPayload)
}

func TestHandleFrameAuthenticatedMatchContactsRespondsThroughMailbox(t *testing.T) {
	t.Parallel()

	conn := newFakeConnector()
	conn.state = model.ConnectionAuthenticated
	conn.participantID = "alice"
	dispatcher := &fakeDispatcher{resolveResp: []byte("contacts")}
	s := &session{ctx: context.Background(), registrar: &fakeRegistrar{}, dispatcher: dispatcher, logger: testLogger(), connector: conn}

	req := wire.BatchContactMatchRequest{Requests: []wire.ContactRequest{{Type: wire.ContactTypeEmail, Value: "x@example.com"}}}
	require.NoError(t, s.handleFrame(wire.MatchContacts, req.Marshal()))

	sent := conn.snapshot()
	require.Len(t, sent, 1)
	assert.Equal(t, wire.ContactBatch, sent[0].ResponseType())
	assert.Equal(t, []byte("contacts"), sent[0].Payload())
}

func TestHandleFrameDisconnectClosesTransportWithoutFanOut(t *testing.T) {
	t.Parallel()

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	conn := newFakeConnector()
	conn.state = model.ConnectionAuthenticated
	s := &session{ctx: context.Background(), conn: serverConn, registrar: &fakeRegistrar{}, dispatcher: &fakeDispatcher{}, logger: testLogger(), connector: conn}

	require.NoError(t, s.handleFrame(wire.Disconnect, nil))
	assert.Empty(t, conn.snapshot())

	_, err := serverConn.Write([]byte("x"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestHandleFrameGroupRequestTypesAreNoops(t *testing.T) {
	t.Parallel()

	conn := newFakeConnector()
	conn.state = model.ConnectionAuthenticated
	s := &session{ctx: context.Background(), registrar: &fakeRegistrar{}, dispatcher: &fakeDispatcher{}, logger: testLogger(), connector: conn}

	for rt := range groupRequestTypes {
		require.NoError(t, s.handleFrame(rt, nil))
	}
	assert.Empty(t, conn.snapshot())
}

func TestRunRemovesConnectorExactlyOnceOnTeardown(t *testing.T) {
	t.Parallel()

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	registrar := &fakeRegistrar{}
	s := newSession(context.Background(), serverConn, registrar, &fakeDispatcher{}, testLogger(), 8)

	done := make(chan struct{})
	go func() {
		s.run()
		close(done)
	}()

	clientConn.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after transport close")
	}

	assert.Equal(t, 1, registrar.removeCount())
}
