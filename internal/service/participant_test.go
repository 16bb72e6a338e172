package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatfabric/relay-node/internal/commandbus"
	"github.com/chatfabric/relay-node/internal/domain/model"
	"github.com/chatfabric/relay-node/internal/domain/wire"
	"github.com/chatfabric/relay-node/internal/pubsub"
)

type fakeAccountResolver struct {
	mu      sync.Mutex
	details map[string]accountDetails
	calls   int
}

func newFakeAccountResolver() *fakeAccountResolver {
	return &fakeAccountResolver{details: make(map[string]accountDetails)}
}

func (f *fakeAccountResolver) set(identifier string, d accountDetails) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details[identifier] = d
}

func (f *fakeAccountResolver) Details(_ context.Context, identifier string) (accountDetails, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	d, ok := f.details[identifier]
	return d, ok, nil
}

type fakeParticipantRepository struct {
	mu      sync.Mutex
	records map[string]string // identifier -> routing identity
}

func newFakeParticipantRepository() *fakeParticipantRepository {
	return &fakeParticipantRepository{records: make(map[string]string)}
}

func (r *fakeParticipantRepository) FindByIdentifier(_ context.Context, identifier string) (model.Participant, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	routing, ok := r.records[identifier]
	if !ok {
		return model.Participant{}, false, nil
	}
	return model.Participant{Identifier: identifier, RoutingIdentity: routing}, true, nil
}

func (r *fakeParticipantRepository) Create(_ context.Context, identifier, routingIdentity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[identifier] = routingIdentity
	return nil
}

type fakeDeviceRepository struct {
	mu    sync.Mutex
	saved []model.Device
}

func (r *fakeDeviceRepository) Save(_ context.Context, _ string, device model.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, device)
	return nil
}

type fakeMessageRepository struct {
	mu    sync.Mutex
	saved int
}

func (r *fakeMessageRepository) Save(_ context.Context, _, _ string, _ []byte, _, _ string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved++
	return nil
}

type dispatchRecorder struct {
	mu       sync.Mutex
	commands []commandbus.MessageDispatchCommand
}

func (d *dispatchRecorder) handle(_ context.Context, cmd commandbus.MessageDispatchCommand) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = append(d.commands, cmd)
	return nil
}

func (d *dispatchRecorder) snapshot() []commandbus.MessageDispatchCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]commandbus.MessageDispatchCommand, len(d.commands))
	copy(out, d.commands)
	return out
}

func newTestService(t *testing.T, account *fakeAccountResolver, participants *fakeParticipantRepository, pubsubClient pubsub.Client) (*ParticipantService, *commandbus.Bus, *dispatchRecorder) {
	t.Helper()

	bus := commandbus.New()
	recorder := &dispatchRecorder{}
	require.NoError(t, commandbus.Register(bus, recorder.handle))

	svc := NewParticipantService("node-a", bus, participants, &fakeDeviceRepository{}, &fakeMessageRepository{}, pubsubClient, account)
	return svc, bus, recorder
}

func TestFetchAllocatesRoutingIdentityOnFirstSight(t *testing.T) {
	t.Parallel()

	account := newFakeAccountResolver()
	account.set("alice", accountDetails{Identifier: "alice", Nickname: "Alice", Email: "alice@example.com"})
	participants := newFakeParticipantRepository()
	fake := pubsub.NewFake("node-a")

	svc, _, _ := newTestService(t, account, participants, fake)

	p, err := svc.EnsureParticipant(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, p.RoutingIdentity)
	assert.Equal(t, "Alice", p.Nickname)

	_, found, err := participants.FindByIdentifier(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, found)

	node, ok, err := fake.FetchLastKnownNode(context.Background(), p.RoutingIdentity)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "node-a", node)
}

func TestFetchReturnsCachedParticipantWithoutSecondAccountCall(t *testing.T) {
	t.Parallel()

	account := newFakeAccountResolver()
	account.set("bob", accountDetails{Identifier: "bob", Nickname: "Bob"})
	svc, _, _ := newTestService(t, account, newFakeParticipantRepository(), pubsub.NewFake("node-a"))

	_, err := svc.EnsureParticipant(context.Background(), "bob")
	require.NoError(t, err)
	_, err = svc.EnsureParticipant(context.Background(), "bob")
	require.NoError(t, err)

	assert.Equal(t, 1, account.calls)
}

func TestFetchUsesExistingRoutingIdentity(t *testing.T) {
	t.Parallel()

	account := newFakeAccountResolver()
	account.set("carol", accountDetails{Identifier: "carol", Nickname: "Carol"})
	participants := newFakeParticipantRepository()
	participants.records["carol"] = "preexisting-routing-id"

	svc, _, _ := newTestService(t, account, participants, pubsub.NewFake("node-a"))

	p, err := svc.EnsureParticipant(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, "preexisting-routing-id", p.RoutingIdentity)
}

func TestFetchUnknownParticipantErrors(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, newFakeAccountResolver(), newFakeParticipantRepository(), pubsub.NewFake("node-a"))

	_, err := svc.EnsureParticipant(context.Background(), "ghost")
	require.Error(t, err)
}

func TestResolveContactsMatchesEmailAndOmitsUnmatched(t *testing.T) {
	t.Parallel()

	account := newFakeAccountResolver()
	account.set("dave", accountDetails{Identifier: "dave", Nickname: "Dave", Email: "dave@example.com", PhotoURL: "https://example.com/dave.png"})
	svc, _, _ := newTestService(t, account, newFakeParticipantRepository(), pubsub.NewFake("node-a"))

	dave, err := svc.EnsureParticipant(context.Background(), "dave")
	require.NoError(t, err)

	req := wire.BatchContactMatchRequest{Requests: []wire.ContactRequest{
		{Type: wire.ContactTypeEmail, Value: "dave@example.com"},
		{Type: wire.ContactTypeEmail, Value: "unknown@example.com"},
	}}

	respBytes, err := svc.ResolveContacts(req.Marshal())
	require.NoError(t, err)

	var resp wire.BatchContactMatchResponse
	require.NoError(t, resp.Unmarshal(respBytes))
	require.Len(t, resp.Contacts, 1)
	assert.Equal(t, dave.RoutingIdentity, resp.Contacts[0].Identifier)
	assert.Equal(t, "Dave", resp.Contacts[0].Nickname)
}

func TestRelayDirectMessageLocalEmitsDeliveredOnSuccess(t *testing.T) {
	t.Parallel()

	account := newFakeAccountResolver()
	account.set("sender", accountDetails{Identifier: "sender", Nickname: "Sender"})
	account.set("target", accountDetails{Identifier: "target", Nickname: "Target"})
	svc, _, recorder := newTestService(t, account, newFakeParticipantRepository(), pubsub.NewFake("node-a"))

	ctx := context.Background()
	sender, err := svc.EnsureParticipant(ctx, "sender")
	require.NoError(t, err)
	target, err := svc.EnsureParticipant(ctx, "target")
	require.NoError(t, err)

	msg := wire.DirectMessage{TargetIdentifier: target.RoutingIdentity, Payload: []byte("hi"), SentAt: time.Now().Unix()}
	require.NoError(t, svc.RelayDirectMessage(ctx, sender.Identifier, msg.Marshal()))

	commands := recorder.snapshot()
	require.Len(t, commands, 2)

	dispatch := commands[0]
	assert.Equal(t, target.Identifier, dispatch.ParticipantID)
	assert.Equal(t, wire.ReceiveDirectMessage, dispatch.ResponseKind)

	ackCmd := commands[1]
	assert.Equal(t, sender.Identifier, ackCmd.ParticipantID)
	assert.Equal(t, wire.DeliveryState, ackCmd.ResponseKind)

	var delivery wire.Delivery
	require.NoError(t, delivery.Unmarshal(ackCmd.PayloadBytes))
	assert.Equal(t, wire.Delivered, delivery.State)
}

func TestRelayDirectMessageCrossNodeFailsWhenTargetUnrouted(t *testing.T) {
	t.Parallel()

	account := newFakeAccountResolver()
	account.set("sender", accountDetails{Identifier: "sender", Nickname: "Sender"})
	svc, _, recorder := newTestService(t, account, newFakeParticipantRepository(), pubsub.NewFake("node-a"))

	ctx := context.Background()
	sender, err := svc.EnsureParticipant(ctx, "sender")
	require.NoError(t, err)

	msg := wire.DirectMessage{TargetIdentifier: "unknown-routing-id", Payload: []byte("hi")}
	require.NoError(t, svc.RelayDirectMessage(ctx, sender.Identifier, msg.Marshal()))

	commands := recorder.snapshot()
	require.Len(t, commands, 1)

	var delivery wire.Delivery
	require.NoError(t, delivery.Unmarshal(commands[0].PayloadBytes))
	assert.Equal(t, wire.Failed, delivery.State)
	assert.Equal(t, "Failed to deliver the message :(", delivery.Message)
}

func TestRelayDirectMessageCrossNodePassesOverWhenNodeKnown(t *testing.T) {
	t.Parallel()

	account := newFakeAccountResolver()
	account.set("sender", accountDetails{Identifier: "sender", Nickname: "Sender"})
	svc, _, _ := newTestService(t, account, newFakeParticipantRepository(), pubsub.NewFake("node-a"))

	ctx := context.Background()
	sender, err := svc.EnsureParticipant(ctx, "sender")
	require.NoError(t, err)

	fake := pubsub.NewFake("node-a")
	fake.SetRoute("peer-routing-id", "node-b")

	remoteSvc, _, remoteRecorder := newTestService(t, account, newFakeParticipantRepository(), fake)

	msg := wire.DirectMessage{TargetIdentifier: "peer-routing-id", Payload: []byte("hi")}
	require.NoError(t, remoteSvc.RelayDirectMessage(ctx, sender.Identifier, msg.Marshal()))

	commands := remoteRecorder.snapshot()
	require.Len(t, commands, 1)
	var delivery wire.Delivery
	require.NoError(t, delivery.Unmarshal(commands[0].PayloadBytes))
	assert.Equal(t, wire.Sent, delivery.State)

	passovers := fake.Passovers()
	require.Len(t, passovers, 1)
	assert.Equal(t, "node-b", passovers[0].Node)
	assert.Equal(t, "peer-routing-id", passovers[0].Envelope.TargetIdentifier)
}

func TestHandlePassOverDispatchesLocallyAndPersists(t *testing.T) {
	t.Parallel()

	account := newFakeAccountResolver()
	account.set("target", accountDetails{Identifier: "target", Nickname: "Target"})
	fake := pubsub.NewFake("node-a")
	svc, _, recorder := newTestService(t, account, newFakeParticipantRepository(), fake)

	ctx := context.Background()
	target, err := svc.EnsureParticipant(ctx, "target")
	require.NoError(t, err)

	passover := wire.ParticipantPassOver{
		SenderIdentifier: "sender",
		TargetIdentifier: target.RoutingIdentity,
		OriginatingNode:  "node-b",
		Payload:          []byte("hi"),
		Marker:           "marker-1",
	}
	require.NoError(t, fake.Inject(ctx, pubsub.PassOverSubject("node-a"), passover.Marshal()))

	commands := recorder.snapshot()
	require.Len(t, commands, 1)
	assert.Equal(t, target.Identifier, commands[0].ParticipantID)
	assert.Equal(t, wire.ReceiveDirectMessage, commands[0].ResponseKind)
	assert.Equal(t, 1, svc.messages.(*fakeMessageRepository).saved)
}

func TestHandlePassOverErrorsWhenTargetNotLocal(t *testing.T) {
	t.Parallel()

	fake := pubsub.NewFake("node-a")
	newTestService(t, newFakeAccountResolver(), newFakeParticipantRepository(), fake)

	passover := wire.ParticipantPassOver{TargetIdentifier: "nobody", Payload: []byte("hi")}
	err := fake.Inject(context.Background(), pubsub.PassOverSubject("node-a"), passover.Marshal())
	require.Error(t, err)
}
