package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chatfabric/relay-node/internal/commandbus"
	"github.com/chatfabric/relay-node/internal/domain/model"
	"github.com/chatfabric/relay-node/internal/domain/wire"
	"github.com/chatfabric/relay-node/internal/security/token"
)

// ParticipantResolver is the slice of the Participant Service the registry
// needs on identification: ensuring the participant (and its routing
// identity) exists, and persisting the reporting device.
type ParticipantResolver interface {
	EnsureParticipant(ctx context.Context, identifier string) (model.Participant, error)
	SaveDeviceInformation(ctx context.Context, participantIdentifier string, device model.Device) error
}

// Registrar is the external API of the Connection Registry.
type Registrar interface {
	OnConnect(conn Connector)
	Register(ctx context.Context, conn Connector, identificationPayload []byte) error
	Remove(conn Connector)
	IsConnected(participantIdentifier string) bool
	Stats() model.HubStats
	Shutdown()
}

var _ Registrar = (*Registry)(nil)

// Registry implements [4.5 Connection Registry]: the pending table of
// unauthenticated connections plus the collective-keyed fan-out.
type Registry struct {
	pendingMu sync.RWMutex
	pending   map[string]Connector // keyed by connection ID string

	collectives sync.Map // participant identifier -> *DeviceCollective

	verifier   *token.Verifier
	resolver   ParticipantResolver

	evictionInterval time.Duration
	idleTimeout      time.Duration
	mailboxSize      int
	stopCh           chan struct{}

	pendingCount     atomic.Int64
	participantCount atomic.Int64
}

// NewRegistry constructs a Registry. verifier and resolver must be non-nil;
// opts configure the eviction janitor and mailbox sizing.
func NewRegistry(verifier *token.Verifier, resolver ParticipantResolver, opts ...Option) *Registry {
	r := &Registry{
		pending:          make(map[string]Connector),
		verifier:         verifier,
		resolver:         resolver,
		evictionInterval: time.Minute,
		idleTimeout:      5 * time.Minute,
		mailboxSize:      1024,
		stopCh:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	go r.runEvictor()
	return r
}

// OnConnect inserts a freshly accepted connection into the pending table and
// asks it to identify itself.
func (r *Registry) OnConnect(conn Connector) {
	r.pendingMu.Lock()
	r.pending[conn.ID().String()] = conn
	r.pendingMu.Unlock()
	r.pendingCount.Add(1)

	conn.Send(directEvent{responseType: wire.RequestIdentity}, time.Second)
}

// Register decodes an Identification payload, verifies its token, and
// either rejects the connection (soft error, IDENTITY_REJECTION) or moves it
// from the pending table into its participant's device collective
// (IDENTITY_ACCEPTED).
func (r *Registry) Register(ctx context.Context, conn Connector, identificationPayload []byte) error {
	var ident wire.Identification
	if err := ident.Unmarshal(identificationPayload); err != nil {
		return fmt.Errorf("registry: decoding identification: %w", err)
	}

	claims, err := r.verifier.Verify(ident.Token)
	if err != nil {
		details := "Claim was invalid"
		if verr, ok := err.(*token.VerificationError); ok {
			details = verr.Details
		}
		r.rejectIdentity(conn, details)
		return nil
	}

	participantID := claims.ParticipantIdentifier()

	// Persistence is an audit trail, not a gate (§7 PersistenceFailure):
	// a failure here is logged but does not block identification.
	if _, err := r.resolver.EnsureParticipant(ctx, participantID); err != nil {
		slog.Error("registry: failed to ensure participant", "participant", participantID, "error", err)
	}

	device := model.Device{
		Name:            ident.Device.Name,
		OperatingSystem: ident.Device.OperatingSystem,
		Version:         ident.Device.Version,
		IPAddress:       ident.Device.IPAddress,
	}
	if err := r.resolver.SaveDeviceInformation(ctx, participantID, device); err != nil {
		slog.Error("registry: failed to persist device information", "participant", participantID, "error", err)
	}

	if impl, ok := conn.(*connection); ok {
		impl.Authenticate(participantID)
	}

	val, loaded := r.collectives.LoadOrStore(participantID, newDeviceCollective(participantID, r.mailboxSize))
	if !loaded {
		r.participantCount.Add(1)
	}
	collective := val.(*DeviceCollective)
	collective.Attach(conn)

	r.pendingMu.Lock()
	delete(r.pending, conn.ID().String())
	r.pendingMu.Unlock()
	r.pendingCount.Add(-1)

	info := wire.Info{Message: "IDENTITY_ACCEPTED", OccurredAt: time.Now().Unix()}
	conn.Send(directEvent{responseType: wire.IdentityAccepted, payload: info.Marshal()}, time.Second)
	return nil
}

func (r *Registry) rejectIdentity(conn Connector, details string) {
	failure := wire.Failure{Error: "IDENTITY-REJECTED", Details: details, OccurredAt: time.Now().Unix()}
	conn.Send(directEvent{responseType: wire.IdentityRejection, payload: failure.Marshal()}, time.Second)

	r.pendingMu.Lock()
	delete(r.pending, conn.ID().String())
	r.pendingMu.Unlock()
	r.pendingCount.Add(-1)
}

// Remove sends a best-effort DISCONNECTION_ACCEPTED and removes conn from
// whichever table currently holds it. Idempotent: removing a connection
// twice is a no-op (§8 TESTABLE PROPERTIES).
func (r *Registry) Remove(conn Connector) {
	conn.Send(directEvent{responseType: wire.DisconnectionAccepted}, 250*time.Millisecond)

	connID := conn.ID().String()

	r.pendingMu.Lock()
	_, wasPending := r.pending[connID]
	delete(r.pending, connID)
	r.pendingMu.Unlock()

	if wasPending {
		r.pendingCount.Add(-1)
		return
	}

	participantID := conn.ParticipantIdentifier()
	if participantID == "" {
		return
	}

	if val, ok := r.collectives.Load(participantID); ok {
		collective := val.(*DeviceCollective)
		if collective.Detach(connID) {
			r.collectives.Delete(participantID)
			r.participantCount.Add(-1)
		}
	}
}

// IsConnected reports whether participantIdentifier has a live collective.
func (r *Registry) IsConnected(participantIdentifier string) bool {
	_, ok := r.collectives.Load(participantIdentifier)
	return ok
}

// Stats reports a point-in-time snapshot of registry occupancy, mirroring
// the teacher's HubStats shape: TotalUsers is the number of participants
// with a live collective, and TotalConnections is pending connections plus
// that participant count (a participant's extra devices are not counted).
func (r *Registry) Stats() model.HubStats {
	return model.HubStats{
		TotalUsers:       int(r.participantCount.Load()),
		TotalConnections: int(r.pendingCount.Load()) + int(r.participantCount.Load()),
	}
}

// HandleMessageDispatch is registered on the Command Bus for
// MessageDispatchCommand: write the payload to every connection in the
// target participant's collective. Absence of a local collective is a hard
// error — the Participant Service must have already routed cross-node.
func (r *Registry) HandleMessageDispatch(_ context.Context, cmd commandbus.MessageDispatchCommand) error {
	val, ok := r.collectives.Load(cmd.ParticipantID)
	if !ok {
		return fmt.Errorf("registry: no local collective for participant %q", cmd.ParticipantID)
	}
	val.(*DeviceCollective).Push(cmd)
	return nil
}

// HandleDeviceBroadcast is registered on the Command Bus for
// DeviceBroadcastCommand: mirror the payload to the participant's other
// devices. A missing collective is not an error; there is simply nothing to
// mirror to.
func (r *Registry) HandleDeviceBroadcast(_ context.Context, cmd commandbus.DeviceBroadcastCommand) error {
	val, ok := r.collectives.Load(cmd.ParticipantID)
	if !ok {
		return nil
	}
	val.(*DeviceCollective).Push(cmd)
	return nil
}

func (r *Registry) runEvictor() {
	ticker := time.NewTicker(r.evictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.performEviction()
		}
	}
}

func (r *Registry) performEviction() {
	reaped := 0
	r.collectives.Range(func(key, value any) bool {
		collective := value.(*DeviceCollective)
		if collective.IsIdle(r.idleTimeout) {
			collective.Stop()
			r.collectives.Delete(key)
			r.participantCount.Add(-1)
			reaped++
		}
		return true
	})

	if reaped > 0 {
		slog.Debug("registry: eviction reclaimed idle collectives", "count", reaped)
	}
}

// Shutdown stops the eviction janitor and every managed collective.
func (r *Registry) Shutdown() {
	close(r.stopCh)
	r.collectives.Range(func(_, value any) bool {
		value.(*DeviceCollective).Stop()
		return true
	})
}
