package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chatfabric/relay-node/internal/domain/event"
	"github.com/chatfabric/relay-node/internal/domain/model"
)

// Connector is the registry's view of one TCP session: enough to fan events
// out to it and to tear it down. The Connection Handler (§4.7) implements
// this by draining Recv() on a single writer goroutine, which is what keeps
// per-connection writes serialized.
type Connector interface {
	ID() uuid.UUID
	ParticipantIdentifier() string
	State() model.ConnectionState

	// Send enqueues ev for delivery within timeout. Returns false if the
	// connection is closed or the mailbox stayed saturated for the whole
	// window (§5 Cancellation/timeout).
	Send(ev event.Eventer, timeout time.Duration) bool

	// Recv is drained by the connection handler's writer goroutine.
	Recv() <-chan event.Eventer

	Close()
}

var _ Connector = (*connection)(nil)

// connection is the registry-side pooled implementation of Connector.
// Identification (participant identifier, device) is attached once
// Register succeeds; before that it carries only a connection ID.
type connection struct {
	id            uuid.UUID
	participantID atomic.Value // string

	state atomic.Int32 // model.ConnectionState

	ctx      context.Context
	cancelFn context.CancelFunc
	sendCh   chan event.Eventer

	closeOnce      sync.Once
	lastActivityAt int64 // unix nanos, atomic
	droppedCount   uint64
}

var connectionPool = sync.Pool{
	New: func() any { return &connection{} },
}

// NewConnection allocates (or recycles) a Connector for a freshly accepted
// TCP session. The connection starts Pending with no participant identifier.
func NewConnection(ctx context.Context, bufferSize int) Connector {
	c := connectionPool.Get().(*connection)
	c.reset(ctx, bufferSize)
	return c
}

func (c *connection) reset(ctx context.Context, bufferSize int) {
	childCtx, cancel := context.WithCancel(ctx)

	*c = connection{
		id:             uuid.New(),
		ctx:            childCtx,
		cancelFn:       cancel,
		sendCh:         make(chan event.Eventer, bufferSize),
		lastActivityAt: time.Now().UnixNano(),
	}
	c.participantID.Store("")
	c.state.Store(int32(model.ConnectionPending))
}

func (c *connection) ID() uuid.UUID { return c.id }

func (c *connection) ParticipantIdentifier() string {
	return c.participantID.Load().(string)
}

// Authenticate records the participant identifier and moves the connection
// to Authenticated. Called by the registry once Register validates claims.
func (c *connection) Authenticate(participantID string) {
	c.participantID.Store(participantID)
	c.state.Store(int32(model.ConnectionAuthenticated))
	c.touch()
}

func (c *connection) State() model.ConnectionState {
	return model.ConnectionState(c.state.Load())
}

func (c *connection) touch() {
	atomic.StoreInt64(&c.lastActivityAt, time.Now().UnixNano())
}

// Send mirrors the teacher's backpressure strategy: wait up to timeout for
// mailbox space, and on saturation evict a lower-priority pending event
// rather than blocking the caller indefinitely.
func (c *connection) Send(ev event.Eventer, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	select {
	case <-c.ctx.Done():
		return false
	case c.sendCh <- ev:
		c.touch()
		return true
	case <-ctx.Done():
		return c.handleBackpressure(ev, timeout)
	}
}

func (c *connection) handleBackpressure(ev event.Eventer, timeout time.Duration) bool {
	if ev.Priority() <= event.PriorityLow {
		atomic.AddUint64(&c.droppedCount, 1)
		return false
	}

	select {
	case oldEv := <-c.sendCh:
		if oldEv.Priority() < ev.Priority() {
			c.sendCh <- ev
			return true
		}
		select {
		case c.sendCh <- oldEv:
		default:
		}
	case <-time.After(timeout):
	}

	atomic.AddUint64(&c.droppedCount, 1)
	return false
}

func (c *connection) Recv() <-chan event.Eventer { return c.sendCh }

func (c *connection) Close() {
	c.closeOnce.Do(func() {
		c.cancelFn()
		c.state.Store(int32(model.ConnectionClosed))
		if c.sendCh != nil {
			close(c.sendCh)
		}
		c.sendCh = nil
		connectionPool.Put(c)
	})
}
