/*
Package registry implements [4.5 Connection Registry]: the pending table of
unauthenticated connections, the per-participant device collectives, and the
fan-out of dispatched events to sockets.

Key architectural concepts, carried over from an actor-model delivery
design: each participant with at least one attached device is represented by
an isolated DeviceCollective (actor) holding a mailbox; slow consumers are
decoupled from the rest of the system by that mailbox, and idle collectives
are reclaimed by a background janitor.
*/
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/chatfabric/relay-node/internal/domain/event"
)

// collectiver is the registry's internal delivery unit for one participant.
type collectiver interface {
	Push(ev event.Eventer) bool
	Attach(conn Connector)
	Detach(connID string) bool
	IsIdle(timeout time.Duration) bool
	Stop()
}

// DeviceCollective implements the per-participant mailbox and fan-out
// described in §3 DATA MODEL ("DeviceCollective") and §4.5.
type DeviceCollective struct {
	participantID string

	mailbox chan event.Eventer

	mu    sync.RWMutex
	conns map[string]Connector // keyed by connection ID string

	doneCh chan struct{}

	lastActivityUnix int64
}

func newDeviceCollective(participantID string, bufferSize int) *DeviceCollective {
	c := &DeviceCollective{
		participantID:    participantID,
		mailbox:          make(chan event.Eventer, bufferSize),
		conns:            make(map[string]Connector),
		doneCh:           make(chan struct{}),
		lastActivityUnix: time.Now().Unix(),
	}
	go c.loop()
	return c
}

func (c *DeviceCollective) touch() {
	atomic.StoreInt64(&c.lastActivityUnix, time.Now().Unix())
}

// IsIdle reports whether the collective has no attached connections and has
// seen no activity for at least timeout; such collectives are reclaimed by
// the registry's eviction janitor.
func (c *DeviceCollective) IsIdle(timeout time.Duration) bool {
	c.mu.RLock()
	hasConns := len(c.conns) > 0
	c.mu.RUnlock()

	if hasConns {
		return false
	}

	lastActivity := time.Unix(atomic.LoadInt64(&c.lastActivityUnix), 0)
	return time.Since(lastActivity) > timeout
}

// Push enqueues ev for delivery to every attached connection. Returns false
// (dropped) if the collective's mailbox is saturated.
func (c *DeviceCollective) Push(ev event.Eventer) bool {
	c.touch()
	select {
	case c.mailbox <- ev:
		return true
	default:
		return false
	}
}

// Attach adds conn to the collective, keyed by its connection ID.
func (c *DeviceCollective) Attach(conn Connector) {
	c.mu.Lock()
	c.conns[conn.ID().String()] = conn
	c.mu.Unlock()
	c.touch()
}

// Detach removes the connection with the given ID and reports whether the
// collective is now empty.
func (c *DeviceCollective) Detach(connID string) bool {
	c.mu.Lock()
	delete(c.conns, connID)
	isEmpty := len(c.conns) == 0
	c.mu.Unlock()
	c.touch()
	return isEmpty
}

func (c *DeviceCollective) loop() {
	for {
		select {
		case <-c.doneCh:
			return
		case ev := <-c.mailbox:
			c.deliver(ev)

			// Batch-drain: once awakened, keep delivering without returning
			// to select for every single event, smoothing out bursts.
			for range 64 {
				select {
				case next := <-c.mailbox:
					c.deliver(next)
				default:
					goto wait
				}
			}
		wait:
		}
	}
}

// deliver fans ev out to every attached connection, honoring an exclusion
// (DeviceBroadcastCommand mirrors to every device but the source).
func (c *DeviceCollective) deliver(ev event.Eventer) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.conns) == 0 {
		return
	}

	excludeID, exclude := ev.Exclude()

	for id, conn := range c.conns {
		if exclude && id == excludeID.String() {
			continue
		}
		// Strict delivery window: a slow connection does not stall fan-out
		// to the rest of the participant's devices.
		conn.Send(ev, 250*time.Millisecond)
	}
}

func (c *DeviceCollective) Stop() {
	close(c.doneCh)

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, conn := range c.conns {
		conn.Close()
		delete(c.conns, id)
	}
}
