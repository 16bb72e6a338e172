package tcp

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/chatfabric/relay-node/internal/domain/model"
	"github.com/chatfabric/relay-node/internal/domain/registry"
	"github.com/chatfabric/relay-node/internal/domain/wire"
	"github.com/chatfabric/relay-node/internal/tracing"
)

// sendTimeout bounds how long a direct reply (CONTACT_BATCH) may wait for
// mailbox space before the registry's backpressure eviction kicks in (§5).
const sendTimeout = time.Second

// groupRequestTypes are out of core scope (§4.7): the handler ignores them
// and sends nothing back.
var groupRequestTypes = map[wire.RequestType]bool{
	wire.JoinGroup:      true,
	wire.LeaveGroup:     true,
	wire.FetchGroups:    true,
	wire.SearchForGroup: true,
}

// session runs the Pending -> Authenticated -> Closed state machine for one
// TCP connection: a reader goroutine decodes inbound frames and dispatches
// them, while run() itself drains the registry Connector's mailbox and
// serializes every write to the socket.
type session struct {
	ctx  context.Context
	conn net.Conn

	registrar  registry.Registrar
	dispatcher Dispatcher
	logger     *slog.Logger

	connector registry.Connector
	writer    *bufio.Writer
}

func newSession(ctx context.Context, conn net.Conn, registrar registry.Registrar, dispatcher Dispatcher, logger *slog.Logger, mailboxSize int) *session {
	return &session{
		ctx:        ctx,
		conn:       conn,
		registrar:  registrar,
		dispatcher: dispatcher,
		logger:     logger,
		connector:  registry.NewConnection(ctx, mailboxSize),
		writer:     bufio.NewWriter(conn),
	}
}

// run is the connection's implicit single-threaded context (§5): all writes
// to the socket happen here, whether driven by the registry fan-out or by a
// direct response to an inbound request, so two concurrent events never
// interleave bytes.
func (s *session) run() {
	_, span := tracing.Tracer().Start(s.ctx, "tcp.session")
	defer span.End()

	defer func() {
		s.registrar.Remove(s.connector)
		s.connector.Close()
		_ = s.conn.Close()
	}()

	s.registrar.OnConnect(s.connector)

	readerDone := make(chan struct{})
	go s.readLoop(readerDone)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-readerDone:
			return
		case ev, ok := <-s.connector.Recv():
			if !ok {
				return
			}
			if err := s.write(ev.ResponseType(), ev.Payload()); err != nil {
				s.logger.Warn("TCP_WRITE_FAILED", "error", err)
				return
			}
		}
	}
}

func (s *session) write(responseType wire.ResponseType, payload []byte) error {
	if err := wire.WriteFrame(s.writer, uint16(responseType), payload); err != nil {
		return err
	}
	return s.writer.Flush()
}

// readLoop decodes inbound frames and dispatches them per the §4.7 state
// table. It never writes to the socket directly: responses to the frame
// being handled still go through the connector's mailbox so every write
// passes through run()'s single point of serialization.
func (s *session) readLoop(done chan struct{}) {
	defer close(done)

	reader := bufio.NewReader(s.conn)
	for {
		msgType, payload, err := wire.ReadFrame(reader)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("TCP_READ_ENDED", "error", err)
			}
			return
		}

		if err := s.handleFrame(wire.RequestType(msgType), payload); err != nil {
			s.logger.Warn("TCP_FRAME_HANDLING_FAILED", "type", wire.RequestType(msgType), "error", err)
		}
	}
}

func (s *session) handleFrame(requestType wire.RequestType, payload []byte) error {
	if requestType == wire.Disconnect {
		// Close the transport so readLoop's next ReadFrame fails and
		// returns; run()'s defer then does the actual Registry.Remove
		// teardown (§4.7: DISCONNECT behaves like transport close).
		_ = s.conn.Close()
		return nil
	}

	state := s.connector.State()

	if state == model.ConnectionPending {
		if requestType != wire.Identity {
			// Silently dropped per §4.7; implementations must not act on it.
			return nil
		}
		return s.registrar.Register(s.ctx, s.connector, payload)
	}

	if state != model.ConnectionAuthenticated {
		return nil
	}

	switch requestType {
	case wire.DirectMessage:
		return s.dispatcher.RelayDirectMessage(s.ctx, s.connector.ParticipantIdentifier(), payload)
	case wire.MatchContacts:
		respPayload, err := s.dispatcher.ResolveContacts(payload)
		if err != nil {
			return err
		}
		s.connector.Send(directResponse{responseType: wire.ContactBatch, payload: respPayload}, sendTimeout)
		return nil
	default:
		if groupRequestTypes[requestType] {
			// Group operations are out of core scope (§4.7): no response.
			return nil
		}
		return nil
	}
}
