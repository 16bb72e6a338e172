// Package tcp implements [4.7 Connection Handler]: the per-connection state
// machine that turns raw TCP bytes into Wire Codec frames and dispatches
// them to the Connection Registry or the Participant Service.
package tcp

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/chatfabric/relay-node/internal/domain/registry"
)

// Server accepts TCP connections and runs one Connection Handler per
// session until the listener is closed or ctx is canceled.
type Server struct {
	addr        string
	registrar   registry.Registrar
	dispatcher  Dispatcher
	logger      *slog.Logger
	mailboxSize int

	listener net.Listener
}

// NewServer constructs a Server bound to addr (the §6 `port` key, formatted
// as ":<port>" by the caller).
func NewServer(addr string, registrar registry.Registrar, dispatcher Dispatcher, logger *slog.Logger, mailboxSize int) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if mailboxSize <= 0 {
		mailboxSize = 256
	}
	return &Server{addr: addr, registrar: registrar, dispatcher: dispatcher, logger: logger, mailboxSize: mailboxSize}
}

// Serve binds the listener and accepts connections until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	s.logger.Info("TCP_LISTENING", "addr", s.addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("TCP_ACCEPT_FAILED", "error", err)
			continue
		}

		session := newSession(ctx, conn, s.registrar, s.dispatcher, s.logger, s.mailboxSize)
		go session.run()
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}
