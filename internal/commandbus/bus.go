// Package commandbus implements [4.4 Command Bus]: a typed in-process
// dispatcher that decouples producers of dispatch intents (the Participant
// Service) from the connections that actually write to sockets (the
// Connection Registry). One command type routes to exactly one handler.
package commandbus

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// Handler processes exactly one command type. Implementations type-assert
// cmd to their concrete command struct; the Bus guarantees that assertion
// never fails because registration is keyed by the command's reflect.Type.
type Handler func(ctx context.Context, cmd any) error

// Middleware wraps a Handler, typically to add cross-cutting behavior like
// logging. Middlewares are applied in registration order: the first
// registered is the outermost.
type Middleware func(next Handler) Handler

// Bus dispatches commands to their single registered handler, running the
// configured middleware chain around every dispatch.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type]Handler
	chain    []Middleware
}

// New constructs a Bus with the given middleware chain. Middlewares run in
// the order supplied, outermost first.
func New(middlewares ...Middleware) *Bus {
	return &Bus{
		handlers: make(map[reflect.Type]Handler),
		chain:    middlewares,
	}
}

// Register binds the command type C (the handler's parameter type) to a
// handler. Registering a second handler for the same type is an error: the
// core's contract is exactly one handler per command type.
func Register[C any](b *Bus, handler func(ctx context.Context, cmd C) error) error {
	t := reflect.TypeOf((*C)(nil)).Elem()

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[t]; exists {
		return fmt.Errorf("commandbus: handler already registered for %s", t)
	}

	b.handlers[t] = func(ctx context.Context, cmd any) error {
		typed, ok := cmd.(C)
		if !ok {
			return fmt.Errorf("commandbus: dispatched value %T does not match registered type %s", cmd, t)
		}
		return handler(ctx, typed)
	}
	return nil
}

// Handle dispatches cmd to its registered handler through the middleware
// chain. It is synchronous from the caller's perspective: handlers may
// themselves schedule further asynchronous work, but Handle does not return
// until the handler (and every middleware around it) has returned.
func (b *Bus) Handle(ctx context.Context, cmd any) error {
	t := reflect.TypeOf(cmd)

	b.mu.RLock()
	handler, ok := b.handlers[t]
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("commandbus: no handler registered for %s", t)
	}

	wrapped := handler
	for i := len(b.chain) - 1; i >= 0; i-- {
		wrapped = b.chain[i](wrapped)
	}
	return wrapped(ctx, cmd)
}
