package registry

import "time"

// Option configures a Registry at construction.
type Option func(*Registry)

// WithEvictionInterval configures how often the janitor runs to reclaim
// memory from idle device collectives.
func WithEvictionInterval(d time.Duration) Option {
	return func(r *Registry) { r.evictionInterval = d }
}

// WithIdleTimeout sets the quiet period after which a device collective with
// no attached connections becomes eligible for eviction.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) { r.idleTimeout = d }
}

// WithMailboxSize sets the buffer capacity of each device collective's
// mailbox (the backpressure threshold).
func WithMailboxSize(size int) Option {
	return func(r *Registry) { r.mailboxSize = size }
}
