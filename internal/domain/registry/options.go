package registry

import "time"

// Option is a functional configuration type for the Hub.
type Option func(*Hub)

// WithEvictionInterval configures how often the janitor runs to reclaim
// memory from inactive users.
func WithEvictionInterval(d time.Duration) Option {
	return func(h *Hub) {
		h.config.evictionInterval = d
	}
}

// WithIdleTimeout defines the quiet period after which a sessionless
// cell is eligible for eviction.
func WithIdleTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.config.idleTimeout = d
	}
}

// WithMailboxSize sets the buffer capacity of each user's mailbox.
func WithMailboxSize(size int) Option {
	return func(h *Hub) {
		h.config.mailboxSize = size
	}
}

// WithSendTimeout bounds how long a fanout waits on one session's buffer.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.config.sendTimeout = d
	}
}
