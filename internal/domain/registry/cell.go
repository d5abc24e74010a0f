package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/domain/event"
)

// Celler is the internal API of a per-user delivery unit.
type Celler interface {
	Push(ev event.Eventer) bool
	Deliver(ev event.Eventer, timeout time.Duration) int
	Attach(conn Connector) (added, alive bool)
	Detach(connID uuid.UUID) bool
	Sessions() int
	Retire(timeout time.Duration) bool
	Stop()
}

// Cell owns all live sessions of a single user. Every user gets exactly
// one cell while connected; the hub evicts idle cells after a quiet
// period.
type Cell struct {
	userID uuid.UUID

	// mailbox decouples asynchronous broadcasts (heartbeats, presence
	// changes) from individual session latency.
	mailbox chan event.Eventer

	// sessions multiplexes one event to every device of the user
	// (mobile, web, desktop).
	sessions map[uuid.UUID]Connector

	mu sync.RWMutex

	// dead tombstones a retired cell. Retirement happens under mu in the
	// same critical section as the emptiness check, so an attach racing a
	// retire either lands before the tombstone or is refused and the hub
	// creates a fresh cell. The flag never clears.
	dead bool

	doneCh   chan struct{}
	stopOnce sync.Once

	sendTimeout    time.Duration
	lastActivityAt time.Time
}

// NewCell spawns the cell's delivery goroutine.
func NewCell(userID uuid.UUID, mailboxSize int, sendTimeout time.Duration) *Cell {
	c := &Cell{
		userID:         userID,
		mailbox:        make(chan event.Eventer, mailboxSize),
		sessions:       make(map[uuid.UUID]Connector),
		doneCh:         make(chan struct{}),
		sendTimeout:    sendTimeout,
		lastActivityAt: time.Now(),
	}
	go c.loop()
	return c
}

// Retire tombstones the cell if it has no sessions and has been quiet
// longer than timeout, or was already retired. The caller owns the
// subsequent Stop and map removal.
func (c *Cell) Retire(timeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return true
	}
	if len(c.sessions) == 0 && time.Since(c.lastActivityAt) > timeout {
		c.dead = true
		return true
	}
	return false
}

func (c *Cell) touch() {
	c.mu.Lock()
	c.lastActivityAt = time.Now()
	c.mu.Unlock()
}

// Push enqueues an event for asynchronous delivery to every session.
// Returns false when the mailbox is saturated.
func (c *Cell) Push(ev event.Eventer) bool {
	c.touch()
	select {
	case c.mailbox <- ev:
		return true
	default:
		return false
	}
}

// Deliver synchronously hands the event to every current session and
// returns the number of sessions it was handed to. A refusal by one
// session does not abort delivery to its siblings.
func (c *Cell) Deliver(ev event.Eventer, timeout time.Duration) int {
	c.mu.RLock()
	conns := make([]Connector, 0, len(c.sessions))
	for _, conn := range c.sessions {
		conns = append(conns, conn)
	}
	c.mu.RUnlock()

	handed := 0
	for _, conn := range conns {
		if conn.Send(ev, timeout) {
			handed++
		}
	}
	return handed
}

// Attach registers a session. added is false for a connection id that
// is already attached, which makes hub registration idempotent; alive
// is false for a retired cell, and the caller must create a fresh one.
func (c *Cell) Attach(conn Connector) (added, alive bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return false, false
	}
	c.lastActivityAt = time.Now()
	if _, ok := c.sessions[conn.GetID()]; ok {
		return false, true
	}
	c.sessions[conn.GetID()] = conn
	return true, true
}

// Detach removes a session. When the last session leaves, the cell is
// tombstoned in the same critical section and true is returned so the
// hub reclaims it; further attaches are refused.
func (c *Cell) Detach(connID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, connID)
	c.lastActivityAt = time.Now()
	if len(c.sessions) == 0 {
		c.dead = true
		return true
	}
	return false
}

// Sessions returns the number of live sessions.
func (c *Cell) Sessions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

func (c *Cell) loop() {
	for {
		select {
		case <-c.doneCh:
			return
		case ev := <-c.mailbox:
			c.Deliver(ev, c.sendTimeout)
		}
	}
}

// Stop terminates the delivery goroutine. Idempotent.
func (c *Cell) Stop() {
	c.stopOnce.Do(func() {
		close(c.doneCh)
	})
}
