package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/domain/event"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
)

// Hubber is the connection-registry gateway: session lifecycle plus
// event routing toward live connections.
type Hubber interface {
	Register(conn Connector)
	Unregister(connID uuid.UUID) (uuid.UUID, bool)
	HasActive(userID uuid.UUID) bool
	Fanout(userID uuid.UUID, ev event.Eventer) int
	Broadcast(ev event.Eventer) bool
	BroadcastAll(build func(userID uuid.UUID) event.Eventer) int
	Stats() model.HubStats
	Shutdown()
}

var _ Hubber = (*Hub)(nil)

// Hub maps users to their virtual cells. Lookups are lock-free via
// sync.Map; mutation is serialized per user inside each cell.
type Hub struct {
	// cells stores map[uuid.UUID]*Cell keyed by user id.
	cells sync.Map
	// owners is the reverse index map[uuid.UUID]uuid.UUID from connection
	// id to user id, so Unregister needs only the connection id.
	owners sync.Map

	config    hubConfig
	logger    *slog.Logger
	startedAt time.Time

	janitorDone chan struct{}
	stopOnce    sync.Once
}

type hubConfig struct {
	mailboxSize      int
	sendTimeout      time.Duration
	evictionInterval time.Duration
	idleTimeout      time.Duration
}

func defaultHubConfig() hubConfig {
	return hubConfig{
		mailboxSize:      1024,
		sendTimeout:      500 * time.Millisecond,
		evictionInterval: 15 * time.Minute,
		idleTimeout:      30 * time.Minute,
	}
}

func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		config:      defaultHubConfig(),
		logger:      logger,
		startedAt:   time.Now(),
		janitorDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.janitor()
	return h
}

// HasActive reports whether the user has at least one live session.
// An idle cell awaiting eviction does not count.
func (h *Hub) HasActive(userID uuid.UUID) bool {
	if val, ok := h.cells.Load(userID); ok {
		return val.(Celler).Sessions() > 0
	}
	return false
}

// Register attaches a connection, lazily creating the user's cell.
// Re-registering the same connection id is a no-op. A retired cell still
// visible in the map refuses the attach; the loop clears it and creates
// a fresh one, so a reconnect racing the previous disconnect is never
// stranded on a dead cell.
func (h *Hub) Register(conn Connector) {
	userID := conn.GetUserID()
	for {
		val, ok := h.cells.Load(userID)
		if !ok {
			fresh := NewCell(userID, h.config.mailboxSize, h.config.sendTimeout)
			actual, loaded := h.cells.LoadOrStore(userID, Celler(fresh))
			if loaded {
				// Lost the race; the fresh cell's goroutine must not leak.
				fresh.Stop()
			}
			val = actual
		}
		added, alive := val.(Celler).Attach(conn)
		if !alive {
			h.cells.CompareAndDelete(userID, val)
			continue
		}
		if added {
			h.owners.Store(conn.GetID(), userID)
		}
		return
	}
}

// Unregister removes a connection by id and returns the affected user.
// Unknown ids are a safe no-op.
func (h *Hub) Unregister(connID uuid.UUID) (uuid.UUID, bool) {
	val, ok := h.owners.LoadAndDelete(connID)
	if !ok {
		return uuid.Nil, false
	}
	userID := val.(uuid.UUID)

	if cv, ok := h.cells.Load(userID); ok {
		cell := cv.(Celler)
		if cell.Detach(connID) {
			// Last session gone; Detach tombstoned the cell, so only this
			// exact value may be removed. A racing Register may already
			// have replaced it with a fresh cell.
			cell.Stop()
			h.cells.CompareAndDelete(userID, cv)
		}
	}
	return userID, true
}

// Fanout synchronously hands the event to every live session of the user
// and returns the handed-to count. A zero return means the user holds no
// sessions on this node.
func (h *Hub) Fanout(userID uuid.UUID, ev event.Eventer) int {
	val, ok := h.cells.Load(userID)
	if !ok {
		return 0
	}
	cell := val.(Celler)
	handed := cell.Deliver(ev, h.config.sendTimeout)
	if refused := cell.Sessions() - handed; refused > 0 {
		h.logger.Warn("fanout refused by saturated sessions",
			slog.String("user_id", userID.String()),
			slog.Int("refused", refused),
		)
	}
	return handed
}

// Broadcast routes the event to its target user's mailbox. Returns false
// on miss or overflow.
func (h *Hub) Broadcast(ev event.Eventer) bool {
	if val, ok := h.cells.Load(ev.GetUserID()); ok {
		return val.(Celler).Push(ev)
	}
	return false
}

// BroadcastAll pushes a per-user event to every cell with live sessions.
// Used by the heartbeat prober. Returns the number of users reached.
func (h *Hub) BroadcastAll(build func(userID uuid.UUID) event.Eventer) int {
	reached := 0
	h.cells.Range(func(key, val any) bool {
		cell := val.(Celler)
		if cell.Sessions() == 0 {
			return true
		}
		if cell.Push(build(key.(uuid.UUID))) {
			reached++
		}
		return true
	})
	return reached
}

// Stats snapshots the local registry.
func (h *Hub) Stats() model.HubStats {
	st := model.HubStats{Uptime: time.Since(h.startedAt)}
	h.cells.Range(func(_, val any) bool {
		if n := val.(Celler).Sessions(); n > 0 {
			st.TotalUsers++
			st.TotalConnections += n
		}
		return true
	})
	return st
}

// janitor reclaims cells that kept no sessions for the idle timeout.
func (h *Hub) janitor() {
	ticker := time.NewTicker(h.config.evictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.janitorDone:
			return
		case <-ticker.C:
			evicted := 0
			h.cells.Range(func(key, val any) bool {
				cell := val.(Celler)
				if cell.Retire(h.config.idleTimeout) {
					cell.Stop()
					h.cells.CompareAndDelete(key, val)
					evicted++
				}
				return true
			})
			if evicted > 0 {
				h.logger.Debug("idle cells reclaimed", slog.Int("count", evicted))
			}
		}
	}
}

// Shutdown stops the janitor and every cell goroutine.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		close(h.janitorDone)
		h.cells.Range(func(key, val any) bool {
			val.(Celler).Stop()
			h.cells.Delete(key)
			return true
		})
	})
}
