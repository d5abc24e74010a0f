package presence

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
)

// ErrNoActiveConnections rejects explicit state changes from users with
// an empty connection set; their state stays Offline.
var ErrNoActiveConnections = errors.New("presence: no active connections")

// ErrInvalidState rejects transitions into unknown states or an explicit
// request for Offline, which only an empty connection set can produce.
var ErrInvalidState = errors.New("presence: invalid target state")

// Announcer receives presence transitions for downstream distribution
// (local hub broadcast plus the fanout bus). Touch-only updates are not
// announced.
type Announcer interface {
	AnnouncePresence(ctx context.Context, rec *model.PresenceRecord)
}

// lockStripes bounds per-user lock memory. Events for one user always
// hash to the same stripe, which serializes racing connect/disconnect
// pairs without a global lock.
const lockStripes = 128

// Registry is the per-user presence state machine over an injected
// Store. All transitions run under the user's stripe lock; the decay
// sweep takes the same locks as live connection events.
type Registry struct {
	store     Store
	logger    *slog.Logger
	announcer Announcer

	stripes [lockStripes]sync.Mutex
}

func NewRegistry(store Store, logger *slog.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger,
	}
}

// SetAnnouncer wires the transition sink. Must be called before traffic.
func (r *Registry) SetAnnouncer(a Announcer) {
	r.announcer = a
}

func (r *Registry) lock(userID uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	h.Write(userID[:])
	return &r.stripes[h.Sum32()%lockStripes]
}

// Connect adds the connection to the user's active set. The first
// connection transitions Offline -> Online.
func (r *Registry) Connect(ctx context.Context, userID, connID uuid.UUID) (*model.PresenceRecord, error) {
	mu := r.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := r.store.Get(ctx, userID)
	if errors.Is(err, ErrNotSeen) {
		rec = &model.PresenceRecord{UserID: userID, State: model.PresenceOffline}
	} else if err != nil {
		return nil, fmt.Errorf("presence: connect %s: %w", userID, err)
	}

	rec.AddConnection(connID)
	rec.LastSeen = time.Now()

	transitioned := false
	if rec.State == model.PresenceOffline {
		rec.State = model.PresenceOnline
		transitioned = true
	}

	if err := r.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("presence: connect %s: %w", userID, err)
	}
	if transitioned {
		r.announce(ctx, rec)
	}
	return rec, nil
}

// Disconnect removes the connection; an empty set forces Offline and
// records the moment as lastSeen. Unknown connections are a no-op.
func (r *Registry) Disconnect(ctx context.Context, userID, connID uuid.UUID) (*model.PresenceRecord, error) {
	mu := r.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := r.store.Get(ctx, userID)
	if errors.Is(err, ErrNotSeen) {
		return &model.PresenceRecord{UserID: userID, State: model.PresenceOffline}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("presence: disconnect %s: %w", userID, err)
	}

	if !rec.RemoveConnection(connID) {
		return rec, nil
	}
	rec.LastSeen = time.Now()

	transitioned := false
	if len(rec.Connections) == 0 && rec.State != model.PresenceOffline {
		rec.State = model.PresenceOffline
		rec.StatusMessage = ""
		transitioned = true
	}

	if err := r.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("presence: disconnect %s: %w", userID, err)
	}
	if transitioned {
		r.announce(ctx, rec)
	}
	return rec, nil
}

// SetState applies an explicit user intent (online/away/busy). Requests
// from fully disconnected users are rejected and the record stays
// Offline.
func (r *Registry) SetState(ctx context.Context, userID uuid.UUID, state model.PresenceState, message string) (*model.PresenceRecord, error) {
	if !state.Valid() || state == model.PresenceOffline {
		return nil, ErrInvalidState
	}

	mu := r.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := r.store.Get(ctx, userID)
	if errors.Is(err, ErrNotSeen) {
		return nil, ErrNoActiveConnections
	}
	if err != nil {
		return nil, fmt.Errorf("presence: set state %s: %w", userID, err)
	}
	if len(rec.Connections) == 0 {
		return nil, ErrNoActiveConnections
	}

	changed := rec.State != state || rec.StatusMessage != message
	rec.State = state
	rec.StatusMessage = message
	rec.LastSeen = time.Now()

	if err := r.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("presence: set state %s: %w", userID, err)
	}
	if changed {
		r.announce(ctx, rec)
	}
	return rec, nil
}

// Touch refreshes lastSeen without any state transition. Heartbeat
// responses land here.
func (r *Registry) Touch(ctx context.Context, userID uuid.UUID) error {
	mu := r.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := r.store.Get(ctx, userID)
	if errors.Is(err, ErrNotSeen) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("presence: touch %s: %w", userID, err)
	}

	rec.LastSeen = time.Now()
	if err := r.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("presence: touch %s: %w", userID, err)
	}
	return nil
}

// Query returns the user's record, defaulting to Offline if never seen.
func (r *Registry) Query(ctx context.Context, userID uuid.UUID) (*model.PresenceRecord, error) {
	rec, err := r.store.Get(ctx, userID)
	if errors.Is(err, ErrNotSeen) {
		return &model.PresenceRecord{UserID: userID, State: model.PresenceOffline}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("presence: query %s: %w", userID, err)
	}
	return rec, nil
}

// Sweep decays records whose lastSeen exceeds awayTimeout into Away.
// Offline and already-Away records are untouched, so re-running the
// sweep is a no-op. Returns the number of transitions performed.
func (r *Registry) Sweep(ctx context.Context, awayTimeout time.Duration) (int, error) {
	records, err := r.store.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("presence: sweep: %w", err)
	}

	cutoff := time.Now().Add(-awayTimeout)
	decayed := 0

	for _, snapshot := range records {
		if snapshot.State == model.PresenceOffline || snapshot.State == model.PresenceAway {
			continue
		}
		if snapshot.LastSeen.After(cutoff) {
			continue
		}

		// Re-check under the user's stripe lock; a live event may have
		// refreshed the record since the snapshot.
		mu := r.lock(snapshot.UserID)
		mu.Lock()
		rec, err := r.store.Get(ctx, snapshot.UserID)
		if err == nil &&
			rec.State != model.PresenceOffline && rec.State != model.PresenceAway &&
			!rec.LastSeen.After(cutoff) {
			rec.State = model.PresenceAway
			if err := r.store.Put(ctx, rec); err != nil {
				r.logger.Error("presence decay write failed",
					slog.String("user_id", snapshot.UserID.String()),
					slog.Any("err", err),
				)
			} else {
				decayed++
				r.announce(ctx, rec)
			}
		}
		mu.Unlock()
	}
	return decayed, nil
}

// Counts returns (users not offline, total tracked users) for stats.
func (r *Registry) Counts(ctx context.Context) (online int, total int, err error) {
	records, err := r.store.All(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("presence: counts: %w", err)
	}
	for _, rec := range records {
		total++
		if rec.State != model.PresenceOffline {
			online++
		}
	}
	return online, total, nil
}

func (r *Registry) announce(ctx context.Context, rec *model.PresenceRecord) {
	if r.announcer == nil {
		return
	}
	r.announcer.AnnouncePresence(ctx, rec)
}
