package presence

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
)

// ErrNotSeen is returned by Store.Get for users without a presence record.
var ErrNotSeen = errors.New("presence: user never seen")

// Store abstracts where presence records live. The in-memory map serves
// a single instance; the redis store makes presence shared across a
// horizontally scaled deployment. Records are never deleted, only marked
// offline; retention is an external concern.
type Store interface {
	Get(ctx context.Context, userID uuid.UUID) (*model.PresenceRecord, error)
	Put(ctx context.Context, rec *model.PresenceRecord) error
	All(ctx context.Context) ([]*model.PresenceRecord, error)
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is the single-instance presence store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*model.PresenceRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]*model.PresenceRecord)}
}

func (s *MemoryStore) Get(_ context.Context, userID uuid.UUID) (*model.PresenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	if !ok {
		return nil, ErrNotSeen
	}
	cp := clone(rec)
	return cp, nil
}

func (s *MemoryStore) Put(_ context.Context, rec *model.PresenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.UserID] = clone(rec)
	return nil
}

func (s *MemoryStore) All(_ context.Context) ([]*model.PresenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.PresenceRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, clone(rec))
	}
	return out, nil
}

// clone keeps callers from mutating shared map state behind the lock.
func clone(rec *model.PresenceRecord) *model.PresenceRecord {
	cp := *rec
	cp.Connections = append([]uuid.UUID(nil), rec.Connections...)
	return &cp
}
