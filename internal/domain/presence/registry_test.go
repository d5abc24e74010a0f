package presence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
)

func newTestRegistry() *Registry {
	return NewRegistry(NewMemoryStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type captureAnnouncer struct {
	mu      sync.Mutex
	records []*model.PresenceRecord
}

func (a *captureAnnouncer) AnnouncePresence(_ context.Context, rec *model.PresenceRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
}

func (a *captureAnnouncer) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

func TestConnectTransitionsOfflineToOnline(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	ann := &captureAnnouncer{}
	reg.SetAnnouncer(ann)
	ctx := context.Background()
	user := uuid.New()

	rec, err := reg.Connect(ctx, user, uuid.New())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if rec.State != model.PresenceOnline {
		t.Errorf("state = %s, want online", rec.State)
	}
	if ann.count() != 1 {
		t.Errorf("announcements = %d, want 1", ann.count())
	}

	// A second device joins; no transition, no announcement.
	rec, err = reg.Connect(ctx, user, uuid.New())
	if err != nil {
		t.Fatalf("connect second: %v", err)
	}
	if len(rec.Connections) != 2 {
		t.Errorf("connections = %d, want 2", len(rec.Connections))
	}
	if ann.count() != 1 {
		t.Errorf("announcements = %d, want still 1", ann.count())
	}
}

func TestDisconnectLastConnectionForcesOffline(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	ctx := context.Background()
	user := uuid.New()
	connA, connB := uuid.New(), uuid.New()

	if _, err := reg.Connect(ctx, user, connA); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := reg.Connect(ctx, user, connB); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := reg.SetState(ctx, user, model.PresenceBusy, "in consultation"); err != nil {
		t.Fatalf("set state: %v", err)
	}

	rec, err := reg.Disconnect(ctx, user, connA)
	if err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if rec.State != model.PresenceBusy {
		t.Errorf("state after partial disconnect = %s, want busy", rec.State)
	}

	rec, err = reg.Disconnect(ctx, user, connB)
	if err != nil {
		t.Fatalf("disconnect last: %v", err)
	}
	if rec.State != model.PresenceOffline {
		t.Errorf("state = %s, want offline with empty set", rec.State)
	}
	if rec.StatusMessage != "" {
		t.Errorf("status message survived disconnect: %q", rec.StatusMessage)
	}
}

func TestDisconnectUnknownConnectionIsNoop(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	ctx := context.Background()
	user := uuid.New()

	if _, err := reg.Connect(ctx, user, uuid.New()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	rec, err := reg.Disconnect(ctx, user, uuid.New())
	if err != nil {
		t.Fatalf("disconnect unknown: %v", err)
	}
	if rec.State != model.PresenceOnline {
		t.Errorf("state = %s, want online untouched", rec.State)
	}

	// A user never seen at all stays a silent offline default.
	rec, err = reg.Disconnect(ctx, uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("disconnect never seen: %v", err)
	}
	if rec.State != model.PresenceOffline {
		t.Errorf("state = %s, want offline", rec.State)
	}
}

func TestSetStateRejections(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	ctx := context.Background()
	user := uuid.New()

	if _, err := reg.SetState(ctx, user, model.PresenceAway, ""); !errors.Is(err, ErrNoActiveConnections) {
		t.Errorf("never-seen err = %v, want ErrNoActiveConnections", err)
	}

	conn := uuid.New()
	if _, err := reg.Connect(ctx, user, conn); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := reg.SetState(ctx, user, model.PresenceOffline, ""); !errors.Is(err, ErrInvalidState) {
		t.Errorf("explicit offline err = %v, want ErrInvalidState", err)
	}
	if _, err := reg.SetState(ctx, user, model.PresenceState("lurking"), ""); !errors.Is(err, ErrInvalidState) {
		t.Errorf("unknown state err = %v, want ErrInvalidState", err)
	}

	if _, err := reg.Disconnect(ctx, user, conn); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, err := reg.SetState(ctx, user, model.PresenceAway, ""); !errors.Is(err, ErrNoActiveConnections) {
		t.Errorf("disconnected err = %v, want ErrNoActiveConnections", err)
	}
}

func TestTouchRefreshesWithoutTransition(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	ann := &captureAnnouncer{}
	reg.SetAnnouncer(ann)
	ctx := context.Background()
	user := uuid.New()

	// Touch before any connection is a no-op.
	if err := reg.Touch(ctx, user); err != nil {
		t.Fatalf("touch unseen: %v", err)
	}

	if _, err := reg.Connect(ctx, user, uuid.New()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	before, _ := reg.Query(ctx, user)

	time.Sleep(5 * time.Millisecond)
	if err := reg.Touch(ctx, user); err != nil {
		t.Fatalf("touch: %v", err)
	}

	after, _ := reg.Query(ctx, user)
	if !after.LastSeen.After(before.LastSeen) {
		t.Error("touch did not advance lastSeen")
	}
	if ann.count() != 1 {
		t.Errorf("announcements = %d, want 1 (touch is silent)", ann.count())
	}
}

func TestQueryDefaultsOffline(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()

	rec, err := reg.Query(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if rec.State != model.PresenceOffline {
		t.Errorf("state = %s, want offline default", rec.State)
	}
}

func TestSweepDecaysStaleToAway(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	reg := NewRegistry(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	staleOnline := uuid.New()
	staleBusy := uuid.New()
	fresh := uuid.New()
	offline := uuid.New()

	for _, u := range []uuid.UUID{staleOnline, staleBusy, fresh} {
		if _, err := reg.Connect(ctx, u, uuid.New()); err != nil {
			t.Fatalf("connect: %v", err)
		}
	}
	if _, err := reg.SetState(ctx, staleBusy, model.PresenceBusy, ""); err != nil {
		t.Fatalf("set state: %v", err)
	}
	_ = store.Put(ctx, &model.PresenceRecord{UserID: offline, State: model.PresenceOffline})

	// Age the stale records behind the registry's back.
	past := time.Now().Add(-time.Hour)
	for _, u := range []uuid.UUID{staleOnline, staleBusy} {
		rec, _ := store.Get(ctx, u)
		rec.LastSeen = past
		_ = store.Put(ctx, rec)
	}

	decayed, err := reg.Sweep(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if decayed != 2 {
		t.Errorf("decayed = %d, want 2", decayed)
	}

	for _, u := range []uuid.UUID{staleOnline, staleBusy} {
		rec, _ := reg.Query(ctx, u)
		if rec.State != model.PresenceAway {
			t.Errorf("user %s state = %s, want away", u, rec.State)
		}
	}
	if rec, _ := reg.Query(ctx, fresh); rec.State != model.PresenceOnline {
		t.Errorf("fresh user decayed to %s", rec.State)
	}
	if rec, _ := reg.Query(ctx, offline); rec.State != model.PresenceOffline {
		t.Errorf("offline user changed to %s", rec.State)
	}

	// Second sweep is a no-op.
	decayed, err = reg.Sweep(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("sweep repeat: %v", err)
	}
	if decayed != 0 {
		t.Errorf("repeat decayed = %d, want 0", decayed)
	}
}

func TestCounts(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	ctx := context.Background()

	userA, userB := uuid.New(), uuid.New()
	connA := uuid.New()
	if _, err := reg.Connect(ctx, userA, connA); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := reg.Connect(ctx, userB, uuid.New()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := reg.Disconnect(ctx, userA, connA); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	online, total, err := reg.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if online != 1 || total != 2 {
		t.Errorf("counts = (%d, %d), want (1, 2)", online, total)
	}
}
