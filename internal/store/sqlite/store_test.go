package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
	"github.com/medlink/notify-delivery-service/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st, err := New(db)
	if err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return st
}

func seed(t *testing.T, st *Store, recipient uuid.UUID, createdAt time.Time) *model.Notification {
	t.Helper()

	n := &model.Notification{
		ID:          uuid.New(),
		RecipientID: recipient,
		Type:        model.TypeNewMessage,
		Priority:    model.PriorityMedium,
		Title:       "title",
		Message:     "body",
		CreatedAt:   createdAt,
		Delivery:    model.DeliveryState{Queued: true},
	}
	if err := st.Create(context.Background(), n); err != nil {
		t.Fatalf("create: %v", err)
	}
	return n
}

func TestCreateGetRoundtrip(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	sender := uuid.New()
	expires := time.Now().Add(time.Hour).UTC()
	n := &model.Notification{
		ID:          uuid.New(),
		RecipientID: uuid.New(),
		SenderID:    &sender,
		Type:        model.TypeConsultationRequest,
		Priority:    model.PriorityHigh,
		Category:    "clinical",
		Title:       "consultation requested",
		Message:     "patient asks for a slot",
		Content:     map[string]any{"url": "/consultations/42"},
		Related:     &model.EntityRef{Kind: "consultation", ID: uuid.New()},
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   &expires,
		Delivery:    model.DeliveryState{Queued: true},
	}
	if err := st.Create(ctx, n); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.Get(ctx, n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RecipientID != n.RecipientID {
		t.Errorf("recipient = %s, want %s", got.RecipientID, n.RecipientID)
	}
	if got.SenderID == nil || *got.SenderID != sender {
		t.Errorf("sender = %v, want %s", got.SenderID, sender)
	}
	if got.Content["url"] != "/consultations/42" {
		t.Errorf("content url = %v", got.Content["url"])
	}
	if got.Related == nil || got.Related.Kind != "consultation" {
		t.Errorf("related = %+v", got.Related)
	}
	if got.ExpiresAt == nil {
		t.Error("expires_at lost")
	}
	if !got.Delivery.Queued || got.Delivery.Delivered {
		t.Errorf("delivery state = %+v, want queued undelivered", got.Delivery)
	}
}

func TestGetUnknown(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	_, err := st.Get(context.Background(), uuid.New())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMarkDeliveredIdempotentImpressions(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	n := seed(t, st, uuid.New(), time.Now().UTC())

	changed, err := st.MarkDelivered(ctx, n.ID, time.Now())
	if err != nil || !changed {
		t.Fatalf("first MarkDelivered = (%v, %v), want (true, nil)", changed, err)
	}
	changed, err = st.MarkDelivered(ctx, n.ID, time.Now())
	if err != nil || changed {
		t.Fatalf("second MarkDelivered = (%v, %v), want (false, nil)", changed, err)
	}

	got, err := st.Get(ctx, n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Impressions != 1 {
		t.Errorf("impressions = %d, want 1 after repeated delivery", got.Impressions)
	}
	if got.Delivery.Queued {
		t.Error("delivered record still queued")
	}
}

func TestMarkClickedBackfillsChain(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	n := seed(t, st, uuid.New(), time.Now().UTC())

	if _, err := st.MarkClicked(ctx, n.ID, time.Now()); err != nil {
		t.Fatalf("mark clicked: %v", err)
	}

	got, err := st.Get(ctx, n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Delivery.Delivered || !got.Delivery.Opened || !got.Delivery.Clicked {
		t.Errorf("state = %+v, want delivered+opened+clicked", got.Delivery)
	}
	if got.Impressions != 1 || got.Clicks != 1 {
		t.Errorf("impressions/clicks = %d/%d, want 1/1", got.Impressions, got.Clicks)
	}

	// Replay must not double-count.
	if _, err := st.MarkClicked(ctx, n.ID, time.Now()); err != nil {
		t.Fatalf("replay clicked: %v", err)
	}
	got, _ = st.Get(ctx, n.ID)
	if got.Impressions != 1 || got.Clicks != 1 {
		t.Errorf("after replay impressions/clicks = %d/%d, want 1/1", got.Impressions, got.Clicks)
	}
}

func TestUndeliveredWindowCapOrder(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	user := uuid.New()
	now := time.Now().UTC()

	old := seed(t, st, user, now.Add(-48*time.Hour))
	mid := seed(t, st, user, now.Add(-2*time.Hour))
	recent := seed(t, st, user, now.Add(-time.Minute))
	seed(t, st, uuid.New(), now) // other user

	pending, err := st.Undelivered(ctx, user, now.Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("undelivered: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("len = %d, want 2 (window excludes %s)", len(pending), old.ID)
	}
	if pending[0].ID != mid.ID || pending[1].ID != recent.ID {
		t.Error("backlog not ordered oldest first")
	}

	capped, err := st.Undelivered(ctx, user, now.Add(-24*time.Hour), 1)
	if err != nil {
		t.Fatalf("undelivered capped: %v", err)
	}
	if len(capped) != 1 || capped[0].ID != mid.ID {
		t.Error("cap must keep the oldest entries")
	}
}

func TestMarkPushTerminalLeavesHistoryOnly(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	user := uuid.New()
	now := time.Now().UTC()

	n := seed(t, st, user, now)
	if err := st.MarkPushTerminal(ctx, n.ID); err != nil {
		t.Fatalf("mark push terminal: %v", err)
	}

	pending, err := st.Undelivered(ctx, user, now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("undelivered: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("terminal record still in backlog: %d", len(pending))
	}

	history, err := st.History(ctx, user, 1, 10, store.HistoryFilter{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("history len = %d, want 1", len(history))
	}

	count, err := st.QueuedCount(ctx)
	if err != nil {
		t.Fatalf("queued count: %v", err)
	}
	if count != 0 {
		t.Errorf("queued count = %d, want 0", count)
	}
}

func TestHistoryFilters(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	user := uuid.New()
	now := time.Now().UTC()

	msg := seed(t, st, user, now.Add(-time.Minute))
	payment := &model.Notification{
		ID:          uuid.New(),
		RecipientID: user,
		Type:        model.TypePaymentReceived,
		Priority:    model.PriorityLow,
		Title:       "paid",
		Message:     "invoice settled",
		CreatedAt:   now,
		Delivery:    model.DeliveryState{Queued: true},
	}
	if err := st.Create(ctx, payment); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.MarkRead(ctx, user, msg.ID, now); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	byType, err := st.History(ctx, user, 1, 10, store.HistoryFilter{Type: model.TypePaymentReceived})
	if err != nil {
		t.Fatalf("history by type: %v", err)
	}
	if len(byType) != 1 || byType[0].ID != payment.ID {
		t.Errorf("type filter returned %d rows", len(byType))
	}

	unread, err := st.History(ctx, user, 1, 10, store.HistoryFilter{UnreadOnly: true})
	if err != nil {
		t.Fatalf("history unread: %v", err)
	}
	if len(unread) != 1 || unread[0].ID != payment.ID {
		t.Errorf("unread filter returned %d rows", len(unread))
	}
}

func TestMarkAllRead(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	user := uuid.New()
	now := time.Now().UTC()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		n := seed(t, st, user, now.Add(time.Duration(i)*time.Second))
		ids = append(ids, n.ID)
	}
	for _, id := range ids[:3] {
		if _, err := st.MarkRead(ctx, user, id, now); err != nil {
			t.Fatalf("mark read: %v", err)
		}
	}

	count, err := st.MarkAllRead(ctx, user, "", now)
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	again, err := st.MarkAllRead(ctx, user, "", now)
	if err != nil {
		t.Fatalf("mark all read repeat: %v", err)
	}
	if again != 0 {
		t.Errorf("repeat count = %d, want 0", again)
	}
}

func TestMarkReadForeignUser(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	n := seed(t, st, uuid.New(), time.Now().UTC())

	changed, err := st.MarkRead(ctx, uuid.New(), n.ID, time.Now())
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if changed {
		t.Error("foreign user must not mark another recipient's record")
	}
}

func TestPurgeExpiredRespectsExemptions(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	user := uuid.New()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	expired := seed(t, st, user, now.Add(-2*time.Hour))
	audit := &model.Notification{
		ID:          uuid.New(),
		RecipientID: user,
		Type:        model.TypeSystemAnnouncement,
		Priority:    model.PriorityLow,
		Category:    "audit",
		Title:       "audit",
		Message:     "kept",
		CreatedAt:   now.Add(-2 * time.Hour),
		ExpiresAt:   &past,
		Delivery:    model.DeliveryState{Queued: true},
	}
	if err := st.Create(ctx, audit); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Age the first record and mark both read; only non-exempt goes away.
	if _, err := st.db.ExecContext(ctx,
		`UPDATE notifications SET expires_at = ?, is_read = 1`, past); err != nil {
		t.Fatalf("age records: %v", err)
	}

	purged, err := st.PurgeExpired(ctx, now, []string{"audit", "compliance"})
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	if _, err := st.Get(ctx, expired.ID); !errors.Is(err, store.ErrNotFound) {
		t.Error("expired non-exempt record survived purge")
	}
	if _, err := st.Get(ctx, audit.ID); err != nil {
		t.Errorf("exempt audit record was purged: %v", err)
	}
}

func TestPurgeExpiredSkipsUnread(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	n := seed(t, st, uuid.New(), now.Add(-2*time.Hour))
	if _, err := st.db.ExecContext(ctx,
		`UPDATE notifications SET expires_at = ? WHERE id = ?`, past, n.ID.String()); err != nil {
		t.Fatalf("age record: %v", err)
	}

	purged, err := st.PurgeExpired(ctx, now, nil)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 0 {
		t.Errorf("purged = %d, want 0 while unread", purged)
	}
}

func TestPurgeUndeliveredBefore(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	user := uuid.New()
	now := time.Now().UTC()

	stale := seed(t, st, user, now.Add(-40*24*time.Hour))
	fresh := seed(t, st, user, now.Add(-time.Hour))
	delivered := seed(t, st, user, now.Add(-40*24*time.Hour))
	if _, err := st.MarkDelivered(ctx, delivered.ID, now); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}

	purged, err := st.PurgeUndeliveredBefore(ctx, now.Add(-28*24*time.Hour), nil)
	if err != nil {
		t.Fatalf("purge backlog: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
	if _, err := st.Get(ctx, stale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Error("stale undelivered record survived")
	}
	if _, err := st.Get(ctx, fresh.ID); err != nil {
		t.Errorf("fresh record purged: %v", err)
	}
	if _, err := st.Get(ctx, delivered.ID); err != nil {
		t.Errorf("delivered record purged: %v", err)
	}
}

func TestPreferencesUpsert(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	user := uuid.New()

	if _, err := st.Preferences(ctx, user); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing prefs err = %v, want ErrNotFound", err)
	}

	prefs := model.DefaultPreferences(user)
	prefs.UpdatedAt = time.Now().UTC()
	if err := st.SavePreferences(ctx, prefs); err != nil {
		t.Fatalf("save: %v", err)
	}

	prefs.Payments = false
	if err := st.SavePreferences(ctx, prefs); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := st.Preferences(ctx, user)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Payments {
		t.Error("payments flag not updated by upsert")
	}
	if !got.Messages || !got.Consultations {
		t.Error("unrelated flags lost on upsert")
	}
}
