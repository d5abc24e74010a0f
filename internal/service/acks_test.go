package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
	"github.com/medlink/notify-delivery-service/internal/store"
	"github.com/medlink/notify-delivery-service/internal/store/sqlite"
)

func newAckFixture(t *testing.T) (store.Store, *AckTracker) {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st, err := sqlite.New(db)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return st, NewAckTracker(st, logger)
}

func seedNotification(t *testing.T, st store.Store, userID uuid.UUID, mutate func(n *model.Notification)) *model.Notification {
	t.Helper()

	n := &model.Notification{
		ID:          uuid.New(),
		RecipientID: userID,
		Type:        model.TypeNewMessage,
		Priority:    model.PriorityHigh,
		Category:    "clinical",
		Title:       "title",
		Message:     "message",
		CreatedAt:   time.Now().UTC(),
		Delivery:    model.DeliveryState{Queued: true},
	}
	if mutate != nil {
		mutate(n)
	}
	if err := st.Create(context.Background(), n); err != nil {
		t.Fatalf("seed notification: %v", err)
	}
	return n
}

func TestAcknowledgeActionMapping(t *testing.T) {
	t.Parallel()
	st, acks := newAckFixture(t)
	ctx := context.Background()
	user := uuid.New()

	tests := []struct {
		action    string
		delivered bool
		opened    bool
		clicked   bool
	}{
		{action: "", delivered: true},
		{action: "delivered", delivered: true},
		{action: "opened", delivered: true, opened: true},
		{action: "clicked", delivered: true, opened: true, clicked: true},
	}

	for _, tc := range tests {
		t.Run("action_"+tc.action, func(t *testing.T) {
			n := seedNotification(t, st, user, nil)

			if err := acks.Acknowledge(ctx, n.ID, tc.action); err != nil {
				t.Fatalf("acknowledge %q: %v", tc.action, err)
			}

			got, err := st.Get(ctx, n.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Delivery.Delivered != tc.delivered ||
				got.Delivery.Opened != tc.opened ||
				got.Delivery.Clicked != tc.clicked {
				t.Errorf("state after %q = %+v, want delivered=%v opened=%v clicked=%v",
					tc.action, got.Delivery, tc.delivered, tc.opened, tc.clicked)
			}
		})
	}
}

func TestAcknowledgeUnknownActionIgnored(t *testing.T) {
	t.Parallel()
	st, acks := newAckFixture(t)
	ctx := context.Background()

	n := seedNotification(t, st, uuid.New(), nil)
	if err := acks.Acknowledge(ctx, n.ID, "launched"); err != nil {
		t.Fatalf("unknown action should be ignored, got %v", err)
	}

	got, err := st.Get(ctx, n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Delivery.Delivered {
		t.Error("unknown action mutated delivery state")
	}
}

func TestAcknowledgeReplayKeepsCountersStable(t *testing.T) {
	t.Parallel()
	st, acks := newAckFixture(t)
	ctx := context.Background()

	n := seedNotification(t, st, uuid.New(), nil)

	// Out-of-order and repeated client replay.
	for _, action := range []string{"clicked", "opened", "delivered", "clicked"} {
		if err := acks.Acknowledge(ctx, n.ID, action); err != nil {
			t.Fatalf("acknowledge %q: %v", action, err)
		}
	}

	got, err := st.Get(ctx, n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Impressions != 1 || got.Clicks != 1 {
		t.Errorf("impressions=%d clicks=%d, want 1/1 after replay", got.Impressions, got.Clicks)
	}
}

func TestMarkAllReadScopedByType(t *testing.T) {
	t.Parallel()
	st, acks := newAckFixture(t)
	ctx := context.Background()
	user := uuid.New()

	seedNotification(t, st, user, nil)
	seedNotification(t, st, user, nil)
	seedNotification(t, st, user, func(n *model.Notification) { n.Type = model.TypeReminder })

	count, err := acks.MarkAllRead(ctx, user, model.TypeNewMessage)
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2 messages marked", count)
	}

	// The reminder is still unread; the sweep without a filter picks it up.
	count, err = acks.MarkAllRead(ctx, user, "")
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if count != 1 {
		t.Errorf("unfiltered count = %d, want the remaining reminder", count)
	}
}
