package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
	"github.com/medlink/notify-delivery-service/internal/store"
)

// AckTracker applies client acknowledgment signals to the stored
// delivery state. Unknown or already-processed notification ids are
// benign client-state drift and never fail; only store-level errors
// propagate.
type AckTracker struct {
	store  store.Store
	logger *slog.Logger
}

func NewAckTracker(st store.Store, logger *slog.Logger) *AckTracker {
	return &AckTracker{store: st, logger: logger}
}

// MarkDelivered records a delivery confirmation.
func (t *AckTracker) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	_, err := t.store.MarkDelivered(ctx, id, time.Now())
	if err != nil {
		return fmt.Errorf("ack delivered %s: %w", id, err)
	}
	return nil
}

// MarkOpened records that the client rendered the notification. Out of
// order replay is tolerated: delivered is backfilled if unset, since a
// client cannot open what was never handed to it.
func (t *AckTracker) MarkOpened(ctx context.Context, id uuid.UUID) error {
	_, err := t.store.MarkOpened(ctx, id, time.Now())
	if err != nil {
		return fmt.Errorf("ack opened %s: %w", id, err)
	}
	return nil
}

// MarkClicked records a click, implying opened (and delivered).
func (t *AckTracker) MarkClicked(ctx context.Context, id uuid.UUID) error {
	_, err := t.store.MarkClicked(ctx, id, time.Now())
	if err != nil {
		return fmt.Errorf("ack clicked %s: %w", id, err)
	}
	return nil
}

// MarkRead marks one notification read for its recipient.
func (t *AckTracker) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	_, err := t.store.MarkRead(ctx, userID, id, time.Now())
	if err != nil {
		return fmt.Errorf("ack read %s: %w", id, err)
	}
	return nil
}

// MarkAllRead marks every currently-unread notification of the user,
// optionally narrowed to one type, and returns the number updated.
// Idempotent: a re-invocation updates zero further records.
func (t *AckTracker) MarkAllRead(ctx context.Context, userID uuid.UUID, typeFilter model.NotificationType) (int64, error) {
	count, err := t.store.MarkAllRead(ctx, userID, typeFilter, time.Now())
	if err != nil {
		return 0, fmt.Errorf("mark all read for %s: %w", userID, err)
	}
	return count, nil
}

// Acknowledge maps a client acknowledge command onto the delivery state
// transition it names. An empty action confirms delivery.
func (t *AckTracker) Acknowledge(ctx context.Context, id uuid.UUID, action string) error {
	switch action {
	case "", "delivered":
		return t.MarkDelivered(ctx, id)
	case "opened":
		return t.MarkOpened(ctx, id)
	case "clicked":
		return t.MarkClicked(ctx, id)
	default:
		t.logger.Debug("unknown acknowledge action ignored",
			slog.String("notification_id", id.String()),
			slog.String("action", action),
		)
		return nil
	}
}
