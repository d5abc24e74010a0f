// Package store declares the persistence contract the delivery
// subsystem requires of the notification store. The subsystem owns the
// query/update surface only; schema migrations and operational concerns
// belong to the owning service.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
)

// ErrNotFound is returned for lookups of unknown notification ids.
var ErrNotFound = errors.New("store: notification not found")

// HistoryFilter narrows history queries.
type HistoryFilter struct {
	Type       model.NotificationType
	UnreadOnly bool
}

// Store is the persistence contract.
//
// State-changing methods are atomic and enforce the monotonic delivery
// invariant at the storage layer: delivered never reverts, opened
// implies delivered, clicked implies opened. Mark* methods return true
// only when they actually transitioned the flag, so callers can keep
// impression counting idempotent across reconnect cycles.
type Store interface {
	Create(ctx context.Context, n *model.Notification) error
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)

	// Undelivered returns the user's queued notifications created at or
	// after since, oldest first, capped at limit. Records made terminal
	// for push (preference-denied) are excluded.
	Undelivered(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*model.Notification, error)
	History(ctx context.Context, userID uuid.UUID, page, limit int, f HistoryFilter) ([]*model.Notification, error)
	QueuedCount(ctx context.Context) (int64, error)

	// MarkPushTerminal takes an undelivered notification out of the
	// delivery queue without marking it delivered; it stays visible to
	// history queries.
	MarkPushTerminal(ctx context.Context, id uuid.UUID) error

	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkOpened(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkClicked(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, typeFilter model.NotificationType, at time.Time) (int64, error)

	// PurgeExpired deletes read notifications past their expiry, skipping
	// exempt categories. PurgeUndeliveredBefore is the backlog eviction
	// bound for users offline beyond the drain window.
	PurgeExpired(ctx context.Context, now time.Time, exemptCategories []string) (int64, error)
	PurgeUndeliveredBefore(ctx context.Context, cutoff time.Time, exemptCategories []string) (int64, error)

	Preferences(ctx context.Context, userID uuid.UUID) (*model.Preferences, error)
	SavePreferences(ctx context.Context, p *model.Preferences) error
}
