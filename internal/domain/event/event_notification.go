package event

import (
	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
)

var _ Eventer = (*NotificationEvent)(nil)

// NotificationEvent carries one persisted notification toward the
// recipient's live connections. The event's user is always the physical
// recipient, which lets every node check local connectivity before
// handling delivery.
type NotificationEvent struct {
	ID           uuid.UUID           `json:"id"`
	Notification *model.Notification `json:"notification"`
	OccurredAt   int64               `json:"occurred_at"`
}

// NewNotificationEvent wraps a notification for hub routing.
func NewNotificationEvent(n *model.Notification) *NotificationEvent {
	return &NotificationEvent{
		ID:           uuid.New(),
		Notification: n,
		OccurredAt:   n.CreatedAt.UnixMilli(),
	}
}

func (e *NotificationEvent) GetID() string        { return e.ID.String() }
func (e *NotificationEvent) GetKind() EventKind   { return Notification }
func (e *NotificationEvent) GetUserID() uuid.UUID { return e.Notification.RecipientID }
func (e *NotificationEvent) GetOccurredAt() int64 { return e.OccurredAt }
func (e *NotificationEvent) GetPayload() any      { return e.Notification }

// GetPriority maps the notification's business priority onto the hub's
// backpressure tiers so critical pushes survive full mailboxes.
func (e *NotificationEvent) GetPriority() EventPriority {
	switch e.Notification.Priority {
	case model.PriorityCritical:
		return PriorityUrgent
	case model.PriorityHigh:
		return PriorityHigh
	case model.PriorityLow:
		return PriorityLow
	default:
		return PriorityNormal
	}
}
