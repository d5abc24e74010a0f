package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
)

// NotificationRequestV1 is the wire form of a send request consumed from
// the broker. The recipient is carried in the routing key, not the body.
type NotificationRequestV1 struct {
	SenderID    *uuid.UUID     `json:"sender_id,omitempty"`
	Type        string         `json:"type"`
	Priority    string         `json:"priority"`
	Category    string         `json:"category,omitempty"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Content     map[string]any `json:"content,omitempty"`
	RelatedKind string         `json:"related_kind,omitempty"`
	RelatedID   uuid.UUID      `json:"related_id,omitempty"`
	TTLSeconds  int64          `json:"ttl_seconds,omitempty"`
}

// ToInput maps the wire request onto the dispatcher's input type.
func (r *NotificationRequestV1) ToInput() *NotificationInput {
	return &NotificationInput{
		SenderID:    r.SenderID,
		Type:        model.NotificationType(r.Type),
		Priority:    model.Priority(r.Priority),
		Category:    r.Category,
		Title:       r.Title,
		Message:     r.Message,
		Content:     r.Content,
		RelatedKind: r.RelatedKind,
		RelatedID:   r.RelatedID,
		TTL:         time.Duration(r.TTLSeconds) * time.Second,
	}
}

// BroadcastRequestV1 targets an explicit recipient list.
type BroadcastRequestV1 struct {
	UserIDs []uuid.UUID `json:"user_ids"`

	NotificationRequestV1
}

// PresenceSyncV1 mirrors the exported presence event so sibling nodes
// can decode each other's announcements.
type PresenceSyncV1 struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	State         string    `json:"state"`
	StatusMessage string    `json:"status_message,omitempty"`
	OccurredAt    int64     `json:"occurred_at"`
}
