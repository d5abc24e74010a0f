package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
)

// NotificationInput is the payload internal callers hand to the
// dispatcher. The recipient is passed separately so one input can fan
// out to many users in a broadcast.
type NotificationInput struct {
	SenderID    *uuid.UUID             `json:"sender_id,omitempty"`
	Type        model.NotificationType `json:"type"`
	Priority    model.Priority         `json:"priority"`
	Category    string                 `json:"category"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Content     map[string]any         `json:"content,omitempty"`
	RelatedKind string                 `json:"related_kind,omitempty"`
	RelatedID   uuid.UUID              `json:"related_id,omitempty"`
	// TTL, when positive, sets the notification's expiry relative to its
	// creation time.
	TTL time.Duration `json:"ttl,omitempty"`
}

// ToModel materializes a fresh notification for one recipient. An
// invalid priority falls back to medium rather than failing the send.
func (in *NotificationInput) ToModel(recipient uuid.UUID, now time.Time) *model.Notification {
	priority := in.Priority
	if !priority.Valid() {
		priority = model.PriorityMedium
	}

	n := &model.Notification{
		ID:          uuid.New(),
		RecipientID: recipient,
		SenderID:    in.SenderID,
		Type:        in.Type,
		Priority:    priority,
		Category:    in.Category,
		Title:       in.Title,
		Message:     in.Message,
		Content:     in.Content,
		CreatedAt:   now,
		Delivery:    model.DeliveryState{Queued: true},
	}

	if in.RelatedKind != "" && in.RelatedID != uuid.Nil {
		n.Related = &model.EntityRef{Kind: in.RelatedKind, ID: in.RelatedID}
	}
	if in.TTL > 0 {
		expires := now.Add(in.TTL)
		n.ExpiresAt = &expires
	}
	return n
}
