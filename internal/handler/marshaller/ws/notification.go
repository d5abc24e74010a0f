package wsmarshaller

import (
	"github.com/medlink/notify-delivery-service/internal/domain/model"
)

type WSNotification struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Priority  string         `json:"priority"`
	Category  string         `json:"category,omitempty"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Content   map[string]any `json:"content,omitempty"`
	Related   any            `json:"related,omitempty"`
	From      string         `json:"from_id,omitempty"`
	CreatedAt int64          `json:"created_at"`
	IsRead    bool           `json:"is_read"`
}

func mapNotification(n *model.Notification) *WSNotification {
	msg := &WSNotification{
		ID:        n.ID.String(),
		Type:      string(n.Type),
		Priority:  string(n.Priority),
		Category:  n.Category,
		Title:     n.Title,
		Message:   n.Message,
		Content:   n.Content,
		CreatedAt: n.CreatedAt.UnixMilli(),
		IsRead:    n.IsRead,
	}

	if n.SenderID != nil {
		msg.From = n.SenderID.String()
	}
	if n.Related != nil {
		msg.Related = n.Related
	}

	return msg
}
