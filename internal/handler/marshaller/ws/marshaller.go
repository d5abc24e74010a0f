package wsmarshaller

import (
	"encoding/json"

	"github.com/medlink/notify-delivery-service/internal/domain/event"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
)

// WSEvent is a generic wrapper for WebSocket messages to provide consistent structure
type WSEvent struct {
	Event   string `json:"event"` // e.g., "notification", "connected"
	ID      string `json:"id"`    // event ID
	SentAt  int64  `json:"sent_at"`
	Payload any    `json:"payload"`
}

// MarshallDeliveryEvent prepares an outbound event for WebSocket transmission.
func MarshallDeliveryEvent(ev event.Eventer) ([]byte, error) {
	res := &WSEvent{
		Event:  ev.GetKind().String(),
		ID:     ev.GetID(),
		SentAt: ev.GetOccurredAt(),
	}

	switch p := ev.GetPayload().(type) {
	case *model.Notification:
		res.Payload = mapNotification(p)
	default:
		// System payloads are already JSON-friendly structures.
		res.Payload = p
	}

	return json.Marshal(res)
}
