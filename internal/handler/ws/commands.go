package ws

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
)

// Client command names. These are the inbound half of the wire protocol;
// outbound event names live on event.EventKind.
const (
	cmdSubscribe      = "subscribe"
	cmdHeartbeat      = "heartbeat"
	cmdAcknowledge    = "acknowledge"
	cmdAction         = "notification-action"
	cmdPresenceUpdate = "presence-update"
	cmdHistory        = "get-notification-history"
	cmdMarkAllRead    = "mark-all-read"
	cmdGetSettings    = "get-notification-settings"
	cmdUpdateSettings = "update-notification-settings"
)

// ClientCommand is the envelope every inbound frame must decode into.
type ClientCommand struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type ackData struct {
	NotificationID uuid.UUID `json:"notification_id"`
	Event          string    `json:"event,omitempty"` // delivered|opened|clicked, empty means delivered
}

type actionData struct {
	NotificationID uuid.UUID      `json:"notification_id"`
	Action         string         `json:"action"`
	Data           map[string]any `json:"data,omitempty"`
}

type presenceData struct {
	State         string `json:"state"`
	StatusMessage string `json:"status_message,omitempty"`
}

type historyData struct {
	Page       int                    `json:"page"`
	Limit      int                    `json:"limit"`
	Type       model.NotificationType `json:"type,omitempty"`
	UnreadOnly bool                   `json:"unread_only,omitempty"`
}

type markAllReadData struct {
	Type model.NotificationType `json:"type,omitempty"`
}

type settingsData struct {
	Consultations bool `json:"consultations"`
	Payments      bool `json:"payments"`
	Messages      bool `json:"messages"`
	System        bool `json:"system"`
	Reminders     bool `json:"reminders"`
}

// ackResult is the payload of the Ack events sent back for mutating
// commands that have no richer response.
type ackResult struct {
	Command        string     `json:"command"`
	Ok             bool       `json:"ok"`
	NotificationID *uuid.UUID `json:"notification_id,omitempty"`
	Updated        int64      `json:"updated,omitempty"`
	Error          string     `json:"error,omitempty"`
}
