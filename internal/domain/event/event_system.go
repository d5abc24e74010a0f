package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
)

var _ Eventer = (*SystemEvent)(nil)

// SystemEvent is a generic envelope for internal signals: connection
// handshakes, heartbeats, presence changes, action outcomes and query
// results.
type SystemEvent struct {
	id         string
	userID     uuid.UUID
	kind       EventKind
	priority   EventPriority
	occurredAt int64
	payload    any
}

func (e *SystemEvent) GetID() string              { return e.id }
func (e *SystemEvent) GetKind() EventKind         { return e.kind }
func (e *SystemEvent) GetUserID() uuid.UUID       { return e.userID }
func (e *SystemEvent) GetPriority() EventPriority { return e.priority }
func (e *SystemEvent) GetOccurredAt() int64       { return e.occurredAt }
func (e *SystemEvent) GetPayload() any            { return e.payload }

// NewSystemEvent is a universal factory for creating any signal.
func NewSystemEvent(userID uuid.UUID, kind EventKind, priority EventPriority, payload any) *SystemEvent {
	return &SystemEvent{
		id:         uuid.NewString(),
		userID:     userID,
		kind:       kind,
		priority:   priority,
		occurredAt: time.Now().UnixMilli(),
		payload:    payload,
	}
}

// ConnectedPayload is sent to the client upon successful subscription.
type ConnectedPayload struct {
	Ok            bool   `json:"ok"`
	ConnectionID  string `json:"connection_id"`
	ServerVersion string `json:"server_version"`
}

// DisconnectedPayload announces server-side session termination.
type DisconnectedPayload struct {
	Reason string `json:"reason"`
}

// HeartbeatPayload carries the probe timestamp.
type HeartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// RedirectPayload is the generic action-outcome signal.
type RedirectPayload struct {
	URL string `json:"url"`
}

var (
	_ Eventer    = (*PresenceEvent)(nil)
	_ Exportable = (*PresenceEvent)(nil)
)

// PresenceEvent announces a presence transition. It is exported to the
// fanout bus so sibling instances can sync the user's other devices.
type PresenceEvent struct {
	ID            uuid.UUID           `json:"id"`
	UserID        uuid.UUID           `json:"user_id"`
	State         model.PresenceState `json:"state"`
	StatusMessage string              `json:"status_message,omitempty"`
	OccurredAt    int64               `json:"occurred_at"`
}

// NewPresenceEvent snapshots a presence record into a routable event.
func NewPresenceEvent(rec *model.PresenceRecord) *PresenceEvent {
	return &PresenceEvent{
		ID:            uuid.New(),
		UserID:        rec.UserID,
		State:         rec.State,
		StatusMessage: rec.StatusMessage,
		OccurredAt:    time.Now().UnixMilli(),
	}
}

func (e *PresenceEvent) GetID() string              { return e.ID.String() }
func (e *PresenceEvent) GetKind() EventKind         { return PresenceChanged }
func (e *PresenceEvent) GetUserID() uuid.UUID       { return e.UserID }
func (e *PresenceEvent) GetPriority() EventPriority { return PriorityLow }
func (e *PresenceEvent) GetOccurredAt() int64       { return e.OccurredAt }
func (e *PresenceEvent) GetPayload() any            { return e }

// GetRoutingKey follows the pattern notify.presence.v1.{user_id}.changed.
func (e *PresenceEvent) GetRoutingKey() string {
	return fmt.Sprintf("notify.presence.v1.%s.changed", e.UserID)
}
