package event

import "github.com/google/uuid"

// EventKind enumerates every outbound signal the hub can route to a client.
type EventKind int16

const (
	Connected       EventKind = iota + 1 // [SYSTEM]
	Disconnected                         // [SYSTEM]
	Notification                         // [BUSINESS]
	Heartbeat                            // [SYSTEM]
	PresenceChanged                      // [SYSTEM]
	Redirect                             // [ACTION_OUTCOME]
	History                              // [QUERY_RESULT]
	Settings                             // [QUERY_RESULT]
	Ack                                  // [QUERY_RESULT]
)

var kindNames = map[EventKind]string{
	Connected:       "connected",
	Disconnected:    "disconnected",
	Notification:    "notification",
	Heartbeat:       "heartbeat",
	PresenceChanged: "user-presence-change",
	Redirect:        "redirect",
	History:         "notification-history",
	Settings:        "notification-settings",
	Ack:             "ack",
}

// String returns the wire name of the kind, matching the client protocol.
func (k EventKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

type EventPriority int32

const (
	PriorityLow    EventPriority = 10
	PriorityNormal EventPriority = 20
	PriorityHigh   EventPriority = 30
	PriorityUrgent EventPriority = 40
)

// Eventer defines the contract for all data packets flowing through the Hub.
type Eventer interface {
	GetID() string
	GetKind() EventKind
	GetUserID() uuid.UUID
	GetPriority() EventPriority
	GetOccurredAt() int64
	GetPayload() any
}

// Exportable marks an event that should be re-published to the message bus
// for multi-instance synchronization. An empty routing key skips publishing.
type Exportable interface {
	GetRoutingKey() string
}
