package model

import (
	"time"

	"github.com/google/uuid"
)

// PresenceState classifies a user's current availability.
type PresenceState string

const (
	PresenceOffline PresenceState = "offline"
	PresenceOnline  PresenceState = "online"
	PresenceAway    PresenceState = "away"
	PresenceBusy    PresenceState = "busy"
)

// Valid reports whether s is a known presence state.
func (s PresenceState) Valid() bool {
	switch s {
	case PresenceOffline, PresenceOnline, PresenceAway, PresenceBusy:
		return true
	}
	return false
}

// PresenceRecord is the per-user presence state machine snapshot.
//
// Invariant: State == PresenceOffline iff Connections is empty. The
// presence registry enforces this on every transition; the record itself
// is a plain value so it can round-trip through any Store implementation.
type PresenceRecord struct {
	UserID        uuid.UUID     `json:"user_id"`
	State         PresenceState `json:"state"`
	LastSeen      time.Time     `json:"last_seen"`
	StatusMessage string        `json:"status_message,omitempty"`
	Connections   []uuid.UUID   `json:"connections"`
}

// HasConnection reports whether connID is in the active set.
func (r *PresenceRecord) HasConnection(connID uuid.UUID) bool {
	for _, id := range r.Connections {
		if id == connID {
			return true
		}
	}
	return false
}

// AddConnection appends connID if absent. Returns true on change.
func (r *PresenceRecord) AddConnection(connID uuid.UUID) bool {
	if r.HasConnection(connID) {
		return false
	}
	r.Connections = append(r.Connections, connID)
	return true
}

// RemoveConnection drops connID from the active set. Returns true on change.
func (r *PresenceRecord) RemoveConnection(connID uuid.UUID) bool {
	for i, id := range r.Connections {
		if id == connID {
			r.Connections = append(r.Connections[:i], r.Connections[i+1:]...)
			return true
		}
	}
	return false
}
