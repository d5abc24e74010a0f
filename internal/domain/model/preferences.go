package model

import (
	"time"

	"github.com/google/uuid"
)

// Preferences holds a user's per-channel delivery switches. A missing
// record is NOT equivalent to a default-true record: the preference
// filter applies fail-safe rules when no record exists.
type Preferences struct {
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	Consultations bool      `json:"consultations" db:"consultations"`
	Payments      bool      `json:"payments" db:"payments"`
	Messages      bool      `json:"messages" db:"messages"`
	System        bool      `json:"system" db:"system"`
	Reminders     bool      `json:"reminders" db:"reminders"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultPreferences returns the record created when a user saves
// settings for the first time. Everything on.
func DefaultPreferences(userID uuid.UUID) *Preferences {
	return &Preferences{
		UserID:        userID,
		Consultations: true,
		Payments:      true,
		Messages:      true,
		System:        true,
		Reminders:     true,
	}
}

// FlagFor maps a notification type onto the preference switch that
// governs it. The second return is false for unknown types, which the
// filter treats as allowed.
func (p *Preferences) FlagFor(t NotificationType) (bool, bool) {
	switch t {
	case TypeConsultationRequest, TypeConsultationUpdate:
		return p.Consultations, true
	case TypePaymentReceived:
		return p.Payments, true
	case TypeNewMessage:
		return p.Messages, true
	case TypeSystemAnnouncement:
		return p.System, true
	case TypeReminder:
		return p.Reminders, true
	}
	return false, false
}
