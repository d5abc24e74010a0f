package model

import (
	"time"

	"github.com/google/uuid"
)

// Priority classifies how urgent a notification is for filtering and
// backpressure decisions. Critical bypasses user preferences entirely.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Valid reports whether p is one of the known priority levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// NotificationType is the enumerated business tag of a notification.
// New types may appear from upstream producers at any time; unknown types
// must pass through the preference filter as allowed.
type NotificationType string

const (
	TypeEmergencyAlert      NotificationType = "emergency_alert"
	TypeConsultationRequest NotificationType = "consultation_request"
	TypeConsultationUpdate  NotificationType = "consultation_update"
	TypePaymentReceived     NotificationType = "payment_received"
	TypeNewMessage          NotificationType = "new_message"
	TypeSystemAnnouncement  NotificationType = "system_announcement"
	TypeReminder            NotificationType = "reminder"
)

// EntityRef points at the domain object a notification is about,
// e.g. a consultation or an invoice. Used by action handlers to build
// redirect targets.
type EntityRef struct {
	Kind string    `json:"kind" db:"related_kind"`
	ID   uuid.UUID `json:"id" db:"related_id"`
}

// DeliveryState tracks the push lifecycle of a single notification.
//
// Transitions are monotonic: Delivered never reverts, Opened implies
// Delivered, Clicked implies Opened. All mutation goes through the
// Mark* methods below so the invariant cannot be bypassed.
type DeliveryState struct {
	Queued      bool       `json:"queued" db:"queued"`
	Delivered   bool       `json:"delivered" db:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	Opened      bool       `json:"opened" db:"opened"`
	OpenedAt    *time.Time `json:"opened_at,omitempty" db:"opened_at"`
	Clicked     bool       `json:"clicked" db:"clicked"`
	ClickedAt   *time.Time `json:"clicked_at,omitempty" db:"clicked_at"`
}

// Notification is the core entity of the delivery subsystem.
type Notification struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	RecipientID uuid.UUID        `json:"recipient_id" db:"recipient_id"`
	SenderID    *uuid.UUID       `json:"sender_id,omitempty" db:"sender_id"`
	Type        NotificationType `json:"type" db:"type"`
	Priority    Priority         `json:"priority" db:"priority"`
	Category    string           `json:"category" db:"category"`
	Title       string           `json:"title" db:"title"`
	Message     string           `json:"message" db:"message"`
	Content     map[string]any   `json:"content,omitempty" db:"-"`
	Related     *EntityRef       `json:"related,omitempty" db:"-"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty" db:"expires_at"`

	Delivery DeliveryState `json:"delivery"`

	IsRead bool       `json:"is_read" db:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty" db:"read_at"`

	// Analytics counters. Impressions is bumped once per logical delivery,
	// never per connection.
	Impressions int64 `json:"impressions" db:"impressions"`
	Clicks      int64 `json:"clicks" db:"clicks"`
}

// MarkDelivered records delivery. Returns false if the notification was
// already delivered, so callers do not double-count impressions.
func (n *Notification) MarkDelivered(at time.Time) bool {
	if n.Delivery.Delivered {
		return false
	}
	n.Delivery.Delivered = true
	n.Delivery.DeliveredAt = &at
	n.Delivery.Queued = false
	return true
}

// MarkOpened records that the client rendered the notification. Tolerates
// out-of-order client replay by backfilling the delivered flag.
func (n *Notification) MarkOpened(at time.Time) bool {
	if !n.Delivery.Delivered {
		n.MarkDelivered(at)
	}
	if n.Delivery.Opened {
		return false
	}
	n.Delivery.Opened = true
	n.Delivery.OpenedAt = &at
	return true
}

// MarkClicked records a click. Clicked implies opened implies delivered.
func (n *Notification) MarkClicked(at time.Time) bool {
	if !n.Delivery.Opened {
		n.MarkOpened(at)
	}
	if n.Delivery.Clicked {
		return false
	}
	n.Delivery.Clicked = true
	n.Delivery.ClickedAt = &at
	n.Clicks++
	return true
}

// Expired reports whether the notification has passed its TTL at the
// given instant. Notifications without an expiry never expire.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && n.ExpiresAt.Before(now)
}
