package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
)

func TestAllow(t *testing.T) {
	t.Parallel()

	prefs := model.DefaultPreferences(uuid.New())
	prefs.Payments = false
	prefs.Reminders = false

	tests := []struct {
		name     string
		typ      model.NotificationType
		priority model.Priority
		prefs    *model.Preferences
		want     bool
	}{
		{
			name:     "critical bypasses disabled flag",
			typ:      model.TypePaymentReceived,
			priority: model.PriorityCritical,
			prefs:    prefs,
			want:     true,
		},
		{
			name:     "critical bypasses missing record",
			typ:      model.TypeEmergencyAlert,
			priority: model.PriorityCritical,
			prefs:    nil,
			want:     true,
		},
		{
			name:     "high allowed without record",
			typ:      model.TypeConsultationRequest,
			priority: model.PriorityHigh,
			prefs:    nil,
			want:     true,
		},
		{
			name:     "medium denied without record",
			typ:      model.TypeNewMessage,
			priority: model.PriorityMedium,
			prefs:    nil,
			want:     false,
		},
		{
			name:     "low denied without record",
			typ:      model.TypeReminder,
			priority: model.PriorityLow,
			prefs:    nil,
			want:     false,
		},
		{
			name:     "enabled flag allows",
			typ:      model.TypeNewMessage,
			priority: model.PriorityMedium,
			prefs:    prefs,
			want:     true,
		},
		{
			name:     "disabled flag denies",
			typ:      model.TypePaymentReceived,
			priority: model.PriorityHigh,
			prefs:    prefs,
			want:     false,
		},
		{
			name:     "disabled reminders deny low priority",
			typ:      model.TypeReminder,
			priority: model.PriorityLow,
			prefs:    prefs,
			want:     false,
		},
		{
			name:     "unmapped type passes through",
			typ:      model.TypeEmergencyAlert,
			priority: model.PriorityLow,
			prefs:    prefs,
			want:     true,
		},
		{
			name:     "unknown upstream type passes through",
			typ:      model.NotificationType("billing_dispute"),
			priority: model.PriorityMedium,
			prefs:    prefs,
			want:     true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			n := &model.Notification{Type: tt.typ, Priority: tt.priority}
			if got := Allow(n, tt.prefs); got != tt.want {
				t.Fatalf("Allow(%s/%s) = %v, want %v", tt.typ, tt.priority, got, tt.want)
			}
		})
	}
}
