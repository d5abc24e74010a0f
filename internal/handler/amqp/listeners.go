package amqp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/domain/event"
	"github.com/medlink/notify-delivery-service/internal/service/dto"
)

// [ON_NOTIFY_REQUESTED]
// A producer asked us to deliver a notification to one user. The
// dispatcher persists, filters and pushes internally, so no event comes
// back out of this listener.
func (h *EventHandler) OnNotificationRequestedV1(ctx context.Context, userID uuid.UUID, raw *dto.NotificationRequestV1) (event.Eventer, error) {
	res := h.notifier.SendNotificationToUser(ctx, userID, raw.ToInput())
	if !res.Success {
		// NACK: persistence failure is retryable.
		return nil, fmt.Errorf("send to %s: %w", userID, res.Err)
	}
	return nil, nil
}

// [ON_BROADCAST_REQUESTED]
func (h *EventHandler) OnBroadcastRequestedV1(ctx context.Context, _ uuid.UUID, raw *dto.BroadcastRequestV1) (event.Eventer, error) {
	if len(raw.UserIDs) == 0 {
		return nil, nil
	}

	results := h.notifier.BroadcastNotification(ctx, raw.UserIDs, raw.NotificationRequestV1.ToInput())

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	if failed == len(results) {
		// NACK only when nothing got through; partial failure is terminal
		// because re-delivery would duplicate the successful sends.
		return nil, fmt.Errorf("broadcast failed for all %d recipients", failed)
	}
	return nil, nil
}

// [ON_PRESENCE_CHANGED]
// A sibling node announced a presence transition. Fan it out to this
// node's connections of the same user so all devices stay in sync. The
// returned event is deliberately not Exportable: re-publishing a
// consumed announcement would loop it through the bus forever.
func (h *EventHandler) OnPresenceChangedV1(_ context.Context, userID uuid.UUID, raw *dto.PresenceSyncV1) (event.Eventer, error) {
	return event.NewSystemEvent(userID, event.PresenceChanged, event.PriorityLow, raw), nil
}
