package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/service/dto"
)

var _ Notifier = (*NotifierMiddleware)(nil)

// NotifierMiddleware decorates the Notifier with outcome logging so the
// send path stays observable without touching business logic.
type NotifierMiddleware struct {
	Next   Notifier
	Logger *slog.Logger
}

func (m *NotifierMiddleware) SendNotificationToUser(ctx context.Context, userID uuid.UUID, input *dto.NotificationInput) SendResult {
	start := time.Now()
	res := m.Next.SendNotificationToUser(ctx, userID, input)

	if !res.Success {
		m.Logger.Error("notification send failed",
			slog.String("user_id", userID.String()),
			slog.String("type", string(input.Type)),
			slog.Duration("took", time.Since(start)),
			slog.Any("err", res.Err),
		)
		return res
	}

	m.Logger.Debug("notification send completed",
		slog.String("user_id", userID.String()),
		slog.String("notification_id", res.NotificationID.String()),
		slog.String("type", string(input.Type)),
		slog.Bool("pushed", res.Delivered),
		slog.Duration("took", time.Since(start)),
	)
	return res
}

func (m *NotifierMiddleware) BroadcastNotification(ctx context.Context, userIDs []uuid.UUID, input *dto.NotificationInput) []SendResult {
	start := time.Now()
	results := m.Next.BroadcastNotification(ctx, userIDs, input)

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	m.Logger.Info("broadcast completed",
		slog.Int("recipients", len(userIDs)),
		slog.Int("failed", failed),
		slog.String("type", string(input.Type)),
		slog.Duration("took", time.Since(start)),
	)
	return results
}
