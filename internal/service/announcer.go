package service

import (
	"context"
	"log/slog"

	"github.com/medlink/notify-delivery-service/internal/adapter/pubsub"
	"github.com/medlink/notify-delivery-service/internal/domain/event"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
	"github.com/medlink/notify-delivery-service/internal/domain/presence"
	"github.com/medlink/notify-delivery-service/internal/domain/registry"
)

var _ presence.Announcer = (*PresenceAnnouncer)(nil)

// PresenceAnnouncer distributes presence transitions: locally to the
// user's other live devices, and to the fanout bus so sibling instances
// can do the same. Both paths are best-effort.
type PresenceAnnouncer struct {
	hub    registry.Hubber
	bus    pubsub.EventDispatcher
	logger *slog.Logger
}

func NewPresenceAnnouncer(hub registry.Hubber, bus pubsub.EventDispatcher, logger *slog.Logger) *PresenceAnnouncer {
	return &PresenceAnnouncer{hub: hub, bus: bus, logger: logger}
}

func (a *PresenceAnnouncer) AnnouncePresence(ctx context.Context, rec *model.PresenceRecord) {
	ev := event.NewPresenceEvent(rec)

	a.hub.Broadcast(ev)

	if err := a.bus.Publish(ctx, ev); err != nil {
		a.logger.Warn("presence bus publish failed",
			slog.String("user_id", rec.UserID.String()),
			slog.Any("err", err),
		)
	}
}
