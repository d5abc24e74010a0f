package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/config"
	"github.com/medlink/notify-delivery-service/internal/domain/event"
	"github.com/medlink/notify-delivery-service/internal/domain/presence"
	"github.com/medlink/notify-delivery-service/internal/domain/registry"
	"github.com/medlink/notify-delivery-service/internal/scheduler"
	"github.com/medlink/notify-delivery-service/internal/store"
)

const (
	jobHeartbeat = "heartbeat-probe"
	jobSweep     = "presence-decay-sweep"
	jobCleanup   = "notification-cleanup"
)

// RegisterJobs wires the periodic maintenance of the subsystem onto the
// scheduler: heartbeat probes to live connections, the presence decay
// sweep and the expired-notification purge. The three touch disjoint
// slices of state and run independently of live traffic.
func RegisterJobs(
	s *scheduler.Scheduler,
	cfg *config.Config,
	hub registry.Hubber,
	pres *presence.Registry,
	st store.Store,
	logger *slog.Logger,
) error {
	if err := s.AddInterval(jobHeartbeat, cfg.Presence.HeartbeatInterval, func(ctx context.Context) error {
		reached := hub.BroadcastAll(func(userID uuid.UUID) event.Eventer {
			return event.NewSystemEvent(userID, event.Heartbeat, event.PriorityLow, &event.HeartbeatPayload{
				Timestamp: time.Now().UnixMilli(),
			})
		})
		if reached > 0 {
			logger.Debug("heartbeat probes sent", slog.Int("users", reached))
		}
		return nil
	}); err != nil {
		return err
	}

	if err := s.AddInterval(jobSweep, cfg.Presence.SweepInterval, func(ctx context.Context) error {
		decayed, err := pres.Sweep(ctx, cfg.Presence.AwayTimeout)
		if err != nil {
			return err
		}
		if decayed > 0 {
			logger.Info("stale presences decayed to away", slog.Int("count", decayed))
		}
		return nil
	}); err != nil {
		return err
	}

	return s.AddInterval(jobCleanup, cfg.Cleanup.Interval, func(ctx context.Context) error {
		now := time.Now()
		exempt := cfg.Cleanup.ExemptCategories

		purged, err := st.PurgeExpired(ctx, now, exempt)
		if err != nil {
			return err
		}

		// Backlog eviction: undelivered items that outlived the drain
		// window several times over will never reach their user.
		backlogCutoff := now.Add(-time.Duration(cfg.Cleanup.BacklogMultiplier) * cfg.Delivery.DrainWindow)
		evicted, err := st.PurgeUndeliveredBefore(ctx, backlogCutoff, exempt)
		if err != nil {
			return err
		}

		if purged > 0 || evicted > 0 {
			logger.Info("notification cleanup completed",
				slog.Int64("expired_purged", purged),
				slog.Int64("backlog_evicted", evicted),
			)
		}
		return nil
	})
}
