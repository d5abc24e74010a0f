package service

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/medlink/notify-delivery-service/config"
	"github.com/medlink/notify-delivery-service/internal/domain/presence"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		func(cfg *config.Config) DispatcherConfig {
			return DispatcherConfig{
				DrainWindow:      cfg.Delivery.DrainWindow,
				DrainLimit:       cfg.Delivery.DrainLimit,
				DrainPace:        cfg.Delivery.DrainPace,
				SendTimeout:      cfg.Hub.SendTimeout,
				BroadcastWorkers: cfg.Delivery.BroadcastWorkers,
			}
		},

		NewDispatcher,
		fx.Annotate(
			func(d *Dispatcher) Notifier { return d },
			fx.As(new(Notifier)),
		),
		fx.Annotate(
			func(d *Dispatcher) Deliverer { return d },
			fx.As(new(Deliverer)),
		),

		NewAckTracker,
		NewActionRegistry,
		NewPresenceAnnouncer,
	),

	// [DECORATION_LAYER] Intercept Notifier to add cross-cutting concerns
	fx.Decorate(func(orig Notifier, logger *slog.Logger) Notifier {
		return &NotifierMiddleware{
			Next:   orig,
			Logger: logger,
		}
	}),

	// Presence changes fan out through the hub and the event bus.
	fx.Invoke(func(reg *presence.Registry, a *PresenceAnnouncer) {
		reg.SetAnnouncer(a)
	}),

	fx.Invoke(RegisterJobs),
)
