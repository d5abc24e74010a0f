package registry

import (
	"context"
	"log/slog"

	"github.com/medlink/notify-delivery-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("registry",
	fx.Provide(
		func(cfg *config.Config, logger *slog.Logger) *Hub {
			return NewHub(logger,
				WithEvictionInterval(cfg.Hub.EvictionInterval),
				WithIdleTimeout(cfg.Hub.IdleTimeout),
				WithMailboxSize(cfg.Hub.MailboxSize),
				WithSendTimeout(cfg.Hub.SendTimeout),
			)
		},
		fx.Annotate(
			func(h *Hub) Hubber { return h },
			fx.As(new(Hubber)),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, h Hubber) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				h.Shutdown()
				return nil
			},
		})
	}),
)
