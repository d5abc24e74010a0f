package presence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/medlink/notify-delivery-service/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("presence",
	fx.Provide(
		// The store is the scaling boundary: a single instance runs on the
		// in-memory map, a fleet shares state through redis.
		func(cfg *config.Config, lc fx.Lifecycle, logger *slog.Logger) (Store, error) {
			if !cfg.Redis.Enabled {
				return NewMemoryStore(), nil
			}

			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := client.Ping(ctx).Err(); err != nil {
						return fmt.Errorf("presence: redis ping: %w", err)
					}
					logger.Info("presence store backed by redis", slog.String("addr", cfg.Redis.Addr))
					return nil
				},
				OnStop: func(context.Context) error {
					return client.Close()
				},
			})
			return NewRedisStore(client), nil
		},
		NewRegistry,
	),
)
