package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/fx"

	"github.com/medlink/notify-delivery-service/config"
	"github.com/medlink/notify-delivery-service/internal/adapter/pubsub"
	amqphandler "github.com/medlink/notify-delivery-service/internal/handler/amqp"
	"github.com/medlink/notify-delivery-service/internal/store"
	"github.com/medlink/notify-delivery-service/internal/store/sqlite"
)

func ProvideLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Service.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Service.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(slog.String("service", ServiceName))
	slog.SetDefault(logger)
	return logger
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger)
}

func ProvideStore(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	st, err := sqlite.Open(cfg.Store.DSN)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("store opened", slog.String("dsn", cfg.Store.DSN))
			return nil
		},
		OnStop: func(context.Context) error {
			return st.Close()
		},
	})

	return st, nil
}

// ProvidePubSub selects the fanout bus implementation. With AMQP off the
// nop dispatcher discards publishes, which is correct for a single node.
func ProvidePubSub(cfg *config.Config, wmLogger watermill.LoggerAdapter, logger *slog.Logger) (pubsub.EventDispatcher, error) {
	if !cfg.AMQP.Enabled {
		return pubsub.NewNopDispatcher(), nil
	}

	pub, err := pubsub.NewPublisherProvider(cfg.AMQP.URL, wmLogger).Build(amqphandler.NotifyEventsExchange)
	if err != nil {
		return nil, err
	}
	return pubsub.NewEventDispatcher(pub, logger), nil
}
