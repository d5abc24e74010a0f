package cmd

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/medlink/notify-delivery-service/config"
	"github.com/medlink/notify-delivery-service/internal/domain/presence"
	"github.com/medlink/notify-delivery-service/internal/domain/registry"
	amqphandler "github.com/medlink/notify-delivery-service/internal/handler/amqp"
	httpsrv "github.com/medlink/notify-delivery-service/internal/handler/http"
	"github.com/medlink/notify-delivery-service/internal/scheduler"
	"github.com/medlink/notify-delivery-service/internal/service"
)

func NewApp(cfg *config.Config) *fx.App {
	opts := []fx.Option{
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
			ProvideStore,
			ProvidePubSub,
		),
		fx.Invoke(watchConfig),

		registry.Module,
		presence.Module,
		scheduler.Module,
		service.Module,
		httpsrv.Module,
	}

	if cfg.AMQP.Enabled {
		opts = append(opts, amqphandler.Module)
	}

	return fx.New(opts...)
}

// watchConfig reloads on file changes; only a handful of fields take
// effect without a restart, so the callback just reports the reload.
func watchConfig(cfg *config.Config, logger *slog.Logger) {
	cfg.Watch(logger, func(next *config.Config) {
		logger.Info("configuration reloaded",
			slog.String("log_level", next.Service.LogLevel))
	})
}
