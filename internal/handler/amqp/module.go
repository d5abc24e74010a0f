package amqp

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"

	"github.com/medlink/notify-delivery-service/config"
	pubsubadapter "github.com/medlink/notify-delivery-service/internal/adapter/pubsub"
)

var Module = fx.Module("amqp-handler",
	fx.Provide(
		func(cfg *config.Config, wmLogger watermill.LoggerAdapter) *pubsubadapter.PublisherProvider {
			return pubsubadapter.NewPublisherProvider(cfg.AMQP.URL, wmLogger)
		},
		func(cfg *config.Config, wmLogger watermill.LoggerAdapter) *pubsubadapter.SubscriberProvider {
			return pubsubadapter.NewSubscriberProvider(cfg.AMQP.URL, wmLogger)
		},

		NewEventHandler,
		NewWatermillRouter,
	),

	fx.Invoke(runRouter),
)

func runRouter(lc fx.Lifecycle, h *EventHandler, router *message.Router, subProvider *pubsubadapter.SubscriberProvider) error {
	if err := h.RegisterHandlers(router, subProvider); err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				// Run blocks until Close; startup errors surface in logs.
				_ = router.Run(context.Background())
			}()

			select {
			case <-router.Running():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		OnStop: func(context.Context) error {
			return router.Close()
		},
	})

	return nil
}
