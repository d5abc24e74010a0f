package amqp

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/adapter/pubsub"
	"github.com/medlink/notify-delivery-service/internal/domain/registry"
	"github.com/medlink/notify-delivery-service/internal/service"
)

const (
	// ------------------- EXCHANGES (SOURCES) -------------------
	NotifyRequestExchange = "notify.request"
	NotifyEventsExchange  = "notify.events"

	// ------------------- TOPICS (ROUTING KEYS) -----------------
	TopicNotificationRequested = "notify.request.v1.*.created"
	TopicBroadcastRequested    = "notify.request.v1.broadcast"
	TopicPresenceChanged       = "notify.presence.v1.*.changed"

	// ------------------- QUEUES (CONSUMERS) --------------------
	DeliveryProcessorQueue = "notify-delivery.incoming-processor.v1"
	DeliveryPoisonTopic    = "notify-delivery.incoming-processor.v1.poison"
)

type EventHandler struct {
	hub        registry.Hubber
	logger     *slog.Logger
	notifier   service.Notifier
	dispatcher pubsub.EventDispatcher
}

func NewEventHandler(hub registry.Hubber, logger *slog.Logger, notifier service.Notifier, dispatcher pubsub.EventDispatcher) *EventHandler {
	return &EventHandler{hub, logger, notifier, dispatcher}
}

// NewWatermillRouter builds the consumer router shared by all listeners.
func NewWatermillRouter(wmLogger watermill.LoggerAdapter) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{
		CloseTimeout: 30 * time.Second,
	}, wmLogger)
}

// [REGISTRATION_PIPELINE]
func (h *EventHandler) RegisterHandlers(router *message.Router, subProvider *pubsub.SubscriberProvider) error {
	poison, err := middleware.PoisonQueue(h.dispatcher.Publisher(), DeliveryPoisonTopic)
	if err != nil {
		return fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	configs := []struct {
		name     string
		exchange string
		topic    string
		handler  message.NoPublishHandlerFunc
	}{
		{"ON_NOTIFY_REQUESTED", NotifyRequestExchange, TopicNotificationRequested, Bind(h, false, h.OnNotificationRequestedV1)},
		{"ON_BROADCAST_REQUESTED", NotifyRequestExchange, TopicBroadcastRequested, BindFanout(h, h.OnBroadcastRequestedV1)},
		{"ON_PRESENCE_CHANGED", NotifyEventsExchange, TopicPresenceChanged, Bind(h, true, h.OnPresenceChangedV1)},
	}

	for _, c := range configs {
		instanceID := uuid.NewString()[:8]
		// [UNIQUE_HANDLER_QUEUE]
		// We create a unique queue for EACH handler on THIS node.
		// Format: notify-delivery.incoming-processor.v1.b23a8f12.ON_NOTIFY_REQUESTED
		handlerQueue := fmt.Sprintf("%s.%s.%s", DeliveryProcessorQueue, instanceID, c.name)

		sub, err := subProvider.Build(handlerQueue, c.exchange, c.topic)
		if err != nil {
			return err
		}

		router.AddNoPublisherHandler(c.name, c.topic, sub, c.handler).AddMiddleware(
			TraceIDMiddleware,
			LoggingMiddleware(h.logger),
			NewRetryMiddleware().Middleware,
			poison,
			middleware.NewThrottle(100, time.Second).Middleware,
			middleware.Timeout(time.Second*30),
		)
	}

	h.logger.Info("AMQP_PIPELINE_READY", "queue", DeliveryProcessorQueue)
	return nil
}
