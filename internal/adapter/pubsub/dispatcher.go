package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/medlink/notify-delivery-service/internal/domain/event"
	"github.com/sony/gobreaker"
)

// EventDispatcher is the fanout bus: events published here reach sibling
// service instances so a horizontally scaled fleet stays in sync.
type EventDispatcher interface {
	Publish(ctx context.Context, ev event.Eventer) error
	Publisher() message.Publisher
}

var _ EventDispatcher = (*eventDispatcher)(nil)

type eventDispatcher struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker
	logger    *slog.Logger
}

// NewEventDispatcher wraps the broker publisher in a circuit breaker:
// bus sync is best-effort, and a flapping broker must not add latency to
// the live delivery path once it is known to be down.
func NewEventDispatcher(pub message.Publisher, logger *slog.Logger) EventDispatcher {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "fanout-bus",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("fanout bus breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &eventDispatcher{
		publisher: pub,
		breaker:   breaker,
		logger:    logger,
	}
}

func (d *eventDispatcher) Publish(ctx context.Context, ev event.Eventer) error {
	if ev == nil {
		return fmt.Errorf("fanout bus: cannot publish nil event")
	}

	exportable, ok := ev.(event.Exportable)
	if !ok {
		return nil
	}
	topic := exportable.GetRoutingKey()
	if topic == "" {
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("fanout bus: marshal event %s: %w", ev.GetID(), err)
	}

	_, err = d.breaker.Execute(func() (any, error) {
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.SetContext(ctx)
		return nil, d.publisher.Publish(topic, msg)
	})
	if err != nil {
		return fmt.Errorf("fanout bus: publish to %s: %w", topic, err)
	}
	return nil
}

func (d *eventDispatcher) Publisher() message.Publisher {
	return d.publisher
}

var _ EventDispatcher = (*nopDispatcher)(nil)

// nopDispatcher serves single-instance deployments with AMQP disabled.
type nopDispatcher struct{}

// NewNopDispatcher returns a dispatcher that discards every publish.
func NewNopDispatcher() EventDispatcher { return nopDispatcher{} }

func (nopDispatcher) Publish(context.Context, event.Eventer) error { return nil }
func (nopDispatcher) Publisher() message.Publisher                 { return nil }
