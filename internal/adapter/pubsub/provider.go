package pubsub

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	wmamqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
)

// PublisherProvider builds topic-exchange publishers on the shared AMQP
// connection settings.
type PublisherProvider struct {
	url    string
	logger watermill.LoggerAdapter
}

func NewPublisherProvider(url string, logger watermill.LoggerAdapter) *PublisherProvider {
	return &PublisherProvider{url: url, logger: logger}
}

// Build returns a publisher bound to a durable topic exchange. The
// watermill topic is used as the routing key.
func (pp *PublisherProvider) Build(exchange string) (message.Publisher, error) {
	cfg := wmamqp.NewDurablePubSubConfig(pp.url, nil)
	cfg.Exchange.GenerateName = func(string) string { return exchange }
	cfg.Exchange.Type = "topic"
	cfg.Publish.GenerateRoutingKey = func(topic string) string { return topic }

	pub, err := wmamqp.NewPublisher(cfg, pp.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: build publisher for exchange %s: %w", exchange, err)
	}
	return pub, nil
}

// SubscriberProvider builds queue-bound subscribers on the shared AMQP
// connection settings.
type SubscriberProvider struct {
	url    string
	logger watermill.LoggerAdapter
}

func NewSubscriberProvider(url string, logger watermill.LoggerAdapter) *SubscriberProvider {
	return &SubscriberProvider{url: url, logger: logger}
}

// Build binds queue to exchange with the given binding key; the
// watermill topic passed to Subscribe is ignored in favor of the fixed
// queue name, which lets multiple handlers keep distinct queues.
func (sp *SubscriberProvider) Build(queue, exchange, bindingKey string) (message.Subscriber, error) {
	cfg := wmamqp.NewDurablePubSubConfig(sp.url, wmamqp.GenerateQueueNameConstant(queue))
	cfg.Exchange.GenerateName = func(string) string { return exchange }
	cfg.Exchange.Type = "topic"
	cfg.QueueBind.GenerateRoutingKey = func(string) string { return bindingKey }

	sub, err := wmamqp.NewSubscriber(cfg, sp.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: build subscriber queue %s: %w", queue, err)
	}
	return sub, nil
}
