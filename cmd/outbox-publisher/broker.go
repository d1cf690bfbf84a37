package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/solestack/storefront/pkg/config"
	"github.com/solestack/storefront/pkg/kafka"
	"github.com/solestack/storefront/pkg/logger"
	"github.com/solestack/storefront/pkg/pubsub"
)

// Message is the broker-neutral form of one outbox row.
type Message struct {
	Key        string
	Data       []byte
	Attributes map[string]string
}

type broker interface {
	Name() string
	Publish(ctx context.Context, topic string, msg Message) error
	Ping(ctx context.Context) error
	Close() error
}

func newBroker(ctx context.Context, cfg *config.Config, logg *logger.Logger) (broker, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Eventing.Broker)) {
	case config.BrokerKafka:
		producer, err := kafka.NewProducer(cfg.Kafka, logg)
		if err != nil {
			return nil, err
		}
		return &kafkaBroker{producer: producer}, nil
	case config.BrokerPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, cfg.Eventing.Topic, logg)
		if err != nil {
			return nil, err
		}
		return &pubsubBroker{client: client}, nil
	default:
		return nil, fmt.Errorf("unsupported broker %q", cfg.Eventing.Broker)
	}
}

type pubsubBroker struct {
	client *pubsub.Client
}

func (b *pubsubBroker) Name() string { return config.BrokerPubSub }

func (b *pubsubBroker) Publish(ctx context.Context, topic string, msg Message) error {
	_, err := b.client.Publish(ctx, topic, msg.Data, msg.Attributes)
	return err
}

func (b *pubsubBroker) Ping(ctx context.Context) error { return b.client.Ping(ctx) }

func (b *pubsubBroker) Close() error { return b.client.Close() }

type kafkaBroker struct {
	producer *kafka.Producer
}

func (b *kafkaBroker) Name() string { return config.BrokerKafka }

func (b *kafkaBroker) Publish(ctx context.Context, topic string, msg Message) error {
	return b.producer.Publish(ctx, topic, []byte(msg.Key), msg.Data, msg.Attributes)
}

func (b *kafkaBroker) Ping(ctx context.Context) error { return b.producer.Ping(ctx) }

func (b *kafkaBroker) Close() error { return b.producer.Close() }
