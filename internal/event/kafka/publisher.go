package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/rbrcloud/apex-order-srvc/internal/event"
)

const (
	dialAttempts = 10
	dialBackoff  = 2 * time.Second
)

var sleep = time.Sleep

// NewSyncProducer creates a SyncProducer that waits for the message to be
// committed by the leader and all in-sync replicas before returning.
// Broker startup races are absorbed by a bounded dial retry loop.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	return dialProducer(func() (sarama.SyncProducer, error) {
		return sarama.NewSyncProducer(brokers, config)
	}, dialAttempts, dialBackoff)
}

func dialProducer(connect func() (sarama.SyncProducer, error), attempts int, backoff time.Duration) (sarama.SyncProducer, error) {
	var err error
	for i := 1; i <= attempts; i++ {
		var prod sarama.SyncProducer
		prod, err = connect()
		if err == nil {
			return prod, nil
		}
		if i == attempts {
			break
		}
		slog.Warn("waiting for Kafka broker", "attempt", i, "error", err)
		sleep(backoff)
	}
	return nil, fmt.Errorf("start producer after %d attempts: %w", attempts, err)
}

// Publisher announces accepted orders on a single topic, keyed by ticker
// so all announcements for one ticker land on one partition in publish
// order. Safe for concurrent use; SendMessage blocks until the broker
// acks or the producer's timeout elapses.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(producer sarama.SyncProducer, topic string) *Publisher {
	if topic == "" {
		topic = event.OrderPlacedTopic
	}
	return &Publisher{
		producer: producer,
		topic:    topic,
	}
}

func (p *Publisher) PublishOrderPlaced(ctx context.Context, ev event.OrderPlaced) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal order placed event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Ticker),
		Value: sarama.ByteEncoder(payload),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("produce to %s (key=%s): %w", p.topic, ev.Ticker, err)
	}

	slog.Debug("published order placed event",
		"orderId", ev.OrderID,
		"ticker", ev.Ticker,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
