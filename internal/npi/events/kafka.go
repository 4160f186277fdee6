package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultTopic is the topic validation events are produced to.
const DefaultTopic = "npi.validation.v1"

// producer is the subset of *kgo.Client the publisher uses.
type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// KafkaPublisher produces ValidationEvents as JSON records keyed by NPI.
type KafkaPublisher struct {
	client producer
	topic  string
	logger *slog.Logger
}

// KafkaOption configures a KafkaPublisher.
type KafkaOption func(*KafkaPublisher)

// WithLogger sets the logger for failed deliveries.
func WithLogger(logger *slog.Logger) KafkaOption {
	return func(p *KafkaPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTopic overrides DefaultTopic.
func WithTopic(topic string) KafkaOption {
	return func(p *KafkaPublisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// NewKafkaClient connects a franz-go client to brokers.
func NewKafkaClient(brokers []string) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(50*time.Millisecond),
		kgo.RecordDeliveryTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}
	return client, nil
}

// NewKafkaPublisher wraps client. The publisher owns the client and closes it
// in Close.
func NewKafkaPublisher(client producer, opts ...KafkaOption) *KafkaPublisher {
	p := &KafkaPublisher{
		client: client,
		topic:  DefaultTopic,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish queues event for delivery and returns immediately. The record is
// detached from ctx's cancellation so a finished request does not abort it.
func (p *KafkaPublisher) Publish(ctx context.Context, event ValidationEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "encode validation event", "npi", event.NPI, "error", err)
		return
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.NPI),
		Value: payload,
	}
	p.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.WarnContext(ctx, "validation event dropped",
				"npi", string(r.Key),
				"topic", r.Topic,
				"error", err,
			)
		}
	})
}

// Close flushes buffered records, bounded by ctx, then closes the client.
func (p *KafkaPublisher) Close(ctx context.Context) error {
	defer p.client.Close()
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("kafka: flush: %w", err)
	}
	return nil
}
