// Package kafka publishes leaderboard events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"leaderboardkit/core"
)

// Producer is the subset of *kgo.Client the sink needs.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// Config selects the cluster and topic.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Sink produces one record per event, keyed by leaderboard path so a board's events
// stay ordered within a partition.
type Sink struct {
	producer Producer
	topic    string
	logger   *slog.Logger
	types    map[core.EventType]struct{}
}

type Option func(*Sink)

func WithLogger(l *slog.Logger) Option { return func(s *Sink) { s.logger = l } }

// WithEventTypes restricts the sink to the given event types.
func WithEventTypes(types ...core.EventType) Option {
	return func(s *Sink) {
		s.types = make(map[core.EventType]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
}

// New connects a franz-go client for cfg.
func New(cfg Config, opts ...Option) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return NewWithProducer(client, cfg.Topic, opts...), nil
}

// NewWithProducer wraps an existing producer.
func NewWithProducer(p Producer, topic string, opts ...Option) *Sink {
	s := &Sink{producer: p, topic: topic, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OnEvent produces e asynchronously. Delivery failures are logged.
func (s *Sink) OnEvent(e core.Event) {
	if s.types != nil {
		if _, ok := s.types[e.Type]; !ok {
			return
		}
	}
	value, err := json.Marshal(e)
	if err != nil {
		s.logger.Error("failed to encode event", "event_id", e.ID, "error", err)
		return
	}
	rec := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(e.Path),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.ID)},
		},
		Timestamp: e.Time,
	}
	s.producer.Produce(context.Background(), rec, func(r *kgo.Record, err error) {
		if err != nil {
			s.logger.Warn("failed to publish event", "topic", r.Topic, "event_type", e.Type, "error", err)
		}
	})
}

// Close flushes buffered records, bounded by ctx, and closes the producer.
func (s *Sink) Close(ctx context.Context) error {
	err := s.producer.Flush(ctx)
	s.producer.Close()
	if err != nil {
		return fmt.Errorf("failed to flush kafka producer: %w", err)
	}
	return nil
}
