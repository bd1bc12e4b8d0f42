package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"im-social/config"
	"im-social/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// AdminSink receives every admin event, for consoles running elsewhere
type AdminSink interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopSink discards events
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }
func (NopSink) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes admin events to a topic through a circuit breaker.
// While the breaker is open events are rejected without a broker call.
type KafkaSink struct {
	writer messageWriter
	cb     *gobreaker.CircuitBreaker
}

// NewKafkaSink writes admin events to the configured topic
func NewKafkaSink(cfg config.KafkaConfig) *KafkaSink {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	})
	return newKafkaSink(w, cfg.BreakerFailures, cfg.BreakerTimeout)
}

func newKafkaSink(w messageWriter, maxFailures uint32, timeout time.Duration) *KafkaSink {
	if maxFailures == 0 {
		maxFailures = 5
	}
	st := gobreaker.Settings{
		Name:        "admin-kafka",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &KafkaSink{writer: w, cb: gobreaker.NewCircuitBreaker(st)}
}

// Publish writes ev keyed by its type through the circuit breaker
func (s *KafkaSink) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal admin event: %w", err)
	}
	_, err = s.cb.Execute(func() (interface{}, error) {
		return nil, s.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(ev.Type),
			Value: value,
			Time:  time.Now(),
		})
	})
	return err
}

// Close flushes and closes the writer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// NewSink returns the Kafka sink when enabled, else NopSink
func NewSink(cfg config.KafkaConfig) AdminSink {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return NopSink{}
	}
	return NewKafkaSink(cfg)
}
