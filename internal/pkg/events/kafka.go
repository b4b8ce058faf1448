package events

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/segmentio/kafka-go"

	"github.com/ManuelReschke/CertLedger/internal/pkg/env"
)

// Config selects the broker set and topic. Empty Brokers disables Kafka.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	MaxRetries   int
}

func LoadConfig() Config {
	return Config{
		Brokers:      env.GetEnvList("KAFKA_BROKERS"),
		Topic:        env.GetEnv("KAFKA_TOPIC", "certledger.events"),
		WriteTimeout: env.GetEnvDuration("KAFKA_WRITE_TIMEOUT", 10*time.Second),
		MaxRetries:   env.GetEnvInt("KAFKA_MAX_RETRIES", 3),
	}
}

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by Event.Key.
type KafkaPublisher struct {
	writer     messageWriter
	topic      string
	maxRetries int
	backoff    time.Duration
}

// NewPublisher returns a Kafka publisher, or Noop when no broker is set.
func NewPublisher(cfg Config) Publisher {
	if len(cfg.Brokers) == 0 {
		log.Info("[Events] Kafka is disabled (KAFKA_BROKERS is empty)")
		return Noop{}
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	log.Infof("[Events] Kafka producer initialized. Brokers=%v, Topic=%s", cfg.Brokers, cfg.Topic)
	return newKafkaPublisher(writer, cfg.Topic, cfg.MaxRetries)
}

func newKafkaPublisher(w messageWriter, topic string, maxRetries int) *KafkaPublisher {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &KafkaPublisher{writer: w, topic: topic, maxRetries: maxRetries, backoff: 100 * time.Millisecond}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	value, err := json.Marshal(event)
	if err != nil {
		log.Errorf("[Events] Failed to marshal %s event %s: %v", event.Type, event.ID, err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(event.Key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(math.Pow(2, float64(attempt-1))) * p.backoff
			select {
			case <-ctx.Done():
				log.Warnf("[Events] Gave up publishing %s event %s: %v", event.Type, event.ID, ctx.Err())
				return
			case <-time.After(wait):
			}
		}
		if err = p.writer.WriteMessages(ctx, msg); err == nil {
			return
		}
		log.Warnf("[Events] Publish attempt %d/%d for %s failed: %v", attempt+1, p.maxRetries, event.Type, err)
	}
	log.Errorf("[Events] Dropped %s event %s after %d attempts: %v", event.Type, event.ID, p.maxRetries, err)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
