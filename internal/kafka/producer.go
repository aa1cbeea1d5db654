package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Domenick1991/tripboard/internal/log"
	"github.com/segmentio/kafka-go"
)

const EventBookingCancelled = "booking_cancelled"

// BookingEvent is published on the booking events topic.
type BookingEvent struct {
	Type        string    `json:"type"`
	BookingID   string    `json:"booking_id"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	ScheduleID  string    `json:"schedule_id"`
	Destination string    `json:"destination"`
	Departure   time.Time `json:"departure"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// messageWriter is the part of *kafka.Writer the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
}

type ProducerOption func(*kafka.Writer)

// WithPartition pins every message to one partition, for topics whose readers
// consume a single partition.
func WithPartition(partition int) ProducerOption {
	return func(w *kafka.Writer) {
		w.Balancer = fixedPartition(partition)
	}
}

func NewProducer(brokers []string, opts ...ProducerOption) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	for _, opt := range opts {
		opt(writer)
	}
	return &Producer{writer: writer}
}

type fixedPartition int

func (p fixedPartition) Balance(_ kafka.Message, _ ...int) int { return int(p) }

func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	log.FromContext(ctx).WithField("topic", topic).WithField("key", key).Debug("published to kafka")
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
