// Package kafka is an alternative publish sink writing readings to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink publishes every payload keyed by the station id, so one station's
// readings land on one partition in order.
type Sink struct {
	w      messageWriter
	key    []byte
	logger *slog.Logger
	now    func() time.Time
}

func NewSink(brokers []string, stationID string, logger *slog.Logger) *Sink {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
	}
	return newSink(w, stationID, logger)
}

func newSink(w messageWriter, stationID string, logger *slog.Logger) *Sink {
	return &Sink{w: w, key: []byte(stationID), logger: logger, now: time.Now}
}

// Ping checks that at least one broker accepts a connection.
func Ping(ctx context.Context, brokers []string) error {
	var lastErr error
	for _, b := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

func (s *Sink) Publish(ctx context.Context, topic string, payload []byte) error {
	msg := kafka.Message{Topic: topic, Key: s.key, Value: payload, Time: s.now()}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write to %s: %w", topic, err)
	}
	s.logger.Debug("kafka published", "topic", topic, "key", string(s.key), "size", len(payload))
	return nil
}

// Connected is always true: the writer dials per batch.
func (s *Sink) Connected() bool { return true }

func (s *Sink) Close() error {
	return s.w.Close()
}
