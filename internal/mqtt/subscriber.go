package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GibsMichele/WeatherApp/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// subscribeQoS is at-least-once: a duplicate reading only refreshes last-seen.
const subscribeQoS = byte(1)

// MessageHandler receives every message on the subscribed topic.
type MessageHandler func(topic string, payload []byte)

type Subscriber struct {
	client    mqtt.Client
	broker    config.Broker
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool
	handler   MessageHandler

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSubscriber builds a subscriber for broker.Topic. The handler must be
// set before Connect; it is called from paho's goroutine.
func NewSubscriber(broker config.Broker, handler MessageHandler, logger *slog.Logger) *Subscriber {
	s := &Subscriber{
		broker:  broker,
		logger:  logger,
		handler: handler,
		stopCh:  make(chan struct{}),
	}
	opts := newClientOptions(broker)

	// Re-subscribe on every (re)connect; clean sessions drop subscriptions.
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.setConnected(true)
		logger.Info("mqtt connected", "broker", broker.Host, "port", broker.Port, "client_id", broker.ClientID)
		go func() {
			if err := s.subscribe(); err != nil {
				logger.Error("mqtt subscribe failed", "topic", broker.Topic, "error", err)
			}
		}()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Connect waits for the initial connection; the subscription follows from
// the connect handler.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return ErrClientStopped
	default:
	}

	if s.Connected() {
		return nil
	}

	token := s.client.Connect()
	if err := waitToken(ctx, s.stopCh, token); err != nil {
		if errors.Is(err, ErrClientStopped) || ctx.Err() != nil {
			s.client.Disconnect(0)
		}
		return fmt.Errorf("mqtt connect: %w", err)
	}
	// The connect handler runs on its own goroutine; do not wait for it.
	s.setConnected(true)
	return nil
}

func (s *Subscriber) subscribe() error {
	topic := s.broker.Topic
	token := s.client.Subscribe(topic, subscribeQoS, func(_ mqtt.Client, msg mqtt.Message) {
		s.logger.Debug("received mqtt message", "topic", msg.Topic(), "size", len(msg.Payload()))
		if s.handler != nil {
			s.handler(msg.Topic(), msg.Payload())
		}
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", subscribeQoS)
	return nil
}

func (s *Subscriber) Connected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect unsubscribes and closes the connection. Safe to call more than once.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.client != nil && s.Connected() {
		token := s.client.Unsubscribe(s.broker.Topic)
		token.WaitTimeout(2 * time.Second)
	}
	if s.client != nil {
		s.client.Disconnect(250)
	}

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
