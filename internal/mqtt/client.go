// Package mqtt wraps the paho client for the station's publish sink and the
// monitor's topic subscription.
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

var (
	ErrNotConnected  = errors.New("mqtt client not connected")
	ErrClientStopped = errors.New("mqtt client stopped")
)

const publishTimeout = 5 * time.Second

// Client is a publish-only broker connection. It satisfies station.Sink.
type Client struct {
	client    mqtt.Client
	broker    config.Broker
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewClient(broker config.Broker, logger *slog.Logger) *Client {
	c := &Client{
		broker: broker,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	opts := newClientOptions(broker)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", broker.Host, "port", broker.Port, "client_id", broker.ClientID)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c
}

func newClientOptions(broker config.Broker) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", broker.Host, broker.Port))
	opts.SetClientID(broker.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(broker.KeepAlive)
	opts.SetPingTimeout(10 * time.Second)
	return opts
}

// Connect waits for the initial connection. It respects ctx and Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrClientStopped
	default:
	}

	if c.Connected() {
		return nil
	}

	// With ConnectRetry the token only completes once connected or stopped.
	token := c.client.Connect()
	if err := waitToken(ctx, c.stopCh, token); err != nil {
		if errors.Is(err, ErrClientStopped) || ctx.Err() != nil {
			c.client.Disconnect(0)
		}
		return fmt.Errorf("mqtt connect: %w", err)
	}
	// The connect handler runs on its own goroutine; do not wait for it.
	c.setConnected(true)
	return nil
}

// Publish sends payload to topic with the configured QoS and waits for the
// broker acknowledgement (or local hand-off at QoS 0).
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.Connected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.broker.QoS, false, payload)
	waitCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := waitToken(waitCtx, c.stopCh, token); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("publish timeout for topic %s", topic)
		}
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	c.logger.Debug("mqtt published", "topic", topic, "qos", c.broker.QoS, "size", len(payload))
	return nil
}

// Connected reports whether the broker connection is up.
func (c *Client) Connected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect stops the client and closes the connection. Safe to call more than once.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	if c.client != nil {
		c.client.Disconnect(250)
	}

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// waitToken polls token until it completes, ctx is done or stop is closed.
func waitToken(ctx context.Context, stop <-chan struct{}, token mqtt.Token) error {
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			return token.Error()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return ErrClientStopped
		default:
		}
	}
}
