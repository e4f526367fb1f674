package mqtt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/GibsMichele/WeatherApp/internal/config"
)

func testBroker() config.Broker {
	return config.Broker{
		Host:      "127.0.0.1",
		Port:      1,
		ClientID:  "ws-test",
		KeepAlive: 60 * time.Second,
		QoS:       1,
		Topic:     "weather",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewClientOptions(t *testing.T) {
	opts := newClientOptions(testBroker())

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1" {
		t.Fatalf("Servers = %v, want [tcp://127.0.0.1:1]", opts.Servers)
	}
	if opts.ClientID != "ws-test" {
		t.Errorf("ClientID = %q, want ws-test", opts.ClientID)
	}
	if opts.KeepAlive != 60 {
		t.Errorf("KeepAlive = %d, want 60", opts.KeepAlive)
	}
	if !opts.CleanSession || !opts.AutoReconnect || !opts.ConnectRetry {
		t.Errorf("CleanSession/AutoReconnect/ConnectRetry = %v/%v/%v, want all true",
			opts.CleanSession, opts.AutoReconnect, opts.ConnectRetry)
	}
}

func TestClient_PublishWhenNotConnected(t *testing.T) {
	c := NewClient(testBroker(), discardLogger())

	err := c.Publish(context.Background(), "weather", []byte(`{}`))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Publish() error = %v, want ErrNotConnected", err)
	}
	if c.Connected() {
		t.Error("Connected() = true, want false")
	}
}

func TestClient_ConnectAfterDisconnect(t *testing.T) {
	c := NewClient(testBroker(), discardLogger())
	c.Disconnect()
	c.Disconnect()

	if err := c.Connect(context.Background()); !errors.Is(err, ErrClientStopped) {
		t.Fatalf("Connect() error = %v, want ErrClientStopped", err)
	}
}

func TestSubscriber_ConnectAfterDisconnect(t *testing.T) {
	s := NewSubscriber(testBroker(), func(string, []byte) {}, discardLogger())
	s.Disconnect()

	if err := s.Connect(context.Background()); !errors.Is(err, ErrClientStopped) {
		t.Fatalf("Connect() error = %v, want ErrClientStopped", err)
	}
	if s.Connected() {
		t.Error("Connected() = true, want false")
	}
}
