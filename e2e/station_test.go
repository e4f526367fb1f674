//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/GibsMichele/WeatherApp/internal/config"
	"github.com/GibsMichele/WeatherApp/internal/mqtt"
	"github.com/GibsMichele/WeatherApp/internal/station"
)

const (
	repoRootRel   = ".."
	stationPkgRel = "./cmd/station"
	mqttPort      = nat.Port("1883/tcp")
	topic         = "weather/e2e"
)

func TestStation_PublishesToMosquitto(t *testing.T) {
	repoRoot := repoRootPath(t)
	host, port := startMosquitto(t)

	received := subscribe(t, host, port)

	bin := buildBinary(t, repoRoot)
	addr := pickFreeAddr(t)

	cmd := exec.Command(bin)
	cmd.Env = append(os.Environ(),
		"APP_ENV=dev",
		"LOG_LEVEL=debug",
		"STATION_ID=WS-E2E",
		"INTERVAL=1",
		"RANDOM_SEED=42",
		"BROKER_HOST="+host,
		fmt.Sprintf("BROKER_PORT=%d", port),
		"MQTT_TOPIC="+topic,
		"METRICS_ADDR="+addr,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("start station: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	client := &http.Client{Timeout: 2 * time.Second}
	waitForOK(t, client, "http://"+addr+"/healthz", 30*time.Second)

	// An outage draw on one of the first ticks delays publishing by a minute.
	readings := received.waitFor(t, 3, 90*time.Second)
	for i, r := range readings {
		if r.StationID != "WS-E2E" {
			t.Errorf("reading %d station=%q want=WS-E2E", i, r.StationID)
		}
		if r.Faulty() {
			continue
		}
		if r.Temperature < station.MinTemperature || r.Temperature > station.MaxTemperature {
			t.Errorf("reading %d temperature=%v out of range", i, r.Temperature)
		}
		if r.Humidity < station.MinHumidity || r.Humidity > station.MaxHumidity {
			t.Errorf("reading %d humidity=%v out of range", i, r.Humidity)
		}
	}

	resp, err := client.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(body), `weatherstation_readings_published_total{station_id="WS-E2E"}`) {
		t.Fatalf("metrics missing published counter:\n%s", body)
	}

	stopProcess(t, cmd)
}

func startMosquitto(t *testing.T) (string, int) {
	t.Helper()
	ctx := context.Background()

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "eclipse-mosquitto:2",
			Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
			ExposedPorts: []string{string(mqttPort)},
			WaitingFor:   wait.ForListeningPort(mqttPort).WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start mosquitto container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, mqttPort)
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return host, mapped.Int()
}

type collector struct {
	mu       sync.Mutex
	readings []station.Reading
	notify   chan struct{}
}

func (c *collector) add(payload []byte) {
	var r station.Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return
	}
	c.mu.Lock()
	c.readings = append(c.readings, r)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *collector) waitFor(t *testing.T, n int, timeout time.Duration) []station.Reading {
	t.Helper()
	deadline := time.After(timeout)
	for {
		c.mu.Lock()
		if len(c.readings) >= n {
			out := append([]station.Reading(nil), c.readings[:n]...)
			c.mu.Unlock()
			return out
		}
		got := len(c.readings)
		c.mu.Unlock()

		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("received %d readings after %s, want %d", got, timeout, n)
		}
	}
}

func subscribe(t *testing.T, host string, port int) *collector {
	t.Helper()

	c := &collector{notify: make(chan struct{}, 1)}
	broker := config.Broker{
		Host:      host,
		Port:      port,
		ClientID:  "e2e-subscriber",
		KeepAlive: 30 * time.Second,
		Topic:     topic,
	}
	sub := mqtt.NewSubscriber(broker, func(_ string, payload []byte) { c.add(payload) },
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := sub.Connect(ctx); err != nil {
		t.Fatalf("subscriber connect: %v", err)
	}
	t.Cleanup(sub.Disconnect)

	// Give the connect handler time to register the subscription.
	time.Sleep(500 * time.Millisecond)
	return c
}

func repoRootPath(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	repo := filepath.Clean(filepath.Join(wd, repoRootRel))
	if _, err := os.Stat(filepath.Join(repo, "go.mod")); err != nil {
		t.Fatalf("repo root %q does not contain go.mod: %v", repo, err)
	}
	return repo
}

func buildBinary(t *testing.T, repoRoot string) string {
	t.Helper()

	out := filepath.Join(t.TempDir(), "weather-station")

	build := exec.Command("go", "build", "-o", out, stationPkgRel)
	build.Dir = repoRoot
	build.Env = os.Environ()

	b, err := build.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(b))
	}
	return out
}

func pickFreeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen :0: %v", err)
	}
	defer ln.Close()

	return ln.Addr().String()
}

func waitForOK(t *testing.T, client *http.Client, url string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("not healthy after %s: %s", timeout, url)
}

func stopProcess(t *testing.T, cmd *exec.Cmd) {
	t.Helper()

	_ = cmd.Process.Signal(syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		t.Fatalf("process did not exit in time")
	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				t.Fatalf("process exited non-zero: %v", err)
			}
			t.Fatalf("process wait error: %v", err)
		}
	}
}
