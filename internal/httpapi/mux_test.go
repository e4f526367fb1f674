package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

type fakeSink struct{ connected bool }

func (s fakeSink) Connected() bool { return s.connected }

func newTestServer(t *testing.T, connected bool) *httptest.Server {
	t.Helper()

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "weatherstation_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	ts := httptest.NewServer(NewMux(fakeSink{connected: connected}, reg))
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name       string
		connected  bool
		wantStatus int
		wantKey    string
		wantValue  string
	}{
		{name: "connected", connected: true, wantStatus: http.StatusOK, wantKey: "status", wantValue: "ok"},
		{name: "disconnected", connected: false, wantStatus: http.StatusServiceUnavailable, wantKey: "message", wantValue: "sink not connected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.connected)

			resp, err := ts.Client().Get(ts.URL + "/healthz")
			if err != nil {
				t.Fatalf("GET /healthz: %v", err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status=%d want=%d", resp.StatusCode, tt.wantStatus)
			}
			if got := resp.Header.Get("Content-Type"); got != "application/json; charset=utf-8" {
				t.Errorf("Content-Type = %q", got)
			}
			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode json: %v", err)
			}
			if body[tt.wantKey] != tt.wantValue {
				t.Errorf("body[%s] = %q, want %q", tt.wantKey, body[tt.wantKey], tt.wantValue)
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, true)

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(b), "weatherstation_test_total 1") {
		t.Errorf("metrics body missing counter:\n%s", b)
	}
}

func TestHealthz_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, true)

	resp, err := ts.Client().Post(ts.URL+"/healthz", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /healthz: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}
