package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/influxdb"
)

// fakeInflux answers pings and records line protocol bodies.
type fakeInflux struct {
	*httptest.Server

	mu     sync.Mutex
	writes []string
	fail   bool
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.writes = append(f.writes, string(body))
			fail := f.fail
			f.mu.Unlock()
			if fail {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":"invalid","message":"rejected"}`))
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "mqttmgr",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 60,
	}
}

func connect(t *testing.T, url string) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(context.Background(), testConfig(url))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConnect(t *testing.T) {
	srv := newFakeInflux(t)
	client := connect(t, srv.URL)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	if _, err := influxdb.Connect(context.Background(), cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := influxdb.Connect(context.Background(), testConfig(url))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	srv := newFakeInflux(t)
	cfg := testConfig(srv.URL)
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false with default batch settings")
	}
}

func TestWriteTransition(t *testing.T) {
	srv := newFakeInflux(t)
	client := connect(t, srv.URL)

	client.WriteTransition(influxdb.Transition{
		DeviceID:  "dev-1",
		Kind:      "broker_connected",
		Connected: true,
		Flags:     7,
		At:        time.Unix(1700000000, 0),
		Duration:  1500 * time.Microsecond,
	})
	client.Flush()

	body := srv.body()
	for _, want := range []string{
		"mqtt_transition,device_id=dev-1,kind=broker_connected",
		"connected=true",
		"duration_us=1500i",
		"flags=7i",
		" 1700000000000000",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("line protocol %q missing %q", body, want)
		}
	}
	if strings.Contains(body, "1700000000000000000") {
		t.Errorf("timestamp written in nanoseconds: %q", body)
	}
}

func TestWriteStatus(t *testing.T) {
	srv := newFakeInflux(t)
	client := connect(t, srv.URL)

	client.WriteStatus("dev-1", "mqtt://broker:1883", 3, "Connection refused, not authorized")
	client.Flush()

	body := srv.body()
	for _, want := range []string{
		"mqtt_status,device_id=dev-1",
		`uri="mqtt://broker:1883"`,
		"reason=3i",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("line protocol %q missing %q", body, want)
		}
	}
}

func TestWriteErrorsReported(t *testing.T) {
	srv := newFakeInflux(t)
	srv.mu.Lock()
	srv.fail = true
	srv.mu.Unlock()
	client := connect(t, srv.URL)

	errs := make(chan error, 8)
	client.SetOnError(func(err error) { errs <- err })

	client.WriteTransition(influxdb.Transition{DeviceID: "dev-1", Kind: "link_up"})
	client.Flush()

	select {
	case err := <-errs:
		if !errors.Is(err, influxdb.ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write error not reported")
	}
}

func TestClose(t *testing.T) {
	srv := newFakeInflux(t)
	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	// Writes after close are dropped without panicking.
	client.WriteTransition(influxdb.Transition{DeviceID: "dev-1", Kind: "link_down"})
	client.Flush()
	if strings.Contains(srv.body(), "link_down") {
		t.Error("point written after Close()")
	}
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}
