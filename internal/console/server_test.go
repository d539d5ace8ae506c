package console

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/manager"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// fakeController records the calls made by the console.
type fakeController struct {
	mu            sync.Mutex
	uri           string
	username      string
	password      string
	autoReconnect bool
	connected     bool
	orders        []string
	orderErr      error

	status     string
	statusBusy bool
}

func (f *fakeController) SetURI(uri string)        { f.set(func(f *fakeController) { f.uri = uri }) }
func (f *fakeController) SetUsername(u string)     { f.set(func(f *fakeController) { f.username = u }) }
func (f *fakeController) SetPassword(p string)     { f.set(func(f *fakeController) { f.password = p }) }
func (f *fakeController) SetAutoReconnect(on bool) { f.set(func(f *fakeController) { f.autoReconnect = on }) }
func (f *fakeController) ConnectAsync() error      { return f.order("connect") }
func (f *fakeController) DisconnectAsync() error   { return f.order("disconnect") }
func (f *fakeController) UnlockStatus()            {}

func (f *fakeController) set(fn func(f *fakeController)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeController) StatusJSON() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeController) order(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return f.orderErr
	}
	f.orders = append(f.orders, name)
	return nil
}

func (f *fakeController) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeController) Flags() manager.Flags {
	if f.IsConnected() {
		return manager.FlagLinkUp | manager.FlagAddressAcquired | manager.FlagBrokerConnected
	}
	return 0
}

func (f *fakeController) LockStatus(time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.statusBusy
}

func (f *fakeController) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.orders...)
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func testServer(t *testing.T, secret string) (*Server, *fakeController, *httptest.Server) {
	t.Helper()

	ctrl := &fakeController{status: "{}\n"}
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "console_test_total", Help: "test"}))

	srv, err := New(Deps{
		Config: config.ConsoleConfig{
			StatusLockTimeout: 10 * time.Millisecond,
			PingInterval:      time.Second,
		},
		Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: secret}},
		Logger:   testLogger(),
		Manager:  ctrl,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)
	return srv, ctrl, ts
}

func postConnect(t *testing.T, url string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/connect.json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /connect.json error = %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Manager: &fakeController{}}); err == nil {
		t.Error("New() without logger succeeded")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without manager succeeded")
	}
}

func TestHealth(t *testing.T) {
	_, ctrl, ts := testServer(t, "")
	ctrl.set(func(f *fakeController) { f.connected = true })

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["connected"] != true || body["flags"] != "link_up|address_acquired|broker_connected" {
		t.Errorf("body = %v", body)
	}
}

func TestHealth_DependencyChecks(t *testing.T) {
	srv, _, ts := testServer(t, "")
	srv.checks = map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	}

	get := func() (int, map[string]any) {
		t.Helper()
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatalf("GET /health error = %v", err)
		}
		defer resp.Body.Close()
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp.StatusCode, body
	}

	code, body := get()
	if code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthy: code = %d, body = %v", code, body)
	}

	srv.checks["influxdb"] = func(context.Context) error { return errors.New("ping refused") }
	code, body = get()
	if code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Errorf("degraded: code = %d, body = %v", code, body)
	}
	deps, _ := body["dependencies"].(map[string]any)
	if deps["influxdb"] != "ping refused" || deps["database"] != "ok" {
		t.Errorf("dependencies = %v", deps)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	_, _, ts := testServer(t, "")

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}

func TestStatus(t *testing.T) {
	_, ctrl, ts := testServer(t, "")
	ctrl.set(func(f *fakeController) { f.status = "{\"uri\":\"mqtt://b:1883\",\"urc\":1,\"error\":\"\"}\n" })

	resp, err := http.Get(ts.URL + "/mqtt_status.json")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var doc manager.StatusDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.URI != "mqtt://b:1883" || doc.Reason != manager.ReasonConnectionOK {
		t.Errorf("doc = %+v", doc)
	}
}

func TestStatus_Busy(t *testing.T) {
	_, ctrl, ts := testServer(t, "")
	ctrl.set(func(f *fakeController) { f.statusBusy = true })

	resp, err := http.Get(ts.URL + "/mqtt_status.json")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestConnect(t *testing.T) {
	tests := []struct {
		name       string
		connected  bool
		headers    map[string]string
		wantUser   string
		wantPass   string
		wantOrders []string
	}{
		{
			name: "with credentials",
			headers: map[string]string{
				headerURI:      "mqtt://broker:1883",
				headerUsername: "user",
				headerPassword: "pw",
			},
			wantUser:   "user",
			wantPass:   "pw",
			wantOrders: []string{"connect"},
		},
		{
			name: "empty placeholders",
			headers: map[string]string{
				headerURI:      "mqtt://broker:1883",
				headerUsername: emptyValue,
				headerPassword: emptyValue,
			},
			wantOrders: []string{"connect"},
		},
		{
			name:      "reconnects when connected",
			connected: true,
			headers: map[string]string{
				headerURI: "mqtt://other:1883",
			},
			wantOrders: []string{"disconnect", "connect"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ctrl, ts := testServer(t, "")
			ctrl.set(func(f *fakeController) {
				f.connected = tt.connected
				f.autoReconnect = true
			})

			resp := postConnect(t, ts.URL, tt.headers)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}

			ctrl.mu.Lock()
			defer ctrl.mu.Unlock()
			if ctrl.uri != tt.headers[headerURI] {
				t.Errorf("uri = %q", ctrl.uri)
			}
			if ctrl.username != tt.wantUser || ctrl.password != tt.wantPass {
				t.Errorf("credentials = (%q, %q), want (%q, %q)", ctrl.username, ctrl.password, tt.wantUser, tt.wantPass)
			}
			if ctrl.autoReconnect {
				t.Error("auto-reconnect left on for an unproven profile")
			}
			if strings.Join(ctrl.orders, ",") != strings.Join(tt.wantOrders, ",") {
				t.Errorf("orders = %v, want %v", ctrl.orders, tt.wantOrders)
			}
		})
	}
}

func TestConnect_Disconnect(t *testing.T) {
	_, ctrl, ts := testServer(t, "")
	ctrl.set(func(f *fakeController) { f.uri = "mqtt://keep:1883" })

	resp := postConnect(t, ts.URL, map[string]string{headerURI: disconnectURI})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := ctrl.recorded(); len(got) != 1 || got[0] != "disconnect" {
		t.Errorf("orders = %v, want [disconnect]", got)
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if ctrl.uri != "mqtt://keep:1883" {
		t.Errorf("profile changed by disconnect order: %q", ctrl.uri)
	}
}

func TestConnect_MissingURI(t *testing.T) {
	_, ctrl, ts := testServer(t, "")

	resp := postConnect(t, ts.URL, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if len(ctrl.recorded()) != 0 {
		t.Error("order issued without URI")
	}
}

func TestConnect_NotRunning(t *testing.T) {
	_, ctrl, ts := testServer(t, "")
	ctrl.set(func(f *fakeController) { f.orderErr = manager.ErrNotRunning })

	resp := postConnect(t, ts.URL, map[string]string{headerURI: "mqtt://b:1883"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}

	ctrl.set(func(f *fakeController) { f.orderErr = errors.New("other") })
	resp = postConnect(t, ts.URL, map[string]string{headerURI: "mqtt://b:1883"})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestConnect_RequiresToken(t *testing.T) {
	_, ctrl, ts := testServer(t, testSecret)
	headers := map[string]string{headerURI: "mqtt://b:1883"}

	resp := postConnect(t, ts.URL, headers)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}

	wrong, err := IssueToken("another-secret-key-at-least-32-characters", "admin", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	headers["Authorization"] = "Bearer " + wrong
	resp = postConnect(t, ts.URL, headers)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong secret: status = %d, want 401", resp.StatusCode)
	}
	if len(ctrl.recorded()) != 0 {
		t.Fatal("order issued without a valid token")
	}

	token, err := IssueToken(testSecret, "admin", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	headers["Authorization"] = "Bearer " + token
	resp = postConnect(t, ts.URL, headers)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", resp.StatusCode)
	}

	// Status stays readable without a token.
	statusResp, err := http.Get(ts.URL + "/mqtt_status.json")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	statusResp.Body.Close()
	if statusResp.StatusCode != http.StatusOK {
		t.Errorf("status endpoint = %d, want 200", statusResp.StatusCode)
	}
}

func TestIssueToken_EmptySecret(t *testing.T) {
	if _, err := IssueToken("", "admin", 0); err == nil {
		t.Error("IssueToken() with empty secret succeeded")
	}
}

func TestMetrics(t *testing.T) {
	_, _, ts := testServer(t, "")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestWebSocket_PushesSnapshots(t *testing.T) {
	srv, _, ts := testServer(t, "")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	defer ws.Close()

	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, first, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if string(first) != "{}\n" {
		t.Errorf("initial snapshot = %q", first)
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	update := "{\"uri\":\"mqtt://b\",\"urc\":2,\"error\":\"\"}\n"
	srv.hub.SnapshotUpdated([]byte(update))

	_, got, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read pushed snapshot: %v", err)
	}
	if string(got) != update {
		t.Errorf("pushed = %q, want %q", got, update)
	}
}

func TestHub_CloseAll(t *testing.T) {
	srv, _, ts := testServer(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.hub.Run(ctx)
		close(done)
	}()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-done
	if n := srv.hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d after Run returned", n)
	}
}

func TestServer_StartClose(t *testing.T) {
	srv, err := New(Deps{
		Config: config.ConsoleConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.ConsoleTimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		Logger:  testLogger(),
		Manager: &fakeController{status: "{}\n"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
