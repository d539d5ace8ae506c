package console

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-mqttmgr/internal/manager"
)

// Connect form headers. Browsers on the provisioning page cannot send an
// empty header value, so emptyValue stands in for "".
const (
	headerURI      = "X-Custom-mqtt-uri"
	headerUsername = "X-Custom-mqtt-username"
	headerPassword = "X-Custom-mqtt-pwd"

	emptyValue    = "__EMPTY__"
	disconnectURI = "DISCONNECT"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Get("/mqtt_status.json", s.handleStatus)
	r.Get("/ws", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/connect.json", s.handleConnect)
	})

	return r
}

// handleHealth reports liveness plus the result of every dependency check.
// Any failing check turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	deps := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("health check failed", "dependency", name, "error", err)
			deps[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":       status,
		"version":      s.version,
		"connected":    s.mgr.IsConnected(),
		"flags":        s.mgr.Flags().String(),
		"ws_clients":   s.hub.ClientCount(),
		"dependencies": deps,
	})
}

// handleStatus serves the raw status snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	doc, ok := s.snapshot()
	if !ok {
		writeUnavailable(w, "status is being updated, retry")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response
	w.Write([]byte(doc))
}

func (s *Server) snapshot() (string, bool) {
	if !s.mgr.LockStatus(s.cfg.StatusLockTimeout) {
		return "", false
	}
	defer s.mgr.UnlockStatus()
	return s.mgr.StatusJSON(), true
}

// handleConnect applies a new broker profile and orders a connect, or
// orders a disconnect when the URI header is DISCONNECT.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	uri := headerValue(r, headerURI)
	if uri == "" {
		writeBadRequest(w, headerURI+" header is required")
		return
	}

	if uri == disconnectURI {
		s.logger.Info("console disconnect order", "request_id", r.Context().Value(ctxKeyRequestID))
		if err := s.mgr.DisconnectAsync(); err != nil {
			writeOrderError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "disconnecting"})
		return
	}

	s.mgr.SetURI(uri)
	s.mgr.SetUsername(headerValue(r, headerUsername))
	s.mgr.SetPassword(headerValue(r, headerPassword))
	// Auto-reconnect is re-enabled once the new broker accepts us.
	s.mgr.SetAutoReconnect(false)

	s.logger.Info("console connect order", "uri", uri, "request_id", r.Context().Value(ctxKeyRequestID))

	if s.mgr.IsConnected() {
		if err := s.mgr.DisconnectAsync(); err != nil {
			writeOrderError(w, err)
			return
		}
	}
	if err := s.mgr.ConnectAsync(); err != nil {
		writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "connecting", "uri": uri})
}

func headerValue(r *http.Request, name string) string {
	v := r.Header.Get(name)
	if v == emptyValue {
		return ""
	}
	return v
}

func writeOrderError(w http.ResponseWriter, err error) {
	if errors.Is(err, manager.ErrNotRunning) {
		writeUnavailable(w, "connection manager is not running")
		return
	}
	writeInternalError(w, "order could not be queued")
}
