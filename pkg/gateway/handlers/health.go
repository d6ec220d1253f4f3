package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/manasdhir/Voice-Bot/pkg/gateway/lifecycle"
	"github.com/manasdhir/Voice-Bot/pkg/gateway/live/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Pinger probes backend dependencies; it returns failures keyed by name.
type Pinger interface {
	Ping(ctx context.Context) map[string]error
}

type ReadyHandler struct {
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
	Backends     Pinger
	PingTimeout  time.Duration
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK           bool           `json:"ok"`
		Draining     bool           `json:"draining"`
		LiveSessions int            `json:"live_sessions"`
		ByMode       map[string]int `json:"sessions_by_mode"`
		Issues       []string       `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 2)
	draining := h.Lifecycle != nil && h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "draining")
	}

	if h.Backends != nil {
		timeout := h.PingTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		for name, err := range h.Backends.Ping(ctx) {
			issues = append(issues, name+": "+err.Error())
		}
		cancel()
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:           ok,
		Draining:     draining,
		LiveSessions: h.LiveSessions.Count(),
		ByMode:       h.LiveSessions.CountByMode(),
		Issues:       issues,
	})
}
