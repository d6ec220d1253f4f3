package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/manasdhir/Voice-Bot/pkg/gateway/lifecycle"
	"github.com/manasdhir/Voice-Bot/pkg/gateway/live/sessions"
)

type stubPinger map[string]error

func (s stubPinger) Ping(context.Context) map[string]error { return s }

func serveReady(t *testing.T, h ReadyHandler) (int, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return rr.Code, resp
}

func TestHealthHandler_OK(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestReadyHandler_Ready(t *testing.T) {
	tracker := sessions.NewTracker()
	unregister := tracker.Register("c1", sessions.Handle{Mode: func() string { return "anonymous" }})
	defer unregister()

	code, resp := serveReady(t, ReadyHandler{
		Lifecycle:    &lifecycle.Lifecycle{},
		LiveSessions: tracker,
		Backends:     stubPinger{},
	})
	if code != http.StatusOK {
		t.Fatalf("status=%d resp=%v", code, resp)
	}
	if ok, _ := resp["ok"].(bool); !ok {
		t.Fatalf("expected ok=true")
	}
	if n, _ := resp["live_sessions"].(float64); n != 1 {
		t.Fatalf("live_sessions=%v", resp["live_sessions"])
	}
	byMode, _ := resp["sessions_by_mode"].(map[string]any)
	if byMode["anonymous"] != float64(1) {
		t.Fatalf("sessions_by_mode=%v", resp["sessions_by_mode"])
	}
}

func TestReadyHandler_DrainingNotReady(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(true)

	code, resp := serveReady(t, ReadyHandler{Lifecycle: lc})
	if code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", code)
	}
	if draining, _ := resp["draining"].(bool); !draining {
		t.Fatalf("expected draining=true")
	}
}

func TestReadyHandler_BackendFailureNotReady(t *testing.T) {
	code, resp := serveReady(t, ReadyHandler{
		Backends: stubPinger{"postgres": errors.New("connection refused")},
	})
	if code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", code)
	}
	issues, _ := resp["issues"].([]any)
	if len(issues) != 1 || issues[0] != "postgres: connection refused" {
		t.Fatalf("issues=%v", resp["issues"])
	}
}
