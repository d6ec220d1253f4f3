package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/manasdhir/Voice-Bot/pkg/core/llm"
	"github.com/manasdhir/Voice-Bot/pkg/core/voice/stt"
	"github.com/manasdhir/Voice-Bot/pkg/core/voice/tts"
	"github.com/manasdhir/Voice-Bot/pkg/gateway/config"
	"github.com/manasdhir/Voice-Bot/pkg/gateway/lifecycle"
	"github.com/manasdhir/Voice-Bot/pkg/gateway/live/session"
	"github.com/manasdhir/Voice-Bot/pkg/gateway/live/sessions"
	"github.com/manasdhir/Voice-Bot/pkg/gateway/mw"
)

// LiveHandler handles /ws/stream voice sessions. Each upgraded connection
// is served by one session.Controller for its whole lifetime.
type LiveHandler struct {
	Config       config.Config
	Logger       *slog.Logger
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker

	STT         stt.Provider
	Engine      llm.Engine
	TTS         tts.Provider
	Resolver    session.ConfigResolver
	Summaries   session.SummaryWriter
	SearchTools session.SearchTools
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		writeError(w, reqID, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}
	if h.Lifecycle != nil && h.Lifecycle.IsDraining() {
		writeError(w, reqID, http.StatusServiceUnavailable, "unavailable_error", "server is draining")
		return
	}
	if !mw.OriginAllowed(h.Config, r.Header.Get("Origin")) {
		writeError(w, reqID, http.StatusForbidden, "permission_error", "origin is not allowed")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	s, err := session.New(session.Dependencies{
		Conn:        conn,
		Logger:      h.Logger,
		STT:         h.STT,
		Engine:      h.Engine,
		TTS:         h.TTS,
		Resolver:    h.Resolver,
		Summaries:   h.Summaries,
		SearchTools: h.SearchTools,
		RequestID:   reqID,
		Config: session.Config{
			HandshakeTimeout:  h.Config.HandshakeTimeout,
			TurnTimeout:       h.Config.TurnTimeout,
			SummaryTimeout:    h.Config.SummaryTimeout,
			PingInterval:      h.Config.WSPingInterval,
			WriteTimeout:      h.Config.WSWriteTimeout,
			ReadTimeout:       h.Config.WSReadTimeout,
			MaxAudioBytes:     int(h.Config.MaxAudioBytes),
			MaxJSONBytes:      int(h.Config.MaxJSONBytes),
			OutboundQueueSize: h.Config.OutboundQueueSize,
			TTSFormat:         h.Config.TTSFormat,
		},
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("voice session init failed", "request_id", reqID, "error", err)
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"), time.Now().Add(time.Second))
		return
	}

	unregister := h.LiveSessions.Register(uuid.NewString(), sessions.Handle{
		Cancel: s.Cancel,
		Warn:   s.SendWarning,
		Mode:   func() string { return string(s.Mode()) },
	})
	defer unregister()

	if err := s.Run(); err != nil && h.Logger != nil {
		h.Logger.Warn("voice session ended with error",
			"request_id", reqID,
			"session_id", s.SessionID(),
			"error", err,
		)
	}
}

type errorBody struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, reqID string, status int, typ, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error errorBody `json:"error"`
	}{Error: errorBody{Type: typ, Message: message, RequestID: reqID}})
}
