package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/manasdhir/Voice-Bot/pkg/gateway/config"
	"github.com/manasdhir/Voice-Bot/pkg/gateway/handlers"
	"github.com/manasdhir/Voice-Bot/pkg/gateway/lifecycle"
	"github.com/manasdhir/Voice-Bot/pkg/gateway/live/sessions"
	"github.com/manasdhir/Voice-Bot/pkg/gateway/mw"
	"github.com/manasdhir/Voice-Bot/pkg/gateway/ratelimit"
	"github.com/manasdhir/Voice-Bot/pkg/gateway/upstream"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	backends     *upstream.Backends
	limiter      *ratelimit.Limiter
	lifecycle    *lifecycle.Lifecycle
	liveSessions *sessions.Tracker
}

// NewHTTPClient is the client shared by every upstream speech, generation
// and embedding call.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// New builds the backends named by cfg and the HTTP surface over them.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	backends, err := upstream.Factory{HTTPClient: NewHTTPClient(), Logger: logger}.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithBackends(cfg, logger, backends), nil
}

// NewWithBackends builds the HTTP surface over already constructed backends.
func NewWithBackends(cfg config.Config, logger *slog.Logger, backends *upstream.Backends) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if backends == nil {
		backends = &upstream.Backends{}
	}
	s := &Server{
		cfg:          cfg,
		logger:       logger,
		mux:          http.NewServeMux(),
		backends:     backends,
		lifecycle:    &lifecycle.Lifecycle{},
		liveSessions: sessions.NewTracker(),
	}
	limits := ratelimit.Config{
		ConnectRPS:           cfg.WSConnectRPS,
		ConnectBurst:         cfg.WSConnectBurst,
		MaxSessionsPerClient: cfg.WSMaxSessionsPerClient,
	}
	if limits.Enabled() {
		s.limiter = ratelimit.New(limits)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Lifecycle:    s.lifecycle,
		LiveSessions: s.liveSessions,
		Backends:     s.backends,
	})

	s.mux.Handle("/ws/stream", mw.Admission(s.limiter, s.logger, handlers.LiveHandler{
		Config:       s.cfg,
		Logger:       s.logger,
		Lifecycle:    s.lifecycle,
		LiveSessions: s.liveSessions,
		STT:          s.backends.STT,
		Engine:       s.backends.Engine,
		TTS:          s.backends.TTS,
		Resolver:     s.backends.Resolver,
		Summaries:    s.backends.Summaries,
		SearchTools:  s.backends.SearchTools,
	}))

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining makes /readyz fail and refuses new voice connections.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

func (s *Server) WarnLiveSessionsDraining() int {
	return s.liveSessions.WarnAll("server_draining", "server is shutting down; the call will end soon")
}

func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.liveSessions.Wait(ctx)
}

func (s *Server) CancelLiveSessions() int {
	return s.liveSessions.CancelAll()
}

// Close releases backend pools and clients.
func (s *Server) Close() {
	s.backends.Close()
}
