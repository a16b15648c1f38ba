// Package httpserver serves the diagnostics endpoints of a running SDK:
// health, Prometheus metrics, queue and campaign snapshots, and a way to
// inject events while testing a device.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Swrve/swrve-smarttv-sdk/internal/config"
	"github.com/Swrve/swrve-smarttv-sdk/internal/metrics"
	"github.com/Swrve/swrve-smarttv-sdk/internal/middleware"
	"github.com/Swrve/swrve-smarttv-sdk/sdk"
	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

// Diagnostics is the part of the SDK the server exposes.
type Diagnostics interface {
	State() sdk.State
	QueueSnapshot(ctx context.Context) sdk.QueueSnapshot
	CampaignsSnapshot() sdk.CampaignsSnapshot
	GetResources(ctx context.Context) []sdk.Resource
	SendEvent(ctx context.Context, name string, payload map[string]any) error
	SendQueuedEvents(ctx context.Context)
	UpdateCampaignsAndResources(ctx context.Context) error
}

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	SDK     Diagnostics
	Checks  map[string]HealthCheck
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// RateLimiter is built from Config.RateLimit when nil.
	RateLimiter *middleware.RateLimitMiddleware
}

// Server wraps the diagnostics handlers.
type Server struct {
	sdk     Diagnostics
	checks  map[string]HealthCheck
	logger  *zap.Logger
	config  *config.Config
	metrics *metrics.Metrics
}

// NewServer constructs the diagnostics handler with its middleware chain.
func NewServer(deps *Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		sdk:     deps.SDK,
		checks:  deps.Checks,
		logger:  logger,
		config:  deps.Config,
		metrics: deps.Metrics,
	}

	limiter := deps.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimitMiddleware(deps.Config.RateLimit, logger, deps.Metrics)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	if deps.Config.Metrics.Enabled && deps.Metrics != nil {
		mux.Handle(deps.Config.Metrics.Path, deps.Metrics.Handler())
	}

	mux.HandleFunc("/debug/queue", s.handleQueue)
	mux.HandleFunc("/debug/campaigns", s.handleCampaigns)
	mux.HandleFunc("/debug/resources", s.handleResources)
	mux.HandleFunc("/debug/events", s.handleEvents)
	mux.HandleFunc("/debug/flush", s.handleFlush)
	mux.HandleFunc("/debug/refresh", s.handleRefresh)

	return middleware.Chain(mux,
		middleware.NewRecoveryMiddleware(logger).Handler,
		middleware.NewLoggingMiddleware(logger).Handler,
		limiter.Handler,
		middleware.NewAuthMiddleware(deps.Config.Auth, logger).Handler,
	)
}

// ---- Health Check ----

type healthResponse struct {
	Status string            `json:"status"`
	SDK    string            `json:"sdk"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", SDK: s.sdk.State().String()}
	code := http.StatusOK
	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
	}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// ---- Snapshots ----

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.jsonResponse(w, s.sdk.QueueSnapshot(r.Context()))
}

func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.jsonResponse(w, s.sdk.CampaignsSnapshot())
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.jsonResponse(w, map[string]any{"resources": s.sdk.GetResources(r.Context())})
}

// ---- Actions ----

type eventRequest struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		s.errorResponse(w, "name is required", http.StatusBadRequest)
		return
	}

	if err := s.sdk.SendEvent(r.Context(), req.Name, req.Payload); err != nil {
		if errors.Is(err, sdk.ErrInvalidEventName) {
			s.errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("failed to send event", zap.String("name", req.Name), zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.logger.Info("event injected", zap.String("name", req.Name))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.sdk.SendQueuedEvents(r.Context())
	s.jsonResponse(w, s.sdk.QueueSnapshot(r.Context()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.sdk.UpdateCampaignsAndResources(r.Context()); err != nil {
		s.logger.Warn("refresh failed", zap.Error(err))
		s.errorResponse(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.jsonResponse(w, s.sdk.CampaignsSnapshot())
}

// ---- Helpers ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
