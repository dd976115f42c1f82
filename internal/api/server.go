// Package api exposes the HTTP interface for the edge-intake service.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cantikdist/edge-intake/internal/config"
	"github.com/cantikdist/edge-intake/internal/edge"
	"github.com/cantikdist/edge-intake/internal/pipeline"
	"github.com/cantikdist/edge-intake/internal/relay"
	"github.com/cantikdist/edge-intake/internal/store/postgres"
	"github.com/cantikdist/edge-intake/internal/telemetry"
)

// maxLeadBody bounds the lead payload; anything larger is hostile.
const maxLeadBody = 64 << 10

// maxEventBody bounds relayed analytics payloads.
const maxEventBody = 256 << 10

// LeadReader is the read-side of the lead store used by export and health.
type LeadReader interface {
	List(ctx context.Context, limit, offset int) ([]postgres.ExportRow, error)
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the pipeline, store, and relay.
type Server struct {
	router    chi.Router
	pipeline  *pipeline.Pipeline
	leads     LeadReader
	forwarder *relay.Forwarder
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The edge
// router runs ahead of every handler so locale and security decisions
// apply uniformly.
func NewServer(
	pipe *pipeline.Pipeline,
	leads LeadReader,
	forwarder *relay.Forwarder,
	edgeRouter *edge.Router,
	idGen edge.IDGenerator,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		pipeline:  pipe,
		leads:     leads,
		forwarder: forwarder,
		cfg:       cfg,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(edge.TraceMiddleware(idGen))
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second))
	r.Use(edgeRouter.Middleware())

	r.Get("/healthz", s.healthz)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		telemetry.Handler().ServeHTTP(w, req)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/leads", s.submitLead)
		r.Get("/leads/export", s.exportLeads)
		r.Post("/events", s.forwardEvent)
		r.Post("/rum", s.forwardEvent)
		r.Get("/health", s.health)
	})

	// Page rendering lives upstream; the edge contributes headers and
	// locale decisions, nothing else.
	r.NotFound(s.page)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("trace_id", edge.TraceID(r.Context())),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		telemetry.ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		d = 60 * time.Second
	}
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// clientKey identifies the caller for admission: real-ip header, first
// forwarded-for hop, then the socket peer.
func clientKey(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func clientContext(r *http.Request) pipeline.ClientContext {
	return pipeline.ClientContext{
		UserAgent:    r.UserAgent(),
		ForwardedFor: r.Header.Get("X-Forwarded-For"),
		RealIP:       r.Header.Get("X-Real-IP"),
	}
}
