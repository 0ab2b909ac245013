// Package api provides the HTTP surface of the Saira backend: health check,
// model lifecycle, inference, audio devices and diagnostics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/saira-network/saira/internal/app/audio"
	"github.com/saira-network/saira/internal/app/inference"
	"github.com/saira-network/saira/internal/domain"
	"github.com/saira-network/saira/internal/infra/observability"
)

// ServiceName is reported by the health check.
const ServiceName = "Saira Backend"

// TraceHeader carries the trace ID in and out of every request.
const TraceHeader = "X-Trace-ID"

// History lists recently completed operations.
type History interface {
	RecentOperations(limit int) ([]domain.OperationRecord, error)
}

// Server is the Saira HTTP API server.
type Server struct {
	engine         *inference.Engine
	bridge         *audio.Bridge // nil when no audio device is available
	tracer         *observability.Tracer
	history        History
	metricsEnabled bool
	log            zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(engine *inference.Engine, bridge *audio.Bridge) *Server {
	return &Server{engine: engine, bridge: bridge, log: zerolog.Nop()}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetTracer exposes recent spans on /api/v1/traces.
func (s *Server) SetTracer(t *observability.Tracer) { s.tracer = t }

// SetHistory exposes the operation journal on /api/v1/history.
func (s *Server) SetHistory(h History) { s.history = h }

// SetLogger sets the request logger.
func (s *Server) SetLogger(l zerolog.Logger) {
	s.log = l.With().Str("component", "api").Logger()
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.traceMiddleware)
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{
				"status":  "ok",
				"service": ServiceName,
			})
		})

		r.Get("/models", s.handleListModels)
		r.Get("/models/{kind}", s.handleGetModel)
		r.Post("/models/{kind}/load", s.handleLoad)
		r.Post("/models/{kind}/unload", s.handleUnload)

		r.Post("/generate", s.handleGenerate)
		r.Post("/embeddings", s.handleEmbeddings)
		r.Post("/transcribe", s.handleTranscribe)

		r.Get("/audio/devices", s.handleDevices)
		r.Get("/audio/sessions", s.handleSessions)
		r.Post("/audio/sessions/stop", s.handleStopAll)
		r.Post("/audio/play", s.handlePlay)

		r.Get("/traces", s.handleTraces)
		r.Get("/history", s.handleHistory)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}

// ─── Middleware ─────────────────────────────────────────────────────────────

// traceMiddleware propagates or assigns a trace ID, logs the request and
// counts it by route pattern.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set(TraceHeader, traceID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(observability.WithTraceID(r.Context(), traceID)))

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.log.Debug().
			Str("trace_id", traceID).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+TraceHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errorType(status),
		},
	})
}

// writeDomainError maps a domain error to its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyLoaded), errors.Is(err, domain.ErrNotLoaded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrQueueFull), errors.Is(err, domain.ErrCaptureLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrBackendCallFailed), errors.Is(err, domain.ErrBackendConstructionFailed):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrEngineClosed), errors.Is(err, domain.ErrAudioClosed),
		errors.Is(err, domain.ErrProviderMissing):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499 // client closed request
	}
	return http.StatusInternalServerError
}

func errorType(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return "invalid_request_error"
	case status == http.StatusConflict:
		return "state_error"
	case status == http.StatusTooManyRequests:
		return "overloaded_error"
	case status >= 500:
		return "server_error"
	}
	return "error"
}

// decode reads a JSON request body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// maxBodyBytes bounds request bodies (base64 audio included).
const maxBodyBytes = 64 << 20

func queryLimit(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
