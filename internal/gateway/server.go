package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"infergate/internal/backend"
	"infergate/pkg/types"
)

// Engine is the subset of the backend client the gateway needs.
type Engine interface {
	Generate(ctx context.Context, prompt string) (backend.GenerateResponse, error)
	Ping(ctx context.Context, timeout time.Duration) error
}

// Timeouts for backend calls. The forward timeout bounds one full
// generation; the probe timeout keeps /health snappy.
const (
	ForwardTimeout = 60 * time.Second
	ProbeTimeout   = 5 * time.Second
)

// maxBodyBytes limits JSON request bodies to 1 MiB.
var maxBodyBytes int64 = 1 << 20

// Server translates the simplified external contract into the engine's
// native API. All fields are fixed at construction; handlers share no
// mutable state, so concurrent requests need no locking.
type Server struct {
	engine Engine
	model  string
}

// New builds a Server bound to the given model identifier.
func New(engine Engine, model string) *Server {
	return &Server{engine: engine, model: model}
}

// Model returns the bound model identifier.
func (s *Server) Model() string { return s.model }

// Handler assembles the chi router: translation on POST /, liveness on
// GET /health, CORS preflight on OPTIONS anywhere, Prometheus on /metrics,
// 404 for everything else.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(optionsHandler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Post("/", s.handleTranslate)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	// The contract promises 404 for anything unrecognized, including
	// known paths with the wrong method.
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})

	return r
}

// optionsHandler answers any OPTIONS request with 200 and the CORS headers
// the contract promises, regardless of path or preflight headers.
func optionsHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			setCORSHeaders(w)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func setCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.TranslateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), ForwardTimeout)
	defer cancel()
	out, err := s.engine.Generate(ctx, req.Prompt)
	if err != nil {
		// A failed forward never crashes the process; each request fails alone.
		if status := backend.StatusOf(err); status != 0 {
			CountBackendFailure("status")
			zlogEvent("translate", http.StatusInternalServerError, time.Since(start), err)
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		CountBackendFailure("transport")
		zlogEvent("translate", http.StatusInternalServerError, time.Since(start), err)
		writeJSONError(w, http.StatusInternalServerError, "internal error forwarding to backend")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	resp := types.TranslateResponse{
		Response:  out.Response,
		Model:     s.model,
		CreatedAt: out.CreatedAt,
		Done:      true,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		zlogEvent("translate", http.StatusInternalServerError, time.Since(start), err)
		return
	}
	zlogEvent("translate", http.StatusOK, time.Since(start), nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.engine.Ping(r.Context(), ProbeTimeout); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(types.HealthResponse{Status: "unavailable", Model: s.model})
		return
	}
	_ = json.NewEncoder(w).Encode(types.HealthResponse{Status: "healthy", Model: s.model})
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
