package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/visionrelay/visionrelay/internal/health"
	"github.com/visionrelay/visionrelay/internal/logging"
	"github.com/visionrelay/visionrelay/internal/models"
	"github.com/visionrelay/visionrelay/internal/ratelimit"
	"github.com/visionrelay/visionrelay/internal/relay"
	"github.com/visionrelay/visionrelay/internal/results"
)

type Server struct {
	relaySvc       *relay.Service
	gate           *health.Gate
	store          results.Store
	defaultLimiter ratelimit.Limiter
	registry       *prometheus.Registry
	maxUploadBytes int64
	logger         *logging.Logger
	server         *http.Server
}

func New(
	relaySvc *relay.Service,
	gate *health.Gate,
	store results.Store,
	defaultLimiter ratelimit.Limiter,
	registry *prometheus.Registry,
	maxUploadBytes int64,
	logger *logging.Logger,
) *Server {
	return &Server{
		relaySvc:       relaySvc,
		gate:           gate,
		store:          store,
		defaultLimiter: defaultLimiter,
		registry:       registry,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.logger.Info("HTTP API server starting", logging.WithField("addr", addr))
	return s.server.ListenAndServe()
}

// Handler builds the route table. Split out from Start so tests can mount it
// on an httptest server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/upload", s.corsMiddleware(s.handleUpload))
	mux.HandleFunc("/api/results/", s.corsMiddleware(s.handleGetResult))
	mux.HandleFunc("/health", s.handleHealth)

	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	return mux
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.gate.CheckOrProbe(r.Context())

	s.writeJSON(w, http.StatusOK, models.GatewayHealth{
		Service:         "gateway",
		Status:          "healthy",
		AIBackendStatus: state.String(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
