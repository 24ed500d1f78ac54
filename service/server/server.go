package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Payal2904/drug-verification-system-sub000/service/config"
	"github.com/Payal2904/drug-verification-system-sub000/service/ledger"
	"github.com/Payal2904/drug-verification-system-sub000/service/metrics"
	"github.com/Payal2904/drug-verification-system-sub000/service/nats"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server for the ledger service.
type Server struct {
	addr      string
	cfg       *config.Config
	ledger    *ledger.Ledger
	publisher nats.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The ledger must have been started before the server accepts writes.
// The publisher is optional - if nil, appends are not announced on NATS.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, cfg *config.Config, ldgr *ledger.Ledger, publisher nats.Publisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:      addr,
		cfg:       cfg,
		ledger:    ldgr,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Wrap each route with the HTTP metrics middleware when metrics are on
	handle := func(pattern, name string, h http.Handler) {
		if s.metrics != nil {
			h = metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
		}
		mux.Handle(pattern, h)
	}

	// Ledger write route
	handle("POST /api/v1/transactions", "/api/v1/transactions", handleCreateTransaction(s.ledger, s.publisher, s.metrics, s.logger))

	// Ledger read routes
	handle("GET /api/v1/chain/verify", "/api/v1/chain/verify", handleVerifyChain(s.ledger, s.metrics, s.logger))
	handle("GET /api/v1/batches", "/api/v1/batches", handleListBatches(s.ledger, s.logger))
	handle("GET /api/v1/batches/{batch_id}/history", "/api/v1/batches/history", handleGetBatchHistory(s.ledger, s.logger))
	handle("GET /api/v1/batches/{batch_id}/anomalies", "/api/v1/batches/anomalies", handleGetBatchAnomalies(s.ledger, s.metrics, s.logger))
	handle("GET /api/v1/stats", "/api/v1/stats", handleGetStats(s.ledger, s.logger))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	// Wrap mux with CORS middleware
	handler := corsMiddleware(mux)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers for all requests
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Pass through to next handler
		next.ServeHTTP(w, r)
	})
}
