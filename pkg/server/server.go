package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/defispring/allocation-merkle-go/pkg/snapshot"
	"github.com/defispring/allocation-merkle-go/pkg/types"
)

/*
Server exposes the current allocation snapshot over HTTP.

Query endpoints (GET, CORS open to any origin):
  /get_calldata?address=&round=           -> {"amount": "0x..", "proof": ["0x..", ...]}
  /get_allocation_amount?address=&round=  -> "0x.."
  /get_root?round=                        -> "0x.."
  /get_rounds                             -> [{round, root, round_total_amount, ...}]

round absent or 0 selects the latest round.

Operational endpoints:
  /health          200 once a snapshot is loaded, 503 before
  /metrics         prometheus exposition
  /admin/refresh   POST, Bearer HS256 JWT; only registered when a secret is configured
*/

// Repository is the read and refresh surface the server needs.
// *snapshot.Repository satisfies it.
type Repository interface {
	Refresh(ctx context.Context) (*snapshot.Snapshot, error)
	Snapshot() *snapshot.Snapshot
	Rounds() ([]types.RoundSummary, error)
	Calldata(round uint8, address string) (*types.CalldataProof, error)
	AllocationAmount(round uint8, address string) (types.Amount, error)
	Root(round uint8) (string, error)
}

// Config holds the server dependencies
type Config struct {
	Port       int
	Repository Repository

	// AdminJWTSecret enables POST /admin/refresh when non-empty.
	AdminJWTSecret []byte

	// RateLimit is requests per second across all clients; zero disables it.
	RateLimit float64
	RateBurst int

	Logger *zap.Logger
}

// Server handles HTTP requests for allocation queries
type Server struct {
	repo    Repository
	admin   *AdminAuth
	limiter *rate.Limiter
	logger  *zap.Logger

	httpServer *http.Server
}

// NewServer creates a new server instance
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	s := &Server{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}

	if len(cfg.AdminJWTSecret) > 0 {
		admin, err := NewAdminAuth(cfg.AdminJWTSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to configure admin auth: %w", err)
		}
		s.admin = admin
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	mux := http.NewServeMux()

	// Query endpoints
	mux.Handle("/get_calldata", s.query("get_calldata", s.handleGetCalldata))
	mux.Handle("/get_allocation_amount", s.query("get_allocation_amount", s.handleGetAllocationAmount))
	mux.Handle("/get_root", s.query("get_root", s.handleGetRoot))
	mux.Handle("/get_rounds", s.query("get_rounds", s.handleGetRounds))

	// Operational endpoints
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	if s.admin != nil {
		mux.Handle("/admin/refresh", s.instrument("admin_refresh", s.handleAdminRefresh))
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server",
			"port", s.httpServer.Addr,
			"adminRefresh", s.admin != nil,
			"rateLimited", s.limiter != nil,
		)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop drains in-flight requests until ctx expires, then closes the server.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		_ = s.httpServer.Close()
		return err
	}
	return nil
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
