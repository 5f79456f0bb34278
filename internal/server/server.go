// Package server exposes the protocol over a JSON HTTP API and a WebSocket
// event feed.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/mevrebels/internal/domain"
	"github.com/alanyoungcy/mevrebels/internal/server/handler"
	"github.com/alanyoungcy/mevrebels/internal/server/middleware"
	"github.com/alanyoungcy/mevrebels/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, requests carry no caller and the API is read-only

	// RateLimit caps state-changing requests per client per RateWindow.
	// Zero disables rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Strategies *handler.StrategyHandler
	Liquidity  *handler.LiquidityHandler
	Governance *handler.GovernanceHandler
	Tokens     *handler.TokenHandler
	Events     *handler.EventHandler
	Engine     *handler.EngineHandler
	Admin      *handler.AdminHandler
	Archive    *handler.ArchiveHandler
	Analytics  *handler.AnalyticsHandler
}

// Server is the HTTP + WebSocket API server of a protocol node.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	registerRoutes(mux, handlers)
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

func registerRoutes(mux *http.ServeMux, hs Handlers) {
	mux.HandleFunc("GET /api/health", hs.Health.HealthCheck)

	mux.HandleFunc("GET /api/strategies", hs.Strategies.ListStrategies)
	mux.HandleFunc("POST /api/strategies", hs.Strategies.CreateStrategy)
	mux.HandleFunc("GET /api/strategies/address", hs.Strategies.DeriveAddress)
	mux.HandleFunc("GET /api/strategies/{address}", hs.Strategies.GetStrategy)
	mux.HandleFunc("POST /api/strategies/{address}/approve", hs.Strategies.Approve)
	mux.HandleFunc("POST /api/strategies/{address}/reject", hs.Strategies.Reject)
	mux.HandleFunc("POST /api/strategies/{address}/execute", hs.Strategies.Execute)
	mux.HandleFunc("GET /api/strategies/{address}/executions", hs.Analytics.ListExecutions)

	mux.HandleFunc("GET /api/pool", hs.Liquidity.GetPool)
	mux.HandleFunc("POST /api/pool/deposit", hs.Liquidity.DepositPool)
	mux.HandleFunc("GET /api/vault", hs.Liquidity.GetVault)
	mux.HandleFunc("POST /api/vault/fund", hs.Liquidity.FundVault)

	mux.HandleFunc("GET /api/governance", hs.Governance.GetConfig)
	mux.HandleFunc("GET /api/governance/proposals", hs.Governance.ListProposals)
	mux.HandleFunc("POST /api/governance/proposals", hs.Governance.CreateProposal)
	mux.HandleFunc("GET /api/governance/proposals/{id}", hs.Governance.GetProposal)
	mux.HandleFunc("GET /api/governance/proposals/{id}/votes", hs.Governance.ListVotes)
	mux.HandleFunc("POST /api/governance/proposals/{id}/votes", hs.Governance.CastVote)
	mux.HandleFunc("POST /api/governance/proposals/{id}/execute", hs.Governance.ExecuteProposal)
	mux.HandleFunc("GET /api/governance/treasury", hs.Governance.GetTreasury)
	mux.HandleFunc("POST /api/governance/treasury/deposit", hs.Governance.DepositTreasury)
	mux.HandleFunc("GET /api/governance/voting-power/{owner}", hs.Governance.VotingPower)
	mux.HandleFunc("POST /api/governance/grants", hs.Governance.GrantTokens)

	mux.HandleFunc("GET /api/tokens/{mint}/balances/{owner}", hs.Tokens.GetBalance)
	mux.HandleFunc("GET /api/events", hs.Events.ListEvents)

	mux.HandleFunc("GET /api/engine/stats", hs.Engine.GetStats)
	mux.HandleFunc("POST /api/exec-requests", hs.Engine.QueueExecution)

	mux.HandleFunc("GET /api/admin", hs.Admin.GetConfig)
	mux.HandleFunc("POST /api/admin/rotate", hs.Admin.RotateAdmin)
	mux.HandleFunc("POST /api/admin/governance-authority", hs.Admin.SetGovernanceAuthority)
	mux.HandleFunc("GET /api/admin/audit", hs.Admin.ListAudit)

	mux.HandleFunc("GET /api/leaderboard", hs.Analytics.Leaderboard)
	mux.HandleFunc("GET /api/leaderboard/creators", hs.Analytics.TopCreators)
	mux.HandleFunc("GET /api/leaderboard/creators/{creator}", hs.Analytics.GetCreator)
	mux.HandleFunc("GET /api/analytics/overview", hs.Analytics.Overview)
	mux.HandleFunc("GET /api/analytics/chart/executions", hs.Analytics.ExecutionChart)

	mux.HandleFunc("GET /api/archive", hs.Archive.ListPages)
	mux.HandleFunc("GET /api/archive/{month}/{page}", hs.Archive.GetPage)
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
