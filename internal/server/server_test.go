package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/analytics"
	"github.com/alanyoungcy/mevrebels/internal/engine"
	"github.com/alanyoungcy/mevrebels/internal/ledger"
	"github.com/alanyoungcy/mevrebels/internal/protocol"
	"github.com/alanyoungcy/mevrebels/internal/server/handler"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	pk, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	l := ledger.New(ledger.Options{
		Clock:  ledger.NewManualClock(time.Unix(1_700_000_000, 0)),
		Codec:  protocol.NewCodec(),
		Logger: discard(),
	})
	if _, err := protocol.Bootstrap(context.Background(), l, protocol.Params{
		Admin:            pk.PublicKey(),
		Mode:             engine.ModePool,
		OperatorFunding:  200 * ledger.LamportsPerSol,
		InitialLiquidity: 100 * ledger.LamportsPerSol,
	}); err != nil {
		t.Fatal(err)
	}
	p, err := protocol.New(l, protocol.Options{Mode: engine.ModePool, Logger: discard()})
	if err != nil {
		t.Fatal(err)
	}

	logger := discard()
	return NewServer(cfg, Handlers{
		Health:     handler.NewHealthHandler("server", l, nil, logger),
		Strategies: handler.NewStrategyHandler(p.Registry, p.Engine, logger),
		Liquidity:  handler.NewLiquidityHandler(p.Pool, p.Vault, logger),
		Governance: handler.NewGovernanceHandler(p.Governance, logger),
		Tokens:     handler.NewTokenHandler(p.Tokens, logger),
		Events:     handler.NewEventHandler(handler.RecentEvents{Source: l}, logger),
		Engine:     handler.NewEngineHandler(p.Engine, nil, nil, "", logger),
		Admin:      handler.NewAdminHandler(p.Registry, logger),
		Archive:    handler.NewArchiveHandler(nil, logger),
		Analytics: handler.NewAnalyticsHandler(analytics.New(analytics.Options{
			Strategies: p.Registry,
			Executions: p.Engine,
			Proposals:  p.Governance,
			Events:     handler.RecentEvents{Source: l},
			Logger:     logger,
		}), logger),
	}, nil, nil, logger)
}

func TestServerRoutesAndAuth(t *testing.T) {
	srv := newServer(t, Config{APIKey: "secret"})

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		want   int
	}{
		{"health is public", "GET", "/api/health", "", http.StatusOK},
		{"api requires key", "GET", "/api/pool", "", http.StatusUnauthorized},
		{"pool with key", "GET", "/api/pool", "secret", http.StatusOK},
		{"governance not distributed", "GET", "/api/governance", "secret", http.StatusOK},
		{"unknown route", "GET", "/api/unknown", "secret", http.StatusNotFound},
		{"queue without stream", "POST", "/api/exec-requests", "secret", http.StatusServiceUnavailable},
		{"archive without s3", "GET", "/api/archive", "secret", http.StatusNotFound},
		{"audit without postgres", "GET", "/api/admin/audit", "secret", http.StatusNotFound},
		{"leaderboard", "GET", "/api/leaderboard", "secret", http.StatusOK},
		{"analytics overview", "GET", "/api/analytics/overview", "secret", http.StatusOK},
		{"chart rejects interval", "GET", "/api/analytics/chart/executions?interval=1ms", "secret", http.StatusBadRequest},
		{"votes of unknown proposal", "GET", "/api/governance/proposals/7/votes", "secret", http.StatusNotFound},
		{"preflight skips auth", "OPTIONS", "/api/strategies", "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestServerWithoutKeyIgnoresCaller(t *testing.T) {
	srv := newServer(t, Config{})

	adminOf := func() string {
		t.Helper()
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/admin", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET /api/admin = %d", rec.Code)
		}
		var cfg struct {
			Admin string `json:"admin"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
			t.Fatal(err)
		}
		return cfg.Admin
	}
	admin := adminOf()

	other, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	body := `{"authority":"` + other.PublicKey().String() + `"}`
	req := httptest.NewRequest("POST", "/api/admin/rotate", strings.NewReader(body))
	req.Header.Set("X-Rebel-Caller", admin)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("rotate without api key = %d, want 401: %s", rec.Code, rec.Body.String())
	}
	if got := adminOf(); got != admin {
		t.Errorf("admin changed to %s", got)
	}
}
