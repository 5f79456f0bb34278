package postgres

import (
	"testing"
	"time"

	"github.com/alanyoungcy/mevrebels/internal/domain"
)

func TestAuditQuery(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)
	tests := []struct {
		name  string
		opts  domain.ListOpts
		want  string
		nargs int
	}{
		{
			name: "no filters",
			want: "SELECT id, event, detail, created_at FROM audit_log ORDER BY created_at DESC",
		},
		{
			name:  "window and paging",
			opts:  domain.ListOpts{Since: &since, Until: &until, Limit: 10, Offset: 20},
			want:  "SELECT id, event, detail, created_at FROM audit_log WHERE created_at >= $1 AND created_at <= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4",
			nargs: 4,
		},
		{
			name:  "offset only",
			opts:  domain.ListOpts{Offset: 5},
			want:  "SELECT id, event, detail, created_at FROM audit_log ORDER BY created_at DESC OFFSET $1",
			nargs: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := auditQuery(tt.opts)
			if got := q.sql(); got != tt.want {
				t.Errorf("sql =\n  %s\nwant\n  %s", got, tt.want)
			}
			if len(q.args) != tt.nargs {
				t.Errorf("args = %v, want %d", q.args, tt.nargs)
			}
		})
	}
}

func TestEventsQuery(t *testing.T) {
	const sel = "SELECT seq, id::text, kind, program, payload, ts FROM ledger_events"
	tests := []struct {
		name  string
		f     domain.EventFilter
		want  string
		nargs int
	}{
		{
			name:  "forward page",
			f:     domain.EventFilter{AfterSeq: 10, Kind: "VoteCast", Limit: 5},
			want:  sel + " WHERE seq > $1 AND kind = $2 ORDER BY seq ASC LIMIT $3",
			nargs: 3,
		},
		{
			name:  "default limit",
			want:  sel + " WHERE seq > $1 ORDER BY seq ASC LIMIT $2",
			nargs: 2,
		},
		{
			name: "strategy history newest first",
			f: domain.EventFilter{
				Kind:      "StrategyExecuted",
				Strategy:  "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
				BeforeSeq: 40,
				Newest:    true,
				Limit:     20,
			},
			want:  sel + " WHERE seq > $1 AND seq < $2 AND kind = $3 AND payload->>'strategy' = $4 ORDER BY seq DESC LIMIT $5",
			nargs: 5,
		},
		{
			name:  "time window",
			f:     domain.EventFilter{Since: 1_700_000_000, Limit: 500},
			want:  sel + " WHERE seq > $1 AND ts >= $2 ORDER BY seq ASC LIMIT $3",
			nargs: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := eventsQuery(tt.f)
			if got := q.sql(); got != tt.want {
				t.Errorf("sql =\n  %s\nwant\n  %s", got, tt.want)
			}
			if len(q.args) != tt.nargs {
				t.Errorf("args = %v, want %d", q.args, tt.nargs)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{"explicit dsn wins", ClientConfig{DSN: "postgres://x", Host: "ignored"}, "postgres://x"},
		{"defaults", ClientConfig{User: "u", Password: "p", Host: "db", Database: "rebels"}, "postgres://u:p@db:5432/rebels?sslmode=disable"},
		{"ssl", ClientConfig{User: "u", Host: "db", Port: 6543, Database: "r", SSLMode: "require"}, "postgres://u:@db:6543/r?sslmode=require"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Errorf("DSN = %q, want %q", got, tt.want)
			}
		})
	}
}
