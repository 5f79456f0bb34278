package redis

import (
	"testing"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

func TestEventChannel(t *testing.T) {
	if got := EventChannel("StrategyExecuted"); got != "ch:events:StrategyExecuted" {
		t.Errorf("EventChannel = %q", got)
	}
	if !hasPattern(EventChannelPattern) {
		t.Errorf("%q should subscribe by pattern", EventChannelPattern)
	}
	if hasPattern(EventChannel(ledger.EventKind("VoteCast"))) {
		t.Error("per-kind channel should not be a pattern")
	}
}

func TestStreamPayload(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
		want   string
		ok     bool
	}{
		{"string", map[string]any{"payload": `{"seq":1}`}, `{"seq":1}`, true},
		{"bytes", map[string]any{"payload": []byte("x")}, "x", true},
		{"missing", map[string]any{"other": "x"}, "", false},
		{"wrong type", map[string]any{"payload": 7}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := streamPayload(tt.values)
			if ok != tt.ok || string(got) != tt.want {
				t.Errorf("streamPayload = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestKeys(t *testing.T) {
	if got := lockKey("ledger:writer"); got != "lock:ledger:writer" {
		t.Errorf("lockKey = %q", got)
	}
	if got := rateLimitKey("api:10.0.0.1"); got != "ratelimit:api:10.0.0.1" {
		t.Errorf("rateLimitKey = %q", got)
	}
	if got := responseKey("leaderboard:10"); got != "cache:leaderboard:10" {
		t.Errorf("responseKey = %q", got)
	}
	args := xaddArgs(EventStream, []byte("p"))
	if args.Stream != EventStream || !args.Approx || args.MaxLen != streamMaxLen {
		t.Errorf("xaddArgs = %+v", args)
	}
}
