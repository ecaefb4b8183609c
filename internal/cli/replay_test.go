package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/SmitUplenchwar2687/quota/internal/replay"
)

const replayFixture = `[
  {"timestamp": "2024-01-01T00:00:00Z", "key": "user1", "endpoint": "GET /mw/user1"},
  {"timestamp": "2024-01-01T00:00:01Z", "key": "user1", "endpoint": "GET /mw/user1"},
  {"timestamp": "2024-01-01T00:00:02Z", "key": "user1", "endpoint": "GET /mw/user1"},
  {"timestamp": "2024-01-01T00:00:03Z", "key": "user2", "endpoint": "POST /api/consume/user2", "amount": 3},
  {"timestamp": "2024-01-01T00:02:00Z", "key": "user1", "endpoint": "GET /mw/user1"}
]`

type replayOutput struct {
	Steps   []replay.Step  `json:"steps"`
	Summary replay.Summary `json:"summary"`
}

func runReplayJSON(t *testing.T, args ...string) replayOutput {
	t.Helper()
	path := writeFile(t, "traffic.json", replayFixture)
	out, err := execute(t, append([]string{"replay", "--file", path, "--json"}, args...)...)
	if err != nil {
		t.Fatalf("replay command failed: %v", err)
	}
	var got replayOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	return got
}

func TestReplayCmd_JSON(t *testing.T) {
	got := runReplayJSON(t, "--algorithm", "fixed-window", "--points", "2", "--duration", "1m")

	s := got.Summary
	if s.Replayed != 5 {
		t.Fatalf("Replayed = %d, want 5", s.Replayed)
	}
	// user1: two allowed, one rejected, then allowed in a fresh window.
	if u1 := s.PerKey["user1"]; u1.Allowed != 3 || u1.Rejected != 1 {
		t.Errorf("user1 = %+v, want 3 allowed, 1 rejected", u1)
	}
	if u2 := s.PerKey["user2"]; u2.Allowed != 1 || u2.Consumed != 3 {
		t.Errorf("user2 = %+v, want 1 allowed with 3 consumed", u2)
	}
	if len(got.Steps) != 5 {
		t.Errorf("got %d steps, want 5", len(got.Steps))
	}
}

func TestReplayCmd_Filters(t *testing.T) {
	got := runReplayJSON(t, "--keys", "user1", "--before", "2024-01-01T00:01:00Z")
	if got.Summary.Filtered != 3 || got.Summary.TotalRecords != 5 {
		t.Errorf("filtered=%d total=%d, want 3/5", got.Summary.Filtered, got.Summary.TotalRecords)
	}
}

func TestReplayCmd_LoadsConfigFile(t *testing.T) {
	trafficPath := writeFile(t, "traffic.json", replayFixture)
	configPath := writeFile(t, "quota.yaml", `
limiter:
  algorithm: sliding-window
  points: 1
  duration: 1m
`)

	out, err := execute(t, "replay", "--file", trafficPath, "--config", configPath)
	if err != nil {
		t.Fatalf("replay command with config failed: %v", err)
	}
	for _, want := range []string{"sliding-window", "Replay Summary", "Rejected:       2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestReplayCmd_NDJSON(t *testing.T) {
	path := writeFile(t, "traffic.ndjson", `{"timestamp":"2024-01-01T00:00:00Z","key":"a"}
{"timestamp":"2024-01-01T00:00:01Z","key":"b"}
`)
	out, err := execute(t, "replay", "--file", path, "--json")
	if err != nil {
		t.Fatal(err)
	}
	var got replayOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if got.Summary.Allowed != 2 {
		t.Errorf("Allowed = %d, want 2", got.Summary.Allowed)
	}
}

func TestReplayCmd_Errors(t *testing.T) {
	path := writeFile(t, "traffic.json", replayFixture)
	tests := []struct {
		name string
		args []string
	}{
		{"missing file flag", []string{"replay"}},
		{"missing file", []string{"replay", "--file", path + ".missing"}},
		{"bad filter", []string{"replay", "--file", path, "--after", "yesterday"}},
		{"bad algorithm", []string{"replay", "--file", path, "--algorithm", "leaky-bucket"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
