package recorder

import (
	"time"

	"github.com/google/uuid"

	"github.com/SmitUplenchwar2687/quota/internal/limiter"
)

// TrafficRecord represents a single captured limiter call.
type TrafficRecord struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Key       string            `json:"key"`      // User ID, API key, IP, etc.
	Endpoint  string            `json:"endpoint"` // e.g., "GET /mw/user1"
	Amount    int64             `json:"amount,omitempty"`
	Points    int64             `json:"points,omitempty"` // per-call limit override, 0 = none
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewTrafficRecord returns a record with a fresh ID.
func NewTrafficRecord(ts time.Time, key, endpoint string, amount int64) TrafficRecord {
	return TrafficRecord{
		ID:        uuid.NewString(),
		Timestamp: ts,
		Key:       key,
		Endpoint:  endpoint,
		Amount:    amount,
	}
}

// ConsumeOptions returns the limiter options that reproduce the call.
func (r TrafficRecord) ConsumeOptions() []limiter.ConsumeOption {
	opts := []limiter.ConsumeOption{limiter.WithAmount(r.Amount)}
	if r.Points > 0 {
		opts = append(opts, limiter.WithPoints(r.Points))
	}
	return opts
}

// DecisionEvent pairs a traffic record with the limiter outcome it produced.
// Used for streaming to the dashboard and replay output.
type DecisionEvent struct {
	Record    TrafficRecord     `json:"record"`
	Algorithm limiter.Algorithm `json:"algorithm"`
	Result    limiter.Result    `json:"result"`
	Error     string            `json:"error,omitempty"` // infrastructure failure, never a rejection
	Time      time.Time         `json:"time"`
}

// Outcome is "allowed", "rejected" or "error".
func (e DecisionEvent) Outcome() string {
	switch {
	case e.Error != "":
		return "error"
	case e.Result.Allowed:
		return "allowed"
	default:
		return "rejected"
	}
}
