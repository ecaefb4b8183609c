// Package recorder exposes traffic capture and the file format replay reads.
package recorder

import (
	"io"
	"time"

	internalrecorder "github.com/SmitUplenchwar2687/quota/internal/recorder"
)

type (
	TrafficRecord = internalrecorder.TrafficRecord
	DecisionEvent = internalrecorder.DecisionEvent
	Recorder      = internalrecorder.Recorder
)

// New creates a Recorder. A non-nil w also receives each record as NDJSON.
func New(w io.Writer) *Recorder {
	return internalrecorder.New(w)
}

// NewTrafficRecord returns a record with a fresh ID.
func NewTrafficRecord(ts time.Time, key, endpoint string, amount int64) TrafficRecord {
	return internalrecorder.NewTrafficRecord(ts, key, endpoint, amount)
}

// LoadJSON reads a JSON array or NDJSON stream of records.
func LoadJSON(r io.Reader) ([]TrafficRecord, error) {
	return internalrecorder.LoadJSON(r)
}
