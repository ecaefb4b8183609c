package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/quota/internal/clock"
	"github.com/SmitUplenchwar2687/quota/internal/limiter"
	"github.com/SmitUplenchwar2687/quota/internal/recorder"
)

// Replayer replays recorded traffic through a limiter at a configurable speed.
type Replayer struct {
	records []recorder.TrafficRecord
	limiter limiter.Limiter
	clock   *clock.VirtualClock
	filter  Filter
	speed   float64 // 1.0 = real-time, 10.0 = 10x, 0 = instant
	logger  *zap.Logger
}

// Step captures the outcome of replaying a single record.
type Step struct {
	Record recorder.TrafficRecord `json:"record"`
	Result limiter.Result         `json:"result"`
	Err    error                  `json:"-"`
	Time   time.Time              `json:"time"` // virtual time when the decision was made
}

// Event converts the step into a dashboard decision event.
func (s Step) Event(alg limiter.Algorithm) recorder.DecisionEvent {
	ev := recorder.DecisionEvent{
		Record:    s.Record,
		Algorithm: alg,
		Result:    s.Result,
		Time:      s.Time,
	}
	if s.Err != nil {
		ev.Error = s.Err.Error()
	}
	return ev
}

// Summary aggregates replay statistics.
type Summary struct {
	TotalRecords int                   `json:"total_records"`
	Filtered     int                   `json:"filtered"`
	Replayed     int                   `json:"replayed"`
	Allowed      int                   `json:"allowed"`
	Rejected     int                   `json:"rejected"`
	Failed       int                   `json:"failed"`
	Duration     time.Duration         `json:"duration"`      // virtual time span
	WallDuration time.Duration         `json:"wall_duration"` // actual wall clock time
	PerKey       map[string]KeySummary `json:"per_key"`
}

// KeySummary has per-key stats.
type KeySummary struct {
	Allowed  int   `json:"allowed"`
	Rejected int   `json:"rejected"`
	Failed   int   `json:"failed"`
	Consumed int64 `json:"consumed"` // last observed consumption
}

// New creates a new replayer. The limiter must read time from vc.
func New(lim limiter.Limiter, vc *clock.VirtualClock, speed float64, filter Filter, logger *zap.Logger) *Replayer {
	if speed < 0 {
		speed = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{
		limiter: lim,
		clock:   vc,
		speed:   speed,
		filter:  filter,
		logger:  logger,
	}
}

// Load reads traffic records from a JSON or NDJSON reader.
func (r *Replayer) Load(reader io.Reader) error {
	records, err := recorder.LoadJSON(reader)
	if err != nil {
		return fmt.Errorf("loading records: %w", err)
	}
	r.records = records
	return nil
}

// LoadRecords sets the records directly.
func (r *Replayer) LoadRecords(records []recorder.TrafficRecord) {
	r.records = make([]recorder.TrafficRecord, len(records))
	copy(r.records, records)
}

// Run replays all loaded records through the limiter in timestamp order.
// The callback is called for each replayed record. Store failures are
// counted in the summary and do not stop the replay; context cancellation does.
func (r *Replayer) Run(ctx context.Context, cb func(Step)) (*Summary, error) {
	if len(r.records) == 0 {
		return nil, fmt.Errorf("no records loaded")
	}

	sorted := make([]recorder.TrafficRecord, len(r.records))
	copy(sorted, r.records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var filtered []recorder.TrafficRecord
	for _, rec := range sorted {
		if r.filter.Match(rec) {
			filtered = append(filtered, rec)
		}
	}

	summary := &Summary{
		TotalRecords: len(sorted),
		Filtered:     len(filtered),
		PerKey:       make(map[string]KeySummary),
	}
	if len(filtered) == 0 {
		return summary, nil
	}

	// Start the virtual clock at the first record so window math matches
	// the recorded timeline.
	baseTime := filtered[0].Timestamp
	if baseTime.After(r.clock.Now()) {
		r.clock.Set(baseTime)
	}

	wallStart := time.Now()
	for i, rec := range filtered {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if i > 0 {
			gap := rec.Timestamp.Sub(filtered[i-1].Timestamp)
			if gap > 0 {
				if err := r.pace(ctx, gap); err != nil {
					return summary, err
				}
				r.clock.Advance(gap)
			}
		}

		res, err := r.limiter.Consume(ctx, rec.Key, rec.ConsumeOptions()...)
		step := Step{Record: rec, Result: res, Time: r.clock.Now()}

		ks := summary.PerKey[rec.Key]
		summary.Replayed++
		switch {
		case err == nil:
			summary.Allowed++
			ks.Allowed++
			ks.Consumed = res.Consumed
		case errors.Is(err, limiter.ErrQuotaExceeded):
			summary.Rejected++
			ks.Rejected++
			ks.Consumed = res.Consumed
		default:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, ctxErr
			}
			step.Err = err
			summary.Failed++
			ks.Failed++
			r.logger.Warn("replay consume failed",
				zap.String("key", rec.Key),
				zap.String("id", rec.ID),
				zap.Error(err),
			)
		}
		summary.PerKey[rec.Key] = ks

		if cb != nil {
			cb(step)
		}
	}

	summary.Duration = filtered[len(filtered)-1].Timestamp.Sub(baseTime)
	summary.WallDuration = time.Since(wallStart)
	return summary, nil
}

// pace sleeps for the gap scaled by speed so a live dashboard can follow along.
func (r *Replayer) pace(ctx context.Context, gap time.Duration) error {
	if r.speed <= 0 {
		return nil
	}
	scaled := time.Duration(float64(gap) / r.speed)
	if scaled <= time.Millisecond {
		return nil
	}
	t := time.NewTimer(scaled)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
