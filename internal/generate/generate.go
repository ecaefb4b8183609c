// Package generate builds synthetic traffic for replay.
package generate

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/SmitUplenchwar2687/quota/internal/recorder"
)

// Pattern shapes how records are spread over the generated span.
type Pattern string

const (
	// PatternSteady spaces records evenly.
	PatternSteady Pattern = "steady"
	// PatternBurst clusters records into short bursts separated by quiet gaps.
	PatternBurst Pattern = "burst"
	// PatternRamp packs records ever more densely toward the end of the span.
	PatternRamp Pattern = "ramp"
)

// Patterns lists every supported pattern.
func Patterns() []Pattern {
	return []Pattern{PatternSteady, PatternBurst, PatternRamp}
}

// ParsePattern maps a name to a Pattern. Empty means steady.
func ParsePattern(name string) (Pattern, error) {
	if name == "" {
		return PatternSteady, nil
	}
	for _, p := range Patterns() {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown pattern %q (want steady, burst or ramp)", name)
}

// DefaultEndpoints mirrors the demo server routes.
var DefaultEndpoints = []string{
	"GET /mw/{key}",
	"POST /api/consume/{key}",
	"GET /api/consume/{key}",
}

// Options controls generation.
type Options struct {
	Count     int
	Keys      int
	Duration  time.Duration
	Pattern   Pattern
	Start     time.Time
	Seed      uint64
	Endpoints []string
	// MaxAmount > 1 draws each record's amount uniformly from [1, MaxAmount].
	MaxAmount int64
	// Bursts is the number of bursts for PatternBurst. Defaults to 4.
	Bursts int
}

// DefaultOptions returns the values the generate command starts from.
func DefaultOptions() Options {
	return Options{
		Count:    100,
		Keys:     3,
		Duration: 5 * time.Minute,
		Pattern:  PatternSteady,
		Bursts:   4,
	}
}

type generator struct {
	rng  *rand.Rand
	opts Options
	keys []string
}

// Traffic returns synthetic records sorted by timestamp.
func Traffic(opts Options) ([]recorder.TrafficRecord, error) {
	if opts.Count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", opts.Count)
	}
	if opts.Keys <= 0 {
		return nil, fmt.Errorf("keys must be positive, got %d", opts.Keys)
	}
	if opts.Duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %s", opts.Duration)
	}
	if opts.MaxAmount < 0 {
		return nil, fmt.Errorf("max amount must not be negative, got %d", opts.MaxAmount)
	}
	pattern, err := ParsePattern(string(opts.Pattern))
	if err != nil {
		return nil, err
	}
	opts.Pattern = pattern
	if opts.Start.IsZero() {
		opts.Start = time.Now().UTC().Truncate(time.Second)
	}
	if len(opts.Endpoints) == 0 {
		opts.Endpoints = DefaultEndpoints
	}
	if opts.Seed == 0 {
		opts.Seed = uint64(time.Now().UnixNano())
	}
	if opts.Bursts <= 0 {
		opts.Bursts = 4
	}

	g := &generator{
		rng:  rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		opts: opts,
		keys: make([]string, opts.Keys),
	}
	for i := range g.keys {
		g.keys[i] = fmt.Sprintf("user-%d", i+1)
	}

	var offsets []time.Duration
	switch opts.Pattern {
	case PatternBurst:
		offsets = g.burst()
	case PatternRamp:
		offsets = g.ramp()
	default:
		offsets = g.steady()
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	records := make([]recorder.TrafficRecord, len(offsets))
	for i, off := range offsets {
		records[i] = g.record(opts.Start.Add(off))
	}
	return records, nil
}

func (g *generator) steady() []time.Duration {
	step := g.opts.Duration / time.Duration(g.opts.Count)
	out := make([]time.Duration, g.opts.Count)
	for i := range out {
		out[i] = time.Duration(i) * step
	}
	return out
}

func (g *generator) burst() []time.Duration {
	n := g.opts.Bursts
	gap := g.opts.Duration / time.Duration(n)
	// Each burst lasts at most a second, or the whole gap when that is shorter.
	width := max(min(time.Second, gap), 1)
	out := make([]time.Duration, 0, g.opts.Count)
	for i := 0; i < g.opts.Count; i++ {
		b := i % n
		out = append(out, time.Duration(b)*gap+time.Duration(g.rng.Int64N(int64(width))))
	}
	return out
}

func (g *generator) ramp() []time.Duration {
	out := make([]time.Duration, g.opts.Count)
	for i := range out {
		frac := float64(i) / float64(g.opts.Count)
		// Gaps shrink linearly as i grows.
		out[i] = time.Duration((1 - (1-frac)*(1-frac)) * float64(g.opts.Duration))
	}
	return out
}

func (g *generator) record(ts time.Time) recorder.TrafficRecord {
	key := g.keys[g.rng.IntN(len(g.keys))]
	endpoint := g.opts.Endpoints[g.rng.IntN(len(g.opts.Endpoints))]
	var amount int64
	if g.opts.MaxAmount > 1 {
		amount = 1 + g.rng.Int64N(g.opts.MaxAmount)
	}
	rec := recorder.NewTrafficRecord(ts, key, strings.ReplaceAll(endpoint, "{key}", key), amount)
	rec.Metadata = map[string]string{"source": "generate", "pattern": string(g.opts.Pattern)}
	return rec
}
