package replay

import (
	"fmt"
	"strings"
	"time"

	"github.com/SmitUplenchwar2687/quota/internal/recorder"
)

// Filter defines criteria for selecting traffic records during replay.
type Filter struct {
	Keys      []string  // Only include these keys (empty = all)
	Endpoints []string  // Only include these endpoints (empty = all)
	After     time.Time // Only include records after this time (zero = no limit)
	Before    time.Time // Only include records before this time (zero = no limit)
}

// ParseFilter builds a Filter from comma-separated key and endpoint lists
// and optional RFC 3339 time bounds.
func ParseFilter(keys, endpoints, after, before string) (Filter, error) {
	f := Filter{
		Keys:      splitList(keys),
		Endpoints: splitList(endpoints),
	}
	var err error
	if after != "" {
		if f.After, err = time.Parse(time.RFC3339, after); err != nil {
			return Filter{}, fmt.Errorf("parsing --after: %w", err)
		}
	}
	if before != "" {
		if f.Before, err = time.Parse(time.RFC3339, before); err != nil {
			return Filter{}, fmt.Errorf("parsing --before: %w", err)
		}
	}
	if !f.After.IsZero() && !f.Before.IsZero() && !f.After.Before(f.Before) {
		return Filter{}, fmt.Errorf("after %s is not before %s", after, before)
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Match returns true if the record passes the filter.
func (f *Filter) Match(r recorder.TrafficRecord) bool {
	if len(f.Keys) > 0 && !contains(f.Keys, r.Key) {
		return false
	}
	if len(f.Endpoints) > 0 && !matchEndpoint(f.Endpoints, r.Endpoint) {
		return false
	}
	if !f.After.IsZero() && !r.Timestamp.After(f.After) {
		return false
	}
	if !f.Before.IsZero() && !r.Timestamp.Before(f.Before) {
		return false
	}
	return true
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func matchEndpoint(patterns []string, endpoint string) bool {
	for _, p := range patterns {
		if p == endpoint || strings.Contains(endpoint, p) {
			return true
		}
	}
	return false
}
