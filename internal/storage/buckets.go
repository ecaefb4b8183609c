package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCorruptRecord is returned when a persisted bucket log cannot be decoded.
var ErrCorruptRecord = errors.New("corrupt bucket log")

// Bucket is one entry of a bucket log. Timestamp is in Unix milliseconds and
// marks when the bucket opened.
type Bucket struct {
	Timestamp int64 `json:"timestamp"`
	Count     int64 `json:"count"`
}

// DecodeBuckets parses a bucket log: a JSON array ordered by timestamp.
func DecodeBuckets(raw []byte) ([]Bucket, error) {
	var buckets []Bucket
	if err := json.Unmarshal(raw, &buckets); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	for i, b := range buckets {
		if b.Count < 0 {
			return nil, fmt.Errorf("%w: bucket %d has negative count %d", ErrCorruptRecord, i, b.Count)
		}
		if i > 0 && b.Timestamp < buckets[i-1].Timestamp {
			return nil, fmt.Errorf("%w: bucket %d is out of order", ErrCorruptRecord, i)
		}
	}
	return buckets, nil
}

// SumBuckets adds up the buckets whose interval ends after windowStartMS.
func SumBuckets(buckets []Bucket, windowStartMS, intervalMS int64) int64 {
	var n int64
	for _, b := range buckets {
		if b.Timestamp+intervalMS > windowStartMS {
			n += b.Count
		}
	}
	return n
}

// addBucket is the AddBucketBelow decision over a decoded log. It returns the
// log to persist, or nil when the call is refused.
func addBucket(buckets []Bucket, nowMS, amount, limit, windowMS, intervalMS int64) ([]Bucket, int64) {
	windowStartMS := nowMS - windowMS
	count := SumBuckets(buckets, windowStartMS, intervalMS)
	if count >= limit {
		return nil, count
	}

	if n := len(buckets); n > 0 && buckets[n-1].Timestamp > nowMS-intervalMS {
		buckets[n-1].Count += amount
	} else {
		buckets = append(buckets, Bucket{Timestamp: nowMS, Count: amount})
	}

	kept := buckets[:0]
	for _, b := range buckets {
		if b.Timestamp+intervalMS > windowStartMS {
			kept = append(kept, b)
		}
	}
	return kept, count
}
