package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Recorder captures traffic records for later replay.
// Thread-safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	records []TrafficRecord
	enc     *json.Encoder // optional: stream records as they arrive
}

// New creates a new Recorder. If w is non-nil, records are also
// written to w as newline-delimited JSON as they arrive.
func New(w io.Writer) *Recorder {
	r := &Recorder{}
	if w != nil {
		r.enc = json.NewEncoder(w)
	}
	return r
}

// Record captures a single traffic record.
func (r *Recorder) Record(rec TrafficRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, rec)

	if r.enc != nil {
		if err := r.enc.Encode(rec); err != nil {
			return fmt.Errorf("streaming record: %w", err)
		}
	}
	return nil
}

// Records returns a copy of all recorded traffic.
func (r *Recorder) Records() []TrafficRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TrafficRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the number of recorded items.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// ExportJSON writes all records to the given writer as a JSON array.
func (r *Recorder) ExportJSON(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := r.records
	if records == nil {
		records = []TrafficRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// ExportFile writes all records to a file as a JSON array.
func (r *Recorder) ExportFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.ExportJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadJSON reads traffic records written by ExportJSON (a JSON array) or
// streamed by a Recorder (newline-delimited JSON).
func LoadJSON(r io.Reader) ([]TrafficRecord, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var records []TrafficRecord
		if err := dec.Decode(&records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var records []TrafficRecord
	for {
		var rec TrafficRecord
		err := dec.Decode(&rec)
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
