package faultlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects entries. Zero fields match everything.
type Filter struct {
	Sensor string
	Kind   string
	Since  *time.Time
	Until  *time.Time
}

func (f *Filter) matches(e Entry) bool {
	if f.Sensor != "" && e.Sensor != f.Sensor {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !e.Timestamp.Before(*f.Until) {
		return false
	}
	return true
}

// Reader streams entries from a fault log.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

func NewReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("faultlog: could not open %s: %w", path, err)
	}
	return &Reader{file: f, decoder: newDecoder(f), filter: filter}, nil
}

// Next returns the next matching entry or io.EOF.
func (r *Reader) Next() (Entry, error) {
	for {
		var e Entry
		if err := r.decoder.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return Entry{}, io.EOF
			}
			return Entry{}, fmt.Errorf("faultlog: could not decode entry: %w", err)
		}
		if r.filter.matches(e) {
			return e, nil
		}
	}
}

func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadAll returns every entry of path that matches filter.
func ReadAll(path string, filter Filter) ([]Entry, error) {
	r, err := NewReader(path, filter)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	var out []Entry
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}

// Summary counts entries per sensor and kind.
type Summary struct {
	Sensor string
	Kind   string
	Count  int
	Last   time.Time
}

func Summarize(entries []Entry) []Summary {
	type key struct{ sensor, kind string }
	idx := make(map[key]*Summary)
	for _, e := range entries {
		k := key{e.Sensor, e.Kind}
		s, ok := idx[k]
		if !ok {
			s = &Summary{Sensor: e.Sensor, Kind: e.Kind}
			idx[k] = s
		}
		s.Count++
		if e.Timestamp.After(s.Last) {
			s.Last = e.Timestamp
		}
	}
	out := make([]Summary, 0, len(idx))
	for _, s := range idx {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sensor != out[j].Sensor {
			return out[i].Sensor < out[j].Sensor
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}
