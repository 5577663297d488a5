package faultlog

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/mklimuk/sensorwatch/monitor"
)

// Recorder appends fault entries to a CBOR file. It is safe for concurrent
// use by several monitors.
type Recorder struct {
	mx      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool
	logger  *slog.Logger
}

var _ monitor.FaultReporter = (*Recorder)(nil)

// NewRecorder opens path for appending, creating it if needed.
func NewRecorder(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("faultlog: could not open %s: %w", path, err)
	}
	return &Recorder{
		file:    f,
		encoder: newEncoder(f),
		logger:  slog.Default().With("faultlog", path),
	}, nil
}

// Record writes one entry. Writes after Close are dropped.
func (r *Recorder) Record(e Entry) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.closed {
		return nil
	}
	if err := r.encoder.Encode(e); err != nil {
		return fmt.Errorf("faultlog: could not encode entry: %w", err)
	}
	return nil
}

// ReportFault records f. Encoding errors are logged since the cadence loop
// that reports faults cannot act on them.
func (r *Recorder) ReportFault(f monitor.Fault) {
	if err := r.Record(FromFault(f)); err != nil {
		r.logger.Error("could not record fault", "error", err)
	}
}

// Close is idempotent.
func (r *Recorder) Close() error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// Truncate empties the log at path.
func Truncate(path string) error {
	if err := os.Truncate(path, 0); err != nil {
		return fmt.Errorf("faultlog: could not truncate %s: %w", path, err)
	}
	return nil
}
