package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultFaultThreshold is the number of consecutive acquisition failures
// after which persistent faults are reported.
const DefaultFaultThreshold = 3

var ErrInvalidFaultThreshold = errors.New("monitor: fault threshold must be at least 1")

type Opts struct {
	Name           string
	FaultThreshold int
	Faults         FaultReporter
	Logger         *slog.Logger
	Clock          func() time.Time
}

type Opt func(*Opts)

// WithName labels logs and faults of the monitor.
func WithName(name string) Opt {
	return func(o *Opts) {
		o.Name = name
	}
}

// WithFaultThreshold sets how many consecutive failures make a persistent
// fault.
func WithFaultThreshold(n int) Opt {
	return func(o *Opts) {
		o.FaultThreshold = n
	}
}

// WithFaultReporter replaces the default log reporter. Use MultiReporter to
// keep logging as well.
func WithFaultReporter(r FaultReporter) Opt {
	return func(o *Opts) {
		o.Faults = r
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = logger
	}
}

// WithClock sets the clock used to timestamp samples and faults.
func WithClock(now func() time.Time) Opt {
	return func(o *Opts) {
		o.Clock = now
	}
}

func (o *Opts) validate() error {
	if o.FaultThreshold < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidFaultThreshold, o.FaultThreshold)
	}
	return nil
}
