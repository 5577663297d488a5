package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// FaultKind classifies a non-fatal failure reported by a Monitor.
type FaultKind int

const (
	// FaultTransient is a single failed acquisition in the cadence loop.
	FaultTransient FaultKind = iota + 1
	// FaultPersistent is reported for every failure once the number of
	// consecutive failures reaches the fault threshold.
	FaultPersistent
	// FaultObserver is an error returned, or a panic raised, by a subscriber.
	FaultObserver
	// FaultFilter is a panic raised by a custom change predicate or a
	// per-subscriber record filter.
	FaultFilter
)

func (k FaultKind) String() string {
	switch k {
	case FaultTransient:
		return "transient"
	case FaultPersistent:
		return "persistent"
	case FaultObserver:
		return "observer"
	case FaultFilter:
		return "filter"
	default:
		return "unknown"
	}
}

// Fault is delivered to the FaultReporter of a Monitor. It never stops the
// cadence.
type Fault struct {
	Sensor         string
	Kind           FaultKind
	Err            error
	Consecutive    int
	SubscriptionID string
	Timestamp      time.Time
}

func (f Fault) String() string {
	switch f.Kind {
	case FaultTransient, FaultPersistent:
		return fmt.Sprintf("%s %s fault (%d consecutive): %v", f.Sensor, f.Kind, f.Consecutive, f.Err)
	case FaultObserver, FaultFilter:
		return fmt.Sprintf("%s %s fault (subscription %s): %v", f.Sensor, f.Kind, f.SubscriptionID, f.Err)
	default:
		return fmt.Sprintf("%s fault: %v", f.Sensor, f.Err)
	}
}

// FaultReporter receives faults. ReportFault is called from the cadence
// loop and must not block for long.
type FaultReporter interface {
	ReportFault(f Fault)
}

// FaultReporterFunc adapts a function to FaultReporter.
type FaultReporterFunc func(f Fault)

func (fn FaultReporterFunc) ReportFault(f Fault) {
	fn(f)
}

// ChannelReporter forwards faults to a buffered channel. Faults that do not
// fit are dropped and counted.
type ChannelReporter struct {
	ch      chan Fault
	dropped atomic.Uint64
}

func NewChannelReporter(size int) *ChannelReporter {
	return &ChannelReporter{ch: make(chan Fault, size)}
}

func (r *ChannelReporter) ReportFault(f Fault) {
	select {
	case r.ch <- f:
	default:
		r.dropped.Add(1)
	}
}

// C returns the receive side of the fault channel.
func (r *ChannelReporter) C() <-chan Fault {
	return r.ch
}

// Dropped returns how many faults did not fit in the channel.
func (r *ChannelReporter) Dropped() uint64 {
	return r.dropped.Load()
}

// LogReporter writes faults to a structured logger.
type LogReporter struct {
	logger *slog.Logger
}

func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger}
}

func (r *LogReporter) ReportFault(f Fault) {
	level := slog.LevelWarn
	if f.Kind == FaultPersistent {
		level = slog.LevelError
	}
	attrs := []slog.Attr{
		slog.String("sensor", f.Sensor),
		slog.String("kind", f.Kind.String()),
		slog.Any("error", f.Err),
	}
	if f.Consecutive > 0 {
		attrs = append(attrs, slog.Int("consecutive", f.Consecutive))
	}
	if f.SubscriptionID != "" {
		attrs = append(attrs, slog.String("subscription", f.SubscriptionID))
	}
	r.logger.LogAttrs(context.Background(), level, "sensor fault", attrs...)
}

// report delivers f to r. A panicking reporter is logged and never
// propagates into the cadence loop.
func report(r FaultReporter, logger *slog.Logger, f Fault) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("fault reporter panic", "kind", f.Kind.String(), "fault", f.Err, "panic", p)
		}
	}()
	r.ReportFault(f)
}

type multiReporter []FaultReporter

func (m multiReporter) ReportFault(f Fault) {
	for _, r := range m {
		r.ReportFault(f)
	}
}

// MultiReporter fans a fault out to every non-nil reporter in order.
func MultiReporter(reporters ...FaultReporter) FaultReporter {
	var m multiReporter
	for _, r := range reporters {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}
