package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/sensorwatch"
)

var ErrNilSource = errors.New("monitor: nil sample source")

// Monitor watches one sensor instance. It composes the cadence loop, the
// change filter, the subscriber hub and the on-demand reader around a
// single acquisition lock.
type Monitor[T any] struct {
	name    string
	sampler *sampler[T]
	filter  *ChangeFilter[T]
	hub     *Hub[T]
	reader  *Reader[T]
	faults  FaultReporter
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an idle monitor. A nil filter publishes every sample.
func New[T any](source sensorwatch.Source[T], filter *ChangeFilter[T], opts ...Opt) (*Monitor[T], error) {
	if source == nil {
		return nil, ErrNilSource
	}
	o := Opts{
		Name:           "sensor",
		FaultThreshold: DefaultFaultThreshold,
		Clock:          time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	logger := o.Logger.With("sensor", o.Name)
	if o.Faults == nil {
		o.Faults = NewLogReporter(o.Logger)
	}
	if filter == nil {
		filter = PublishAll[T]()
	}

	acq := &acquirer[T]{source: source, now: o.Clock}
	m := &Monitor[T]{
		name:   o.Name,
		filter: filter,
		hub:    NewHub[T](o.Name, o.Faults, logger),
		reader: &Reader[T]{sensor: o.Name, acq: acq},
		faults: o.Faults,
		logger: logger,
		now:    o.Clock,
	}
	m.hub.now = o.Clock
	m.sampler = &sampler[T]{
		wake:           make(chan struct{}, 1),
		acq:            acq,
		reset:          filter.Reset,
		forward:        m.publish,
		sensor:         o.Name,
		faultThreshold: o.FaultThreshold,
		faults:         o.Faults,
		logger:         logger,
		now:            o.Clock,
	}
	return m, nil
}

func (m *Monitor[T]) Name() string {
	return m.name
}

// Start begins sampling every interval. The first acquisition happens right
// away. Start on a running monitor is a no-op and keeps the current
// interval.
func (m *Monitor[T]) Start(interval time.Duration) error {
	if err := m.sampler.start(interval); err != nil {
		return fmt.Errorf("%s: %w", m.name, err)
	}
	return nil
}

// Stop requests the cadence to end. It does not wait: an acquisition in
// flight completes and is still published. Use Wait to block until the loop
// has exited.
func (m *Monitor[T]) Stop() {
	m.sampler.stop()
}

// Wait blocks until the cadence loop exits or ctx is done.
func (m *Monitor[T]) Wait(ctx context.Context) error {
	return m.sampler.wait(ctx)
}

// Run starts sampling and stops when ctx is done, returning once the loop
// has exited.
func (m *Monitor[T]) Run(ctx context.Context, interval time.Duration) error {
	if err := m.Start(interval); err != nil {
		return err
	}
	<-ctx.Done()
	m.Stop()
	return m.Wait(context.Background())
}

func (m *Monitor[T]) State() State {
	return m.sampler.currentState()
}

// Subscribe registers observer for change records. Nil filters are ignored.
// It panics with ErrNilObserver when observer is nil.
func (m *Monitor[T]) Subscribe(observer Observer[T], filters ...RecordFilter[T]) *Subscription {
	return m.hub.Subscribe(observer, filters...)
}

func (m *Monitor[T]) Unsubscribe(sub *Subscription) {
	m.hub.Unsubscribe(sub)
}

// Subscribers returns the number of live subscriptions.
func (m *Monitor[T]) Subscribers() int {
	return m.hub.Len()
}

// ReadNow acquires a fresh sample outside the cadence. It neither updates
// the published baseline nor notifies subscribers.
func (m *Monitor[T]) ReadNow(ctx context.Context) (Sample[T], error) {
	return m.reader.ReadNow(ctx)
}

// LastPublished returns the most recently published sample since the last
// fresh start.
func (m *Monitor[T]) LastPublished() (Sample[T], bool) {
	return m.filter.LastPublished()
}

func (m *Monitor[T]) publish(s Sample[T]) {
	rec, ok := m.evaluate(s)
	if !ok {
		return
	}
	m.hub.Publish(rec)
}

func (m *Monitor[T]) evaluate(s Sample[T]) (rec ChangeRecord[T], ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			report(m.faults, m.logger, Fault{
				Sensor:    m.name,
				Kind:      FaultFilter,
				Err:       fmt.Errorf("change predicate panic: %v", r),
				Timestamp: m.now(),
			})
		}
	}()
	return m.filter.Evaluate(s)
}
