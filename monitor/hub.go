package monitor

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Observer receives published records. A returned error is reported as a
// FaultObserver and does not affect other subscribers.
type Observer[T any] func(rec ChangeRecord[T]) error

// RecordFilter narrows the records a single subscriber receives.
type RecordFilter[T any] func(rec ChangeRecord[T]) bool

// Subscription is the handle returned by Subscribe. Unsubscribe is safe to
// call more than once and from inside the observer itself.
type Subscription struct {
	id     string
	active atomic.Bool
	remove func(id string)
}

func (s *Subscription) ID() string {
	return s.id
}

// Active reports whether the subscription still receives records.
func (s *Subscription) Active() bool {
	return s.active.Load()
}

// Unsubscribe stops delivery. A dispatch already running for this
// subscription is allowed to finish.
func (s *Subscription) Unsubscribe() {
	if s.active.CompareAndSwap(true, false) {
		s.remove(s.id)
	}
}

type subscriber[T any] struct {
	seq      uint64
	sub      *Subscription
	observer Observer[T]
	filters  []RecordFilter[T]
}

// Hub fans published records out to its subscribers.
type Hub[T any] struct {
	mx      sync.RWMutex
	entries map[string]*subscriber[T]
	seq     uint64

	sensor string
	faults FaultReporter
	logger *slog.Logger
	now    func() time.Time
}

func NewHub[T any](sensor string, faults FaultReporter, logger *slog.Logger) *Hub[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if faults == nil {
		faults = NewLogReporter(logger)
	}
	return &Hub[T]{
		entries: make(map[string]*subscriber[T]),
		sensor:  sensor,
		faults:  faults,
		logger:  logger,
		now:     time.Now,
	}
}

// ErrNilObserver is the panic value raised by Subscribe when given a nil
// observer.
var ErrNilObserver = errors.New("monitor: nil observer")

// Subscribe registers observer. All filters must accept a record for it to
// be delivered. A nil observer is a programming error and panics with
// ErrNilObserver.
func (h *Hub[T]) Subscribe(observer Observer[T], filters ...RecordFilter[T]) *Subscription {
	if observer == nil {
		panic(ErrNilObserver)
	}
	sub := &Subscription{id: uuid.New().String(), remove: h.remove}
	sub.active.Store(true)
	h.mx.Lock()
	h.seq++
	h.entries[sub.id] = &subscriber[T]{
		seq:      h.seq,
		sub:      sub,
		observer: observer,
		filters:  slices.DeleteFunc(slices.Clone(filters), func(f RecordFilter[T]) bool { return f == nil }),
	}
	h.mx.Unlock()
	h.logger.Debug("subscribed", "subscription", sub.id)
	return sub
}

// Unsubscribe is equivalent to sub.Unsubscribe.
func (h *Hub[T]) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.Unsubscribe()
}

func (h *Hub[T]) remove(id string) {
	h.mx.Lock()
	delete(h.entries, id)
	h.mx.Unlock()
	h.logger.Debug("unsubscribed", "subscription", id)
}

// Len returns the number of live subscriptions.
func (h *Hub[T]) Len() int {
	h.mx.RLock()
	defer h.mx.RUnlock()
	return len(h.entries)
}

// Publish delivers rec to every live subscriber whose filters accept it,
// in subscription order. It returns after the last observer returns.
func (h *Hub[T]) Publish(rec ChangeRecord[T]) {
	h.mx.RLock()
	snapshot := make([]*subscriber[T], 0, len(h.entries))
	for _, e := range h.entries {
		snapshot = append(snapshot, e)
	}
	h.mx.RUnlock()
	slices.SortFunc(snapshot, func(a, b *subscriber[T]) int {
		return cmp.Compare(a.seq, b.seq)
	})

	for _, e := range snapshot {
		// a subscriber removed by an earlier observer in this round is skipped
		if !e.sub.Active() {
			continue
		}
		if !h.accepts(e, rec) {
			continue
		}
		if err := h.dispatch(e, rec); err != nil {
			report(h.faults, h.logger, Fault{
				Sensor:         h.sensor,
				Kind:           FaultObserver,
				Err:            err,
				SubscriptionID: e.sub.id,
				Timestamp:      h.now(),
			})
		}
	}
}

func (h *Hub[T]) accepts(e *subscriber[T], rec ChangeRecord[T]) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			report(h.faults, h.logger, Fault{
				Sensor:         h.sensor,
				Kind:           FaultFilter,
				Err:            fmt.Errorf("record filter panic: %v", r),
				SubscriptionID: e.sub.id,
				Timestamp:      h.now(),
			})
		}
	}()
	for _, f := range e.filters {
		if !f(rec) {
			return false
		}
	}
	return true
}

var ErrObserverPanic = errors.New("monitor: observer panic")

func (h *Hub[T]) dispatch(e *subscriber[T], rec ChangeRecord[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrObserverPanic, r)
		}
	}()
	return e.observer(rec)
}
