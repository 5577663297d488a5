package monitor

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"golang.org/x/exp/constraints"
)

var (
	ErrInvalidThreshold = errors.New("monitor: change threshold must be a non-negative number")
	ErrMissingDistance  = errors.New("monitor: threshold filter needs a distance function")
	ErrMissingPredicate = errors.New("monitor: predicate filter needs a predicate")
)

// Number is any numeric sample type AbsDiff can measure.
type Number interface {
	constraints.Integer | constraints.Float
}

// Distance measures how far apart two values are, in the unit the
// threshold is expressed in.
type Distance[T any] func(a, b T) float64

// Predicate decides whether new is worth publishing given the last
// published sample.
type Predicate[T any] func(old, new Sample[T]) bool

// AbsDiff is the default distance for numeric samples.
func AbsDiff[T Number](a, b T) float64 {
	return math.Abs(float64(a) - float64(b))
}

// Changed publishes whenever the value differs from the last published one.
func Changed[T comparable](old, new Sample[T]) bool {
	return old.Value != new.Value
}

// ChangeFilter holds the last published sample and decides which new
// samples become ChangeRecords. Evaluate is called by a single cadence loop;
// the mutex only guards LastPublished readers.
type ChangeFilter[T any] struct {
	mx        sync.Mutex
	threshold float64
	distance  Distance[T]
	predicate Predicate[T]
	last      *Sample[T]
}

// NewThresholdFilter publishes a sample when distance(last, new) is at
// least threshold. A zero threshold publishes every sample.
func NewThresholdFilter[T any](threshold float64, distance Distance[T]) (*ChangeFilter[T], error) {
	if threshold < 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	if distance == nil && threshold > 0 {
		return nil, ErrMissingDistance
	}
	return &ChangeFilter[T]{threshold: threshold, distance: distance}, nil
}

// NewAbsThresholdFilter is NewThresholdFilter with AbsDiff as the distance.
func NewAbsThresholdFilter[T Number](threshold float64) (*ChangeFilter[T], error) {
	return NewThresholdFilter[T](threshold, AbsDiff[T])
}

// NewPredicateFilter replaces the threshold test with a custom predicate.
// The first sample after a reset is published regardless of it.
func NewPredicateFilter[T any](predicate Predicate[T]) (*ChangeFilter[T], error) {
	if predicate == nil {
		return nil, ErrMissingPredicate
	}
	return &ChangeFilter[T]{predicate: predicate}, nil
}

// PublishAll returns a filter that lets every sample through.
func PublishAll[T any]() *ChangeFilter[T] {
	return &ChangeFilter[T]{}
}

// Evaluate compares s to the last published sample. When s is published the
// returned record carries the previous baseline as Old and s becomes the
// new baseline.
func (f *ChangeFilter[T]) Evaluate(s Sample[T]) (ChangeRecord[T], bool) {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.last != nil && !f.accept(*f.last, s) {
		return ChangeRecord[T]{}, false
	}
	rec := ChangeRecord[T]{Old: f.last, New: s}
	next := s
	f.last = &next
	return rec, true
}

func (f *ChangeFilter[T]) accept(old, new Sample[T]) bool {
	if f.predicate != nil {
		return f.predicate(old, new)
	}
	if f.threshold == 0 {
		return true
	}
	return f.distance(old.Value, new.Value) >= f.threshold
}

// Reset forgets the baseline so the next sample is published as initial.
func (f *ChangeFilter[T]) Reset() {
	f.mx.Lock()
	f.last = nil
	f.mx.Unlock()
}

// LastPublished returns the current baseline.
func (f *ChangeFilter[T]) LastPublished() (Sample[T], bool) {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.last == nil {
		return Sample[T]{}, false
	}
	return *f.last, true
}

// Threshold returns the configured threshold, zero for predicate filters.
func (f *ChangeFilter[T]) Threshold() float64 {
	return f.threshold
}
