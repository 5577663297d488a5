package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/sensorwatch"
)

var ErrSourcePanic = errors.New("monitor: sample source panic")

// acquirer serializes access to one sample source and stamps every sample
// with a strictly increasing timestamp.
type acquirer[T any] struct {
	mx     sync.Mutex
	source sensorwatch.Source[T]
	now    func() time.Time
	last   time.Time
}

func (a *acquirer[T]) acquire(ctx context.Context) (s Sample[T], err error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSourcePanic, r)
		}
	}()
	v, err := a.source.Acquire(ctx)
	if err != nil {
		return Sample[T]{}, err
	}
	ts := a.now()
	if !ts.After(a.last) {
		ts = a.last.Add(time.Nanosecond)
	}
	a.last = ts
	return Sample[T]{Value: v, Timestamp: ts}, nil
}
