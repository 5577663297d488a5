package monitor

import (
	"context"
	"fmt"
)

// Reader performs on-demand acquisitions. It shares the acquisition lock
// with the cadence loop and never touches the filter or the hub.
type Reader[T any] struct {
	sensor string
	acq    *acquirer[T]
}

// ReadNow acquires one sample and returns it, or the source error.
func (r *Reader[T]) ReadNow(ctx context.Context) (Sample[T], error) {
	if err := ctx.Err(); err != nil {
		return Sample[T]{}, err
	}
	s, err := r.acq.acquire(ctx)
	if err != nil {
		return Sample[T]{}, fmt.Errorf("%s: read now: %w", r.sensor, err)
	}
	return s, nil
}
