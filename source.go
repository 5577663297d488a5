package sensorwatch

import "context"

// Source produces one raw sample of a physical quantity per call. Acquire
// may block for the duration of a bus transaction; implementations are not
// required to be safe for concurrent use since callers serialize them.
type Source[T any] interface {
	Acquire(ctx context.Context) (T, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc[T any] func(ctx context.Context) (T, error)

func (f SourceFunc[T]) Acquire(ctx context.Context) (T, error) {
	return f(ctx)
}
