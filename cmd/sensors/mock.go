package main

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/mklimuk/sensorwatch"
)

// walk simulates a slowly drifting reading around start.
func walk(start, step float32) func(ctx context.Context) (float32, error) {
	var mx sync.Mutex
	v := start
	return func(ctx context.Context) (float32, error) {
		mx.Lock()
		defer mx.Unlock()
		v += (rand.Float32()*2 - 1) * step
		return v, nil
	}
}

// toggle switches between a and b at random.
func toggle[T any](a, b T) sensorwatch.Source[T] {
	return sensorwatch.SourceFunc[T](func(ctx context.Context) (T, error) {
		if rand.IntN(4) == 0 {
			return b, nil
		}
		return a, nil
	})
}
