package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrInvalidInterval = errors.New("monitor: sampling interval must be positive")

// sampler drives the cadence loop. At most one loop goroutine exists per
// sampler: Start while Stopping revives the running loop instead of spawning
// a second one.
type sampler[T any] struct {
	mx       sync.Mutex
	state    State
	epoch    uint64
	interval time.Duration
	wake     chan struct{}
	done     chan struct{}

	acq     *acquirer[T]
	reset   func()
	forward func(Sample[T])

	sensor         string
	faultThreshold int
	faults         FaultReporter
	logger         *slog.Logger
	now            func() time.Time
}

func (s *sampler[T]) start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	switch s.state {
	case Running:
		return nil
	case Stopping:
		s.state = Running
		s.epoch++
		s.interval = interval
		s.poke()
		s.logger.Debug("sampling resumed", "interval", interval)
		return nil
	}
	s.state = Running
	s.epoch++
	s.interval = interval
	s.done = make(chan struct{})
	go s.run(s.done)
	s.logger.Debug("sampling started", "interval", interval)
	return nil
}

func (s *sampler[T]) stop() {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.state != Running {
		return
	}
	s.state = Stopping
	s.poke()
	s.logger.Debug("sampling stopping")
}

func (s *sampler[T]) currentState() State {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.state
}

// wait blocks until the loop goroutine has exited.
func (s *sampler[T]) wait(ctx context.Context) error {
	s.mx.Lock()
	done := s.done
	s.mx.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *sampler[T]) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *sampler[T]) run(done chan struct{}) {
	defer close(done)
	var (
		epoch    uint64
		interval time.Duration
		due      time.Time
		failures int
	)
	for {
		s.mx.Lock()
		if s.state != Running {
			s.state = Idle
			s.mx.Unlock()
			s.logger.Debug("sampling stopped")
			return
		}
		fresh := s.epoch != epoch
		if fresh {
			epoch = s.epoch
			interval = s.interval
		}
		s.mx.Unlock()

		if fresh {
			due = time.Time{}
			failures = 0
			s.reset()
		}
		if wait := time.Until(due); !due.IsZero() && wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-s.wake:
				timer.Stop()
			}
			continue
		}

		// cadence is measured start to start; a slow acquisition makes the
		// next one due immediately
		due = time.Now().Add(interval)
		sample, err := s.acq.acquire(context.Background())
		if err != nil {
			failures++
			s.fail(err, failures)
			continue
		}
		failures = 0
		s.forward(sample)
	}
}

func (s *sampler[T]) fail(err error, consecutive int) {
	ts := s.now()
	report(s.faults, s.logger, Fault{
		Sensor:      s.sensor,
		Kind:        FaultTransient,
		Err:         err,
		Consecutive: consecutive,
		Timestamp:   ts,
	})
	if consecutive >= s.faultThreshold {
		report(s.faults, s.logger, Fault{
			Sensor:      s.sensor,
			Kind:        FaultPersistent,
			Err:         err,
			Consecutive: consecutive,
			Timestamp:   ts,
		})
	}
}
