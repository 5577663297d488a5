package monitor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/sensorwatch"
)

// MockSource is a testify mock of a sample source that tracks overlapping
// acquisitions and the start time of each call.
type MockSource struct {
	mock.Mock
	concurrentOps int64
	maxConcurrent int64
	mu            sync.Mutex
	starts        []time.Time
}

func (m *MockSource) Acquire(ctx context.Context) (float64, error) {
	m.mu.Lock()
	concurrent := atomic.AddInt64(&m.concurrentOps, 1)
	if concurrent > atomic.LoadInt64(&m.maxConcurrent) {
		atomic.StoreInt64(&m.maxConcurrent, concurrent)
	}
	m.starts = append(m.starts, time.Now())
	m.mu.Unlock()

	args := m.Called(ctx)

	atomic.AddInt64(&m.concurrentOps, -1)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockSource) startTimes() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.starts...)
}

type step[T any] struct {
	value T
	err   error
}

func ok[T any](v T) step[T] {
	return step[T]{value: v}
}

func fail[T any](err error) step[T] {
	return step[T]{err: err}
}

// scriptedSource replays steps and then keeps returning the last good value.
type scriptedSource[T any] struct {
	mu    sync.Mutex
	steps []step[T]
	last  T
	calls int
}

func newScriptedSource[T any](steps ...step[T]) *scriptedSource[T] {
	return &scriptedSource[T]{steps: steps}
}

func (s *scriptedSource[T]) Acquire(ctx context.Context) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.steps) == 0 {
		return s.last, nil
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	if st.err == nil {
		s.last = st.value
	}
	return st.value, st.err
}

func (s *scriptedSource[T]) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func stopAndWait[T any](t *testing.T, m *Monitor[T]) {
	t.Helper()
	m.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))
	require.Equal(t, Idle, m.State())
}

func collect[T any](m *Monitor[T]) (*Subscription, func() []ChangeRecord[T]) {
	var mu sync.Mutex
	var records []ChangeRecord[T]
	sub := m.Subscribe(func(rec ChangeRecord[T]) error {
		mu.Lock()
		records = append(records, rec)
		mu.Unlock()
		return nil
	})
	return sub, func() []ChangeRecord[T] {
		mu.Lock()
		defer mu.Unlock()
		return append([]ChangeRecord[T](nil), records...)
	}
}

func TestMonitor_ThresholdScenario(t *testing.T) {
	src := newScriptedSource(ok(10.0), ok(10.5), ok(13.0), ok(13.1), ok(20.0))
	filter, err := NewAbsThresholdFilter[float64](2.0)
	require.NoError(t, err)
	m, err := New[float64](src, filter, WithName("scenario"))
	require.NoError(t, err)
	_, records := collect(m)

	require.NoError(t, m.Start(20*time.Millisecond))
	require.Eventually(t, func() bool { return src.Calls() >= 6 }, 2*time.Second, 5*time.Millisecond)
	stopAndWait(t, m)

	got := records()
	require.Len(t, got, 3)
	assert.Nil(t, got[0].Old)
	assert.Equal(t, 10.0, got[0].New.Value)
	assert.Equal(t, 10.0, got[1].Old.Value)
	assert.Equal(t, 13.0, got[1].New.Value)
	assert.Equal(t, 13.0, got[2].Old.Value)
	assert.Equal(t, 20.0, got[2].New.Value)
	for _, rec := range got[1:] {
		assert.True(t, rec.New.Timestamp.After(rec.Old.Timestamp))
	}
	last, ok := m.LastPublished()
	assert.True(t, ok)
	assert.Equal(t, 20.0, last.Value)
}

func TestMonitor_ConsecutiveFailures(t *testing.T) {
	errBus := errors.New("bus nack")
	src := newScriptedSource(
		fail[float64](errBus), fail[float64](errBus), fail[float64](errBus), fail[float64](errBus),
		ok(1.0),
		fail[float64](errBus), fail[float64](errBus),
	)
	faults := NewChannelReporter(64)
	m, err := New[float64](src, nil, WithName("flaky"), WithFaultReporter(faults))
	require.NoError(t, err)
	_, records := collect(m)

	require.NoError(t, m.Start(5*time.Millisecond))
	require.Eventually(t, func() bool { return src.Calls() >= 9 }, 2*time.Second, 5*time.Millisecond)
	stopAndWait(t, m)

	var transient, persistent []Fault
	for _, f := range drainFaults(faults) {
		switch f.Kind {
		case FaultTransient:
			transient = append(transient, f)
		case FaultPersistent:
			persistent = append(persistent, f)
		}
	}
	require.Len(t, transient, 6)
	assert.Equal(t, []int{1, 2, 3, 4, 1, 2}, []int{
		transient[0].Consecutive, transient[1].Consecutive, transient[2].Consecutive,
		transient[3].Consecutive, transient[4].Consecutive, transient[5].Consecutive,
	})
	require.Len(t, persistent, 2)
	assert.Equal(t, 3, persistent[0].Consecutive)
	assert.Equal(t, 4, persistent[1].Consecutive)
	assert.ErrorIs(t, persistent[0].Err, errBus)
	assert.Equal(t, "flaky", persistent[0].Sensor)
	assert.Zero(t, faults.Dropped())

	// the cadence survived every failure
	assert.NotEmpty(t, records())
	assert.Equal(t, 1.0, records()[0].New.Value)
}

func TestMonitor_StartIsIdempotent(t *testing.T) {
	src := new(MockSource)
	src.On("Acquire", mock.Anything).Return(21.5, nil)
	m, err := New[float64](src, nil)
	require.NoError(t, err)

	interval := 40 * time.Millisecond
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Start(interval))
		}()
	}
	wg.Wait()
	assert.Equal(t, Running, m.State())
	assert.NoError(t, m.Start(time.Millisecond))

	time.Sleep(220 * time.Millisecond)
	stopAndWait(t, m)

	starts := src.startTimes()
	assert.GreaterOrEqual(t, len(starts), 3)
	assert.LessOrEqual(t, len(starts), 7)
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), interval-5*time.Millisecond, "acquisitions %d and %d too close", i-1, i)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&src.maxConcurrent))
}

func TestMonitor_StopStartRoundTrip(t *testing.T) {
	var value atomic.Int64
	var calls atomic.Int64
	src := sensorwatch.SourceFunc[int64](func(ctx context.Context) (int64, error) {
		calls.Add(1)
		return value.Load(), nil
	})
	filter, err := NewAbsThresholdFilter[int64](5)
	require.NoError(t, err)
	m, err := New[int64](src, filter)
	require.NoError(t, err)
	_, records := collect(m)

	value.Store(100)
	require.NoError(t, m.Start(10*time.Millisecond))
	require.Eventually(t, func() bool { return len(records()) == 1 }, time.Second, time.Millisecond)
	stopAndWait(t, m)

	idleCalls := calls.Load()
	value.Store(500)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, idleCalls, calls.Load(), "source polled while idle")
	assert.Len(t, records(), 1)

	value.Store(101)
	require.NoError(t, m.Start(10*time.Millisecond))
	require.Eventually(t, func() bool { return len(records()) == 2 }, time.Second, time.Millisecond)
	stopAndWait(t, m)

	got := records()
	require.Len(t, got, 2)
	assert.True(t, got[1].Initial(), "restart must publish a fresh initial value")
	assert.Equal(t, int64(101), got[1].New.Value)
	for _, rec := range got {
		assert.NotEqual(t, int64(500), rec.New.Value)
	}
}

func TestMonitor_StopIsNotPreemptive(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64
	src := sensorwatch.SourceFunc[int](func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		return 42, nil
	})
	m, err := New[int](src, nil)
	require.NoError(t, err)
	_, records := collect(m)

	require.NoError(t, m.Start(time.Hour))
	<-entered
	m.Stop()
	assert.Equal(t, Stopping, m.State())
	m.Stop()
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))
	assert.Equal(t, Idle, m.State())
	require.Len(t, records(), 1)
	assert.Equal(t, 42, records()[0].New.Value)
	assert.Equal(t, int64(1), calls.Load())
}

func TestMonitor_StartWhileStoppingRevivesLoop(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64
	var inFlight, overlap atomic.Int64
	src := sensorwatch.SourceFunc[int64](func(ctx context.Context) (int64, error) {
		if inFlight.Add(1) > 1 {
			overlap.Add(1)
		}
		defer inFlight.Add(-1)
		n := calls.Add(1)
		if n == 1 {
			close(entered)
			<-release
		}
		return n, nil
	})
	m, err := New[int64](src, nil)
	require.NoError(t, err)
	_, records := collect(m)

	require.NoError(t, m.Start(5*time.Millisecond))
	<-entered
	m.Stop()
	require.NoError(t, m.Start(5*time.Millisecond))
	assert.Equal(t, Running, m.State())
	close(release)

	require.Eventually(t, func() bool { return calls.Load() >= 4 }, time.Second, time.Millisecond)
	stopAndWait(t, m)

	got := records()
	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, int64(1), got[0].New.Value, "in-flight sample is still published")
	assert.True(t, got[1].Initial(), "revived cadence starts fresh")
	assert.Zero(t, overlap.Load())
}

func TestMonitor_StopFromObserver(t *testing.T) {
	src := newScriptedSource(ok(1), ok(2), ok(3))
	m, err := New[int](src, nil)
	require.NoError(t, err)
	m.Subscribe(func(rec ChangeRecord[int]) error {
		m.Stop()
		return nil
	})
	require.NoError(t, m.Start(time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))
	assert.Equal(t, 1, src.Calls())
}

type pair struct {
	A, B int
}

// twoStepSource builds each sample in two steps and counts any overlap
// between callers.
type twoStepSource struct {
	busy atomic.Int32
	torn atomic.Int64
	seq  int
}

func (s *twoStepSource) Acquire(ctx context.Context) (pair, error) {
	if !s.busy.CompareAndSwap(0, 1) {
		s.torn.Add(1)
	}
	s.seq++
	p := pair{A: s.seq}
	runtime.Gosched()
	p.B = s.seq
	s.busy.Store(0)
	return p, nil
}

func TestMonitor_ReadNowNeverInterleavesWithCadence(t *testing.T) {
	src := &twoStepSource{}
	m, err := New[pair](src, nil)
	require.NoError(t, err)
	var tornPublished atomic.Int64
	m.Subscribe(func(rec ChangeRecord[pair]) error {
		if rec.New.Value.A != rec.New.Value.B {
			tornPublished.Add(1)
		}
		return nil
	})
	require.NoError(t, m.Start(time.Microsecond))

	const workers = 8
	const trials = 10_000
	var tornRead atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < trials/workers; i++ {
				s, err := m.ReadNow(context.Background())
				if err != nil || s.Value.A != s.Value.B {
					tornRead.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	stopAndWait(t, m)

	assert.Zero(t, src.torn.Load())
	assert.Zero(t, tornRead.Load())
	assert.Zero(t, tornPublished.Load())
}

func TestMonitor_ReadNowDoesNotPublish(t *testing.T) {
	var value atomic.Int64
	value.Store(10)
	src := sensorwatch.SourceFunc[int64](func(ctx context.Context) (int64, error) {
		return value.Load(), nil
	})
	m, err := New[int64](src, nil)
	require.NoError(t, err)
	_, records := collect(m)

	s, err := m.ReadNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), s.Value)
	_, ok := m.LastPublished()
	assert.False(t, ok)
	assert.Empty(t, records())

	require.NoError(t, m.Start(time.Hour))
	require.Eventually(t, func() bool { return len(records()) == 1 }, time.Second, time.Millisecond)
	for i := int64(1); i <= 5; i++ {
		value.Store(10 + i*100)
		s, err := m.ReadNow(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 10+i*100, s.Value)
	}
	last, ok := m.LastPublished()
	assert.True(t, ok)
	assert.Equal(t, int64(10), last.Value)
	assert.Len(t, records(), 1)
	stopAndWait(t, m)
}

func TestMonitor_ReadNowSurfacesErrors(t *testing.T) {
	errBus := errors.New("arbitration lost")
	faults := NewChannelReporter(4)
	m, err := New[int](sensorwatch.SourceFunc[int](func(ctx context.Context) (int, error) {
		return 0, errBus
	}), nil, WithName("lux"), WithFaultReporter(faults))
	require.NoError(t, err)

	_, err = m.ReadNow(context.Background())
	assert.ErrorIs(t, err, errBus)
	assert.Contains(t, err.Error(), "lux")
	assert.Empty(t, drainFaults(faults), "direct reads are not reported as faults")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.ReadNow(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	panicking, err := New[int](sensorwatch.SourceFunc[int](func(ctx context.Context) (int, error) {
		panic("driver bug")
	}), nil)
	require.NoError(t, err)
	_, err = panicking.ReadNow(context.Background())
	assert.ErrorIs(t, err, ErrSourcePanic)
}

func TestMonitor_TimestampsStrictlyIncrease(t *testing.T) {
	frozen := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m, err := New[int](sensorwatch.SourceFunc[int](func(ctx context.Context) (int, error) {
		return 1, nil
	}), nil, WithClock(func() time.Time { return frozen }))
	require.NoError(t, err)

	prev := time.Time{}
	for i := 0; i < 5; i++ {
		s, err := m.ReadNow(context.Background())
		require.NoError(t, err)
		assert.True(t, s.Timestamp.After(prev))
		prev = s.Timestamp
	}
}

func TestMonitor_ObserverFailureKeepsCadence(t *testing.T) {
	src := newScriptedSource(ok(1), ok(2), ok(3), ok(4))
	faults := NewChannelReporter(64)
	m, err := New[int](src, nil, WithFaultReporter(faults))
	require.NoError(t, err)
	bad := m.Subscribe(func(rec ChangeRecord[int]) error { panic("bad observer") })
	_, records := collect(m)
	assert.Equal(t, 2, m.Subscribers())

	require.NoError(t, m.Start(2*time.Millisecond))
	require.Eventually(t, func() bool { return len(records()) >= 4 }, time.Second, time.Millisecond)
	stopAndWait(t, m)

	reported := drainFaults(faults)
	require.NotEmpty(t, reported)
	for _, f := range reported {
		assert.Equal(t, FaultObserver, f.Kind)
		assert.Equal(t, bad.ID(), f.SubscriptionID)
	}
	m.Unsubscribe(bad)
	assert.Equal(t, 1, m.Subscribers())
}

func TestMonitor_ReporterPanicKeepsCadence(t *testing.T) {
	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	var calls atomic.Int32
	reporter := FaultReporterFunc(func(Fault) {
		calls.Add(1)
		panic("reporter bug")
	})
	src := newScriptedSource(fail[int](errors.New("nack")), ok(1), ok(2))
	m, err := New[int](src, nil, WithFaultReporter(reporter), WithLogger(logger))
	require.NoError(t, err)
	m.Subscribe(func(rec ChangeRecord[int]) error { return errors.New("observer refused") })
	_, records := collect(m)

	require.NoError(t, m.Start(time.Millisecond))
	require.Eventually(t, func() bool { return len(records()) >= 2 }, time.Second, time.Millisecond)
	stopAndWait(t, m)

	got := records()
	assert.Equal(t, 1, got[0].New.Value)
	assert.Equal(t, 2, got[1].New.Value)
	assert.GreaterOrEqual(t, calls.Load(), int32(2), "transient and observer faults reach the reporter")
	assert.Contains(t, logs.String(), "fault reporter panic")
}

// syncBuffer is a bytes.Buffer safe for the cadence goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMonitor_PredicatePanicIsReported(t *testing.T) {
	filter, err := NewPredicateFilter[int](func(old, new Sample[int]) bool { panic("predicate bug") })
	require.NoError(t, err)
	faults := NewChannelReporter(64)
	src := newScriptedSource(ok(1), ok(2))
	m, err := New[int](src, filter, WithFaultReporter(faults))
	require.NoError(t, err)
	_, records := collect(m)

	require.NoError(t, m.Start(2*time.Millisecond))
	require.Eventually(t, func() bool { return src.Calls() >= 3 }, time.Second, time.Millisecond)
	stopAndWait(t, m)

	assert.Len(t, records(), 1, "only the initial value bypasses the predicate")
	reported := drainFaults(faults)
	require.NotEmpty(t, reported)
	assert.Equal(t, FaultFilter, reported[0].Kind)
}

func TestMonitor_InvalidConfiguration(t *testing.T) {
	src := newScriptedSource(ok(1.0))
	m, err := New[float64](src, nil)
	require.NoError(t, err)

	for _, interval := range []time.Duration{0, -time.Second} {
		err := m.Start(interval)
		assert.ErrorIs(t, err, ErrInvalidInterval)
		assert.Equal(t, Idle, m.State())
	}
	assert.Zero(t, src.Calls())

	_, err = New[float64](src, nil, WithFaultThreshold(0))
	assert.ErrorIs(t, err, ErrInvalidFaultThreshold)
	_, err = New[float64](nil, nil)
	assert.ErrorIs(t, err, ErrNilSource)

	// stopping an idle monitor is a no-op
	m.Stop()
	assert.Equal(t, Idle, m.State())
	assert.NoError(t, m.Wait(context.Background()))
}

func TestMonitor_Run(t *testing.T) {
	src := newScriptedSource(ok(1), ok(2))
	m, err := New[int](src, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, time.Millisecond) }()
	require.Eventually(t, func() bool { return src.Calls() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return after cancel")
	}
	assert.Equal(t, Idle, m.State())

	assert.ErrorIs(t, m.Run(context.Background(), 0), ErrInvalidInterval)
}
