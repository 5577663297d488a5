package monitor

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplesOf[T any](values ...T) []Sample[T] {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Sample[T], len(values))
	for i, v := range values {
		out[i] = Sample[T]{Value: v, Timestamp: base.Add(time.Duration(i) * 100 * time.Millisecond)}
	}
	return out
}

func TestChangeFilter_Threshold(t *testing.T) {
	f, err := NewAbsThresholdFilter[float64](2.0)
	require.NoError(t, err)

	var published []float64
	var baselines []*Sample[float64]
	for _, s := range samplesOf(10.0, 10.5, 13.0, 13.1, 20.0) {
		rec, ok := f.Evaluate(s)
		if ok {
			published = append(published, rec.New.Value)
			baselines = append(baselines, rec.Old)
		}
	}
	assert.Equal(t, []float64{10.0, 13.0, 20.0}, published)
	require.Len(t, baselines, 3)
	assert.Nil(t, baselines[0])
	assert.Equal(t, 10.0, baselines[1].Value)
	assert.Equal(t, 13.0, baselines[2].Value)

	last, ok := f.LastPublished()
	assert.True(t, ok)
	assert.Equal(t, 20.0, last.Value)
}

func TestChangeFilter_FirstSampleAlwaysPublished(t *testing.T) {
	f, err := NewAbsThresholdFilter[int](1_000_000)
	require.NoError(t, err)
	rec, ok := f.Evaluate(Sample[int]{Value: 3, Timestamp: time.Now()})
	assert.True(t, ok)
	assert.True(t, rec.Initial())

	_, ok = f.Evaluate(Sample[int]{Value: 4, Timestamp: time.Now()})
	assert.False(t, ok)

	f.Reset()
	_, ok = f.LastPublished()
	assert.False(t, ok)
	rec, ok = f.Evaluate(Sample[int]{Value: 4, Timestamp: time.Now()})
	assert.True(t, ok)
	assert.True(t, rec.Initial())
}

func TestChangeFilter_ZeroThresholdPublishesEverything(t *testing.T) {
	f, err := NewAbsThresholdFilter[float64](0)
	require.NoError(t, err)
	count := 0
	for _, s := range samplesOf(1.0, 1.0, 1.0, 2.0) {
		if _, ok := f.Evaluate(s); ok {
			count++
		}
	}
	assert.Equal(t, 4, count)
	assert.Equal(t, 4, countPublished(PublishAll[string](), samplesOf("a", "a", "a", "b")))
}

func countPublished[T any](f *ChangeFilter[T], samples []Sample[T]) int {
	n := 0
	for _, s := range samples {
		if _, ok := f.Evaluate(s); ok {
			n++
		}
	}
	return n
}

func TestChangeFilter_Predicate(t *testing.T) {
	f, err := NewPredicateFilter[uint16](Changed[uint16])
	require.NoError(t, err)
	assert.Equal(t, 3, countPublished(f, samplesOf[uint16](0x00FF, 0x00FF, 0x0F0F, 0x0F0F, 0x00FF)))

	rising, err := NewPredicateFilter[float64](func(old, new Sample[float64]) bool {
		return new.Value > old.Value
	})
	require.NoError(t, err)
	assert.Equal(t, 3, countPublished(rising, samplesOf(5.0, 4.0, 6.0, 6.0, 7.0)))
}

func TestChangeFilter_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
	}{
		{name: "negative", threshold: -0.1},
		{name: "nan", threshold: math.NaN()},
		{name: "infinite", threshold: math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewAbsThresholdFilter[float64](tt.threshold)
			assert.ErrorIs(t, err, ErrInvalidThreshold)
			assert.Nil(t, f)
		})
	}

	_, err := NewThresholdFilter[string](1, nil)
	assert.ErrorIs(t, err, ErrMissingDistance)
	_, err = NewPredicateFilter[string](nil)
	assert.ErrorIs(t, err, ErrMissingPredicate)

	f, err := NewThresholdFilter[string](0, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, countPublished(f, samplesOf("x", "x")))
}

func TestAbsDiff(t *testing.T) {
	assert.Equal(t, 2.5, AbsDiff(10.0, 12.5))
	assert.Equal(t, 2.5, AbsDiff(12.5, 10.0))
	assert.Equal(t, 255.0, AbsDiff[uint8](0, 255))
	assert.Equal(t, 10.0, AbsDiff[int32](-5, 5))
}
