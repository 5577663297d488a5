package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/sensorwatch/config"
	"github.com/mklimuk/sensorwatch/monitor"
)

func mockSensors() []config.Sensor {
	kinds := []string{
		config.KindTC74,
		config.KindSHTC3Temperature,
		config.KindSHTC3Humidity,
		config.KindBH1750,
		config.KindAGS02MA,
		config.KindMCP23017,
		config.KindBMA220,
	}
	out := make([]config.Sensor, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, config.Sensor{Name: k, Kind: k, Interval: 5 * time.Millisecond, FaultThreshold: 3})
	}
	return out
}

func TestFactory_MockProbe(t *testing.T) {
	f := &factory{logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}
	watchers, err := buildAll(context.Background(), f, mockSensors())
	require.NoError(t, err)
	require.Len(t, watchers, 7)
	for _, w := range watchers {
		v, err := w.probe(context.Background())
		require.NoError(t, err, w.Name())
		assert.NotEmpty(t, v, w.Name())
	}
}

func TestFactory_SharesSHTC3(t *testing.T) {
	f := &factory{logger: slog.Default()}
	assert.Same(t, f.tempAndHum(), f.tempAndHum())
}

func TestFactory_RejectsInvalidSensor(t *testing.T) {
	f := &factory{logger: slog.Default()}
	_, err := f.build(context.Background(), config.Sensor{Name: "x", Kind: "thermocouple", FaultThreshold: 3})
	assert.Error(t, err)

	_, err = f.build(context.Background(), config.Sensor{Name: "t", Kind: config.KindTC74, Threshold: -1, FaultThreshold: 3})
	assert.ErrorIs(t, err, monitor.ErrInvalidThreshold)

	_, err = f.build(context.Background(), config.Sensor{Name: "t", Kind: config.KindTC74})
	assert.ErrorIs(t, err, monitor.ErrInvalidFaultThreshold)
}

func TestWatch_PrintsInitialSample(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out)
	f := &factory{logger: slog.Default(), faults: monitor.NewChannelReporter(8)}
	w, err := f.build(context.Background(), config.Sensor{Name: "lux", Kind: config.KindBH1750, Threshold: 1000, FaultThreshold: 3})
	require.NoError(t, err)
	w.subscribePrinter(p)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, w.Run(ctx, 5*time.Millisecond))

	p.mx.Lock()
	defer p.mx.Unlock()
	assert.Contains(t, out.String(), "lux")
	assert.Contains(t, out.String(), "lux\n")
}

func TestPrinter_Change(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out)
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	p.change("tc74", "", "21.0°C", at)
	p.change("tc74", "21.0°C", "23.5°C", at)
	assert.Contains(t, out.String(), "12:30:00")
	assert.Contains(t, out.String(), "21.0°C → ")
	assert.Contains(t, out.String(), "23.5°C")
}

// recordingBus accepts every transaction, records writes and reads zeros.
type recordingBus struct {
	writes [][]byte
}

func (b *recordingBus) WriteToAddr(_ context.Context, _ byte, buffer []byte) error {
	b.writes = append(b.writes, append([]byte{}, buffer...))
	return nil
}

func (b *recordingBus) ReadFromAddr(_ context.Context, _ byte, buffer []byte) error {
	clear(buffer)
	return nil
}

func (b *recordingBus) Release(context.Context) error { return nil }

func TestFactory_ExpanderBank(t *testing.T) {
	bus := &recordingBus{}
	f := &factory{bus: bus, logger: slog.Default()}
	_, err := f.build(context.Background(), config.Sensor{Name: "inputs", Kind: config.KindMCP23017, Bank: 1, FaultThreshold: 3})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(bus.writes), 3)
	assert.Equal(t, []byte{0x0A}, bus.writes[0])
	assert.Equal(t, []byte{0x0A, 0x80}, bus.writes[1])
	// IODIRA and IODIRB in the bank 1 layout
	assert.Contains(t, bus.writes, []byte{0x00, 0xFF})
	assert.Contains(t, bus.writes, []byte{0x10, 0xFF})
}
