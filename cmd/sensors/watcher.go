package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/sensorwatch"
	"github.com/mklimuk/sensorwatch/accel"
	"github.com/mklimuk/sensorwatch/air"
	"github.com/mklimuk/sensorwatch/config"
	"github.com/mklimuk/sensorwatch/environment"
	"github.com/mklimuk/sensorwatch/gpio"
	"github.com/mklimuk/sensorwatch/monitor"
)

// watcher hides the sample type of a monitor from the commands.
type watcher interface {
	Name() string
	Run(ctx context.Context, interval time.Duration) error
	// probe performs an on-demand read and formats the value.
	probe(ctx context.Context) (string, error)
	// subscribePrinter subscribes p to change notifications.
	subscribePrinter(p *printer)
}

type watched[T any] struct {
	*monitor.Monitor[T]
	format func(T) string
}

func (w *watched[T]) probe(ctx context.Context) (string, error) {
	s, err := w.ReadNow(ctx)
	if err != nil {
		return "", err
	}
	return w.format(s.Value), nil
}

func (w *watched[T]) subscribePrinter(p *printer) {
	name := w.Name()
	w.Subscribe(func(rec monitor.ChangeRecord[T]) error {
		var old string
		if !rec.Initial() {
			old = w.format(rec.Old.Value)
		}
		p.change(name, old, w.format(rec.New.Value), rec.New.Timestamp)
		return nil
	})
}

func newWatched[T any](src sensorwatch.Source[T], filter *monitor.ChangeFilter[T], format func(T) string, opts []monitor.Opt) (watcher, error) {
	m, err := monitor.New(src, filter, opts...)
	if err != nil {
		return nil, err
	}
	return &watched[T]{Monitor: m, format: format}, nil
}

// factory builds watchers on one bus. Devices measuring more than one
// quantity are shared between the watchers using them.
type factory struct {
	bus    sensorwatch.I2CBus
	faults monitor.FaultReporter
	logger *slog.Logger
	shtc3  environment.TemperatureAndHumiditySensor
}

func (f *factory) opts(s config.Sensor) []monitor.Opt {
	opts := []monitor.Opt{
		monitor.WithName(s.Name),
		monitor.WithFaultThreshold(s.FaultThreshold),
		monitor.WithLogger(f.logger),
	}
	if f.faults != nil {
		opts = append(opts, monitor.WithFaultReporter(f.faults))
	}
	return opts
}

func (f *factory) mock() bool {
	return f.bus == nil
}

func (f *factory) tempAndHum() environment.TemperatureAndHumiditySensor {
	if f.shtc3 == nil {
		if f.mock() {
			f.shtc3 = environment.NewMockTemperatureAndHumiditySensor(walk(21, 0.3), walk(45, 1))
		} else {
			f.shtc3 = environment.NewSHTC3(f.bus)
		}
	}
	return f.shtc3
}

func formatTemp(t physic.Temperature) string {
	return fmt.Sprintf("%.1f°C", t.Celsius())
}

func formatHum(h physic.RelativeHumidity) string {
	return h.String()
}

func (f *factory) build(ctx context.Context, s config.Sensor) (watcher, error) {
	switch s.Kind {
	case config.KindTC74, config.KindSHTC3Temperature:
		var sensor environment.TemperatureSensor
		switch {
		case s.Kind == config.KindSHTC3Temperature:
			sensor = f.tempAndHum()
		case f.mock():
			sensor = environment.NewMockTemperatureSensor(walk(20, 0.5))
		default:
			sensor = environment.NewTC74(f.bus, environment.WithAddress(s.Address))
		}
		filter, err := monitor.NewThresholdFilter[physic.Temperature](s.Threshold, environment.TemperatureDistance)
		if err != nil {
			return nil, err
		}
		return newWatched(environment.TemperatureSource(sensor), filter, formatTemp, f.opts(s))
	case config.KindSHTC3Humidity:
		filter, err := monitor.NewThresholdFilter[physic.RelativeHumidity](s.Threshold, environment.HumidityDistance)
		if err != nil {
			return nil, err
		}
		return newWatched(environment.HumiditySource(f.tempAndHum()), filter, formatHum, f.opts(s))
	case config.KindBH1750:
		var sensor environment.LightSensor
		if f.mock() {
			sensor = environment.NewMockLightSensor(func(ctx context.Context) (int, error) {
				v, err := walk(300, 20)(ctx)
				return int(v), err
			})
		} else {
			addr := s.Address
			if addr == 0 {
				addr = environment.BH1750AddrLow
			}
			sensor = environment.NewBH1750(f.bus, addr)
		}
		filter, err := monitor.NewAbsThresholdFilter[int](s.Threshold)
		if err != nil {
			return nil, err
		}
		return newWatched(environment.LightSource(sensor), filter, func(v int) string {
			return fmt.Sprintf("%d lux", v)
		}, f.opts(s))
	case config.KindAGS02MA:
		var sensor air.AirQualitySensor
		if f.mock() {
			sensor = air.NewMockAirQualitySensor(func(ctx context.Context) (uint32, error) {
				v, err := walk(500, 40)(ctx)
				return uint32(max(v, 0)), err
			})
		} else {
			sensor = air.NewAGS02MA(f.bus)
		}
		filter, err := monitor.NewAbsThresholdFilter[uint32](s.Threshold)
		if err != nil {
			return nil, err
		}
		return newWatched(air.TVOCSource(sensor), filter, func(v uint32) string {
			return fmt.Sprintf("%d ppb", v)
		}, f.opts(s))
	case config.KindMCP23017:
		var src sensorwatch.Source[uint16]
		if f.mock() {
			src = toggle[uint16](0x00FF, 0x01FF)
		} else {
			addr := s.Address
			if addr == 0 {
				addr = gpio.DefaultMCP23017Address
			}
			expander := gpio.NewMCP23017(f.bus, addr, gpio.WithRetryLimit(3))
			if err := expander.SelectBank(ctx, s.Bank); err != nil {
				return nil, err
			}
			var err error
			src, err = gpio.InputSource(ctx, expander)
			if err != nil {
				return nil, err
			}
		}
		filter, err := monitor.NewPredicateFilter[uint16](monitor.Changed[uint16])
		if err != nil {
			return nil, err
		}
		return newWatched(src, filter, func(v uint16) string {
			return fmt.Sprintf("%016b", v)
		}, f.opts(s))
	case config.KindBMA220:
		var src sensorwatch.Source[bool]
		if f.mock() {
			src = toggle(false, true)
		} else {
			b := accel.NewBMA220(f.bus)
			if err := b.InitMotionDetection(ctx); err != nil {
				return nil, err
			}
			src = accel.MotionSource(b)
		}
		filter, err := monitor.NewPredicateFilter[bool](monitor.Changed[bool])
		if err != nil {
			return nil, err
		}
		return newWatched(src, filter, func(v bool) string {
			if v {
				return "motion"
			}
			return "still"
		}, f.opts(s))
	default:
		return nil, fmt.Errorf("unknown sensor kind %q", s.Kind)
	}
}

// buildAll creates a watcher for every configured sensor.
func buildAll(ctx context.Context, f *factory, sensors []config.Sensor) ([]watcher, error) {
	out := make([]watcher, 0, len(sensors))
	for _, s := range sensors {
		w, err := f.build(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name, err)
		}
		out = append(out, w)
	}
	return out, nil
}
