package main

import (
	"fmt"
	"log/slog"

	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/sensorwatch"
	"github.com/mklimuk/sensorwatch/config"
	"github.com/mklimuk/sensorwatch/i2c"
)

// openBus returns the bus described by cfg and a function releasing it. The
// mock adapter has no bus; sensors are simulated instead.
func openBus(cfg config.Bus) (sensorwatch.I2CBus, func(), error) {
	switch cfg.Adapter {
	case config.AdapterGeneric:
		bus, err := i2c.NewGenericBus(cfg.Device)
		if err != nil {
			return nil, nil, err
		}
		if cfg.SpeedHz > 0 {
			if err := bus.SetSpeed(physic.Frequency(cfg.SpeedHz) * physic.Hertz); err != nil {
				_ = bus.Close()
				return nil, nil, err
			}
		}
		return bus, func() {
			if err := bus.Close(); err != nil {
				slog.Error("error closing bus", "error", err)
			}
		}, nil
	case config.AdapterNanoPi:
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		bus := i2c.NewGobotBus(npi, cfg.Number)
		return bus, func() {
			if err := bus.Close(); err != nil {
				slog.Error("error closing bus", "error", err)
			}
			if err := npi.I2cBusAdaptor.Finalize(); err != nil {
				slog.Error("error finalizing adaptor", "error", err)
			}
		}, nil
	case config.AdapterMock:
		return nil, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown adapter %q", cfg.Adapter)
	}
}
