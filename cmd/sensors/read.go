package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/sensorwatch/cmd/sensors/console"
	"github.com/mklimuk/sensorwatch/config"
)

var readCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Usage:   "read a single sensor once",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "sensor",
			Aliases: []string{"s"},
			Value:   config.KindTC74,
		},
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			Value:   config.AdapterGeneric,
		},
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Value:   "/dev/i2c-1",
		},
		&cli.IntFlag{
			Name:  "bus",
			Usage: "bus number for the nanopi adapter",
		},
		&cli.UintFlag{
			Name:  "address",
			Usage: "device address, 0 for the sensor default",
		},
		&cli.Int64Flag{
			Name:  "speed",
			Usage: "bus clock in Hz, 0 keeps the current one",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Value: 5 * time.Second,
		},
	},
	Action: func(c *cli.Context) error {
		addr, err := i2cAddress(c.Uint("address"))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		bus, release, err := openBus(config.Bus{
			Adapter: c.String("adapter"),
			Device:  c.String("device"),
			Number:  c.Int("bus"),
			SpeedHz: c.Int64("speed"),
		})
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		defer release()

		ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		defer cancel()
		f := &factory{bus: bus, logger: slog.Default()}
		w, err := f.build(ctx, config.Sensor{
			Name:           c.String("sensor"),
			Kind:           c.String("sensor"),
			Address:        addr,
			FaultThreshold: 1,
		})
		if err != nil {
			return console.Exit(1, "sensor initialization error: %s", console.Red(err))
		}
		v, err := w.probe(ctx)
		if err != nil {
			return console.Exit(1, "error reading %s: %s", w.Name(), console.Red(err))
		}
		console.Printf("%s %s\n", console.Bold(w.Name()), console.White(v))
		return nil
	},
}

// i2cAddress accepts 7 bit device addresses.
func i2cAddress(v uint) (byte, error) {
	if v > 0x7F {
		return 0, fmt.Errorf("address %#x out of range (0x00-0x7f)", v)
	}
	return byte(v), nil
}
