package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/mklimuk/sensorwatch/cmd/sensors/console"
	"github.com/mklimuk/sensorwatch/config"
	"github.com/mklimuk/sensorwatch/faultlog"
	"github.com/mklimuk/sensorwatch/monitor"
)

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Value:   "watch.yaml",
	EnvVars: []string{"SENSORWATCH_CONFIG"},
}

var watchCmd = cli.Command{
	Name:  "watch",
	Usage: "sample configured sensors and print changes until interrupted",
	Flags: []cli.Flag{configFlag},
	Action: func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		bus, release, err := openBus(cfg.Bus)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		defer release()

		recorder, err := faultlog.NewRecorder(cfg.FaultLog)
		if err != nil {
			return console.Exit(1, "could not open fault log: %s", console.Red(err))
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				slog.Error("error closing fault log", "error", err)
			}
		}()

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		f := &factory{
			bus:    bus,
			faults: monitor.MultiReporter(monitor.NewLogReporter(slog.Default()), recorder),
			logger: slog.Default(),
		}
		watchers, err := buildAll(ctx, f, cfg.Sensors)
		if err != nil {
			return console.Exit(1, "sensor initialization error: %s", console.Red(err))
		}
		p := newPrinter(os.Stdout)
		g, gctx := errgroup.WithContext(ctx)
		for i, w := range watchers {
			w.subscribePrinter(p)
			interval := cfg.Sensors[i].Interval
			g.Go(func() error {
				return w.Run(gctx, interval)
			})
		}
		console.Infof("watching %d sensors, faults recorded to %s", len(watchers), cfg.FaultLog)
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return console.Exit(1, "watch stopped: %s", console.Red(err))
		}
		return nil
	},
}
