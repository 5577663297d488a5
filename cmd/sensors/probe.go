package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/mklimuk/sensorwatch/cmd/sensors/console"
	"github.com/mklimuk/sensorwatch/config"
)

var probeCmd = cli.Command{
	Name:  "probe",
	Usage: "read every configured sensor once",
	Flags: []cli.Flag{
		configFlag,
		&cli.DurationFlag{
			Name:  "timeout",
			Value: 10 * time.Second,
		},
	},
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

		ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		defer cancel()
		watchers, err := buildAll(ctx, &factory{bus: bus, logger: slog.Default()}, cfg.Sensors)
		if err != nil {
			return console.Exit(1, "sensor initialization error: %s", console.Red(err))
		}

		values := make([]string, len(watchers))
		errs := make([]error, len(watchers))
		var g errgroup.Group
		for i, w := range watchers {
			g.Go(func() error {
				values[i], errs[i] = w.probe(ctx)
				return nil
			})
		}
		_ = g.Wait()

		failed := 0
		for i, w := range watchers {
			if errs[i] != nil {
				failed++
				console.Errorf("%s: %s", w.Name(), errs[i])
				continue
			}
			console.Printf("%s %s\n", console.Bold(w.Name()), console.Green(values[i]))
		}
		if failed > 0 {
			return console.Exit(2, "%d of %d sensors failed", failed, len(watchers))
		}
		return nil
	},
}
