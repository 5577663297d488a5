package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/sensorwatch/cmd/sensors/console"
	"github.com/mklimuk/sensorwatch/faultlog"
)

var faultFileFlag = &cli.StringFlag{
	Name:    "file",
	Aliases: []string{"f"},
	Value:   "faults.cbor",
	EnvVars: []string{"SENSORWATCH_FAULT_LOG"},
}

var faultsCmd = cli.Command{
	Name:  "faults",
	Usage: "inspect the fault log",
	Subcommands: []*cli.Command{
		&faultsShowCmd,
		&faultsDecodeCmd,
		&faultsClearCmd,
	},
}

var faultsShowCmd = cli.Command{
	Name: "show",
	Flags: []cli.Flag{
		faultFileFlag,
		&cli.StringFlag{Name: "sensor", Aliases: []string{"s"}},
		&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "transient, persistent, observer or filter"},
		&cli.DurationFlag{Name: "since", Usage: "only faults younger than this"},
		&cli.BoolFlag{Name: "summary", Usage: "print counts per sensor and kind"},
		&cli.BoolFlag{Name: "raw", Usage: "print every entry as hex encoded CBOR"},
	},
	Action: func(c *cli.Context) error {
		filter := faultlog.Filter{
			Sensor: c.String("sensor"),
			Kind:   c.String("kind"),
		}
		if d := c.Duration("since"); d > 0 {
			since := time.Now().Add(-d)
			filter.Since = &since
		}
		entries, err := faultlog.ReadAll(c.String("file"), filter)
		if errors.Is(err, fs.ErrNotExist) {
			console.Info("no faults recorded")
			return nil
		}
		if err != nil {
			return console.Exit(1, "could not read fault log: %s", console.Red(err))
		}
		if c.Bool("summary") {
			for _, s := range faultlog.Summarize(entries) {
				console.Printf("%-20s %-10s %5d  last %s\n", s.Sensor, s.Kind, s.Count, s.Last.Format(time.DateTime))
			}
			return nil
		}
		for _, e := range entries {
			if c.Bool("raw") {
				raw, err := encodeRaw(e)
				if err != nil {
					return console.Exit(1, "could not encode entry: %s", console.Red(err))
				}
				console.Printf("%s\n", raw)
				continue
			}
			printEntry(e)
		}
		return nil
	},
}

var faultsDecodeCmd = cli.Command{
	Name:      "decode",
	Usage:     "decode entries printed by show --raw",
	ArgsUsage: "HEX...",
	Action: func(c *cli.Context) error {
		if c.NArg() == 0 {
			return console.Exit(1, "nothing to decode")
		}
		for _, arg := range c.Args().Slice() {
			e, err := decodeRaw(arg)
			if err != nil {
				return console.Exit(1, "could not decode %s: %s", arg, console.Red(err))
			}
			printEntry(e)
		}
		return nil
	},
}

func printEntry(e faultlog.Entry) {
	kind := console.Yellow(e.Kind)
	if e.Kind == "persistent" {
		kind = console.Red(e.Kind)
	}
	console.Printf("%s %s %s %s\n", e.Timestamp.Format(time.DateTime), console.Bold(e.Sensor), kind, e.Error)
}

func encodeRaw(e faultlog.Entry) (string, error) {
	data, err := faultlog.Encode(e)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(data), nil
}

func decodeRaw(s string) (faultlog.Entry, error) {
	data, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return faultlog.Entry{}, fmt.Errorf("not hex: %w", err)
	}
	return faultlog.Decode(data)
}

var faultsClearCmd = cli.Command{
	Name: "clear",
	Flags: []cli.Flag{
		faultFileFlag,
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		path := c.String("file")
		if !c.Bool("yes") {
			answer, err := console.NoOrYes("clear " + path + "?")
			if err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
			if answer != console.Yes {
				console.PInfof(console.PictoStop, "fault log kept")
				return nil
			}
		}
		if err := faultlog.Truncate(path); err != nil {
			return console.Exit(1, "could not clear fault log: %s", console.Red(err))
		}
		console.PInfof(console.PictoBottle, "fault log cleared")
		return nil
	},
}
