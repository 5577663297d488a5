package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/mklimuk/sensorwatch/cmd/dev/cmd"
)

func setupLogger(debug bool) {
	charm := log.NewWithOptions(os.Stdout, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          "dev",
	})
	charm.SetColorProfile(termenv.TrueColor)
	charm.SetLevel(log.InfoLevel)
	if debug {
		charm.SetLevel(log.DebugLevel)
	}
	slog.SetDefault(slog.New(charm))
}

func main() {
	var debug bool
	rootCmd := &cobra.Command{
		Use:   "dev",
		Short: "sensorwatch development tool",
		Long:  "Builds the cli for the host and the boards it runs on, runs tests and watches simulated sensors",
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogger(debug)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(
		cmd.BuildCmd(),
		cmd.WatchCmd(),
		cmd.TestCmd(),
		cmd.TimingCmd(),
		cmd.LintCmd(),
		cmd.IntegrationTestCmd(),
	)
	if err := rootCmd.Execute(); err != nil {
		slog.Error("unexpected error", "error", err)
		os.Exit(1)
	}
}
