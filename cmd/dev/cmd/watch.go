package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
)

// mockWatchEnv forces the mock adapter and keeps the fault log under dist.
func mockWatchEnv(faultLog string) []string {
	return []string{
		"SENSORWATCH_ADAPTER=mock",
		"SENSORWATCH_FAULT_LOG=" + faultLog,
	}
}

func sensorsArgs(args ...string) []string {
	return append([]string{"run", "./cmd/sensors"}, args...)
}

// WatchCmd runs the cli against simulated sensors, then prints the fault
// summary recorded during the run.
func WatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run sensorwatch against the mock adapter",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, _ := cmd.Flags().GetString("config")
			duration, _ := cmd.Flags().GetDuration("duration")
			faultLog, _ := cmd.Flags().GetString("fault-log")
			env := append(os.Environ(), mockWatchEnv(faultLog)...)

			ctx, cancel := context.WithTimeout(cmd.Context(), duration)
			defer cancel()
			watch := exec.CommandContext(ctx, "go", sensorsArgs("watch", "--config", config)...)
			watch.Env = env
			watch.Stdout = os.Stdout
			watch.Stderr = os.Stderr
			watch.Cancel = func() error { return watch.Process.Signal(os.Interrupt) }
			watch.WaitDelay = 5 * time.Second
			slog.Info("watching mock sensors", "config", config, "duration", duration)
			err := watch.Run()
			if err != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("watch failed: %w", err)
			}

			summary := exec.CommandContext(cmd.Context(), "go", sensorsArgs("faults", "show", "--summary", "--file", faultLog)...)
			summary.Env = env
			summary.Stdout = os.Stdout
			summary.Stderr = os.Stderr
			return summary.Run()
		},
	}
	cmd.Flags().String("config", "watch.example.yaml", "watch configuration")
	cmd.Flags().Duration("duration", 10*time.Second, "how long to watch")
	cmd.Flags().String("fault-log", "dist/faults.cbor", "fault log written during the run")
	return cmd
}
