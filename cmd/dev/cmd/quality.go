package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

func runner(use, short, what string, run func() error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := run(); err != nil {
				return fmt.Errorf("failed to run %s: %w", what, err)
			}
			return nil
		},
	}
}

func TestCmd() *cobra.Command {
	return runner("test", "Run unit tests of the monitor, drivers and cli", "tests", func() error { return test.Test() })
}

func LintCmd() *cobra.Command {
	return runner("lint", "Run linting", "linting", func() error { return test.Lint() })
}

// IntegrationTestCmd runs tests tagged for real hardware on the bus.
func IntegrationTestCmd() *cobra.Command {
	return runner("integration-test", "Run integration testing against attached sensors", "integration testing", func() error { return test.Integ() })
}

// timingArgs runs the cadence tests repeatedly under the race detector.
func timingArgs(count int) []string {
	return []string{"test", "-race", fmt.Sprintf("-count=%d", count), "-run", "TestMonitor", "./monitor/..."}
}

// TimingCmd stresses the cadence loop, stop/start and ReadNow interleaving.
func TimingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timing",
		Short: "Run monitor cadence tests repeatedly with the race detector",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			gotest := exec.CommandContext(cmd.Context(), "go", timingArgs(count)...)
			gotest.Stdout = os.Stdout
			gotest.Stderr = os.Stderr
			if err := gotest.Run(); err != nil {
				return fmt.Errorf("failed to run timing tests: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().Int("count", 20, "how many times to run each test")
	return cmd
}
