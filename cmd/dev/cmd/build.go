package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/gophertribe/devtool/build"
)

const buildImage = "gophertribe/gobuild:1.25-bookworm"

// target is a platform the cli is built for.
type target struct {
	OS   string
	Arch string
}

func (t target) native() bool {
	return t.OS == runtime.GOOS && t.Arch == runtime.GOARCH
}

func (t target) output() string {
	return fmt.Sprintf("dist/sensorwatch-%s-%s", t.OS, t.Arch)
}

// boards the watcher is deployed on. "host" builds for the current machine.
var boards = map[string]target{
	"nanopi": {OS: "linux", Arch: "arm"},
	"rpi":    {OS: "linux", Arch: "arm64"},
}

// resolveTarget picks the platform from a board preset, falling back to the
// explicit os and arch.
func resolveTarget(board, os, arch string) (target, error) {
	if board == "" || board == "host" {
		return target{OS: os, Arch: arch}, nil
	}
	t, ok := boards[board]
	if !ok {
		return target{}, fmt.Errorf("unknown board %q", board)
	}
	return t, nil
}

func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the sensorwatch cli for the host or a board",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			board, _ := flags.GetString("board")
			os, _ := flags.GetString("os")
			arch, _ := flags.GetString("arch")
			version, _ := flags.GetString("version")
			t, err := resolveTarget(board, os, arch)
			if err != nil {
				return err
			}
			// periph and gobot need cgo only for the host; boards are built
			// inside the cross-compilation image
			inImage, _ := flags.GetBool("in-image")
			if t.native() || inImage {
				return build.GoBuild(t.output(), "./cmd/sensors", build.GoBuildOpts{
					Version:       version,
					InjectVersion: true,
					ConfigPackage: "main",
					EnableCgo:     true,
					Arch:          t.Arch,
					OS:            t.OS,
				})
			}
			noCache, _ := flags.GetBool("no-cache")
			return build.Docker(cmd.Context(), fmt.Sprintf("./dev-%s-%s", t.OS, t.Arch),
				[]string{"build", "--version", version, "--os", t.OS, "--arch", t.Arch, "--in-image"},
				build.DockerBuildOpts{NoCache: noCache, Image: buildImage})
		},
	}
	cmd.Flags().String("board", "host", "target board: host, nanopi or rpi")
	cmd.Flags().String("os", runtime.GOOS, "os to build for when board is host")
	cmd.Flags().String("arch", runtime.GOARCH, "arch to build for when board is host")
	cmd.Flags().String("version", "latest", "version of the cli")
	cmd.Flags().Bool("no-cache", false, "do not use cache when building in docker")
	cmd.Flags().Bool("in-image", false, "build directly, used inside the build image")
	_ = cmd.Flags().MarkHidden("in-image")
	return cmd
}
