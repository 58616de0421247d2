package main

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/engine"
	"github.com/cubeice/ice/internal/engine/codecs"
)

// Build information read from debug.ReadBuildInfo().
var (
	Version   = "unknown"
	GoVersion = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
	Dirty     bool
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	Version = info.Main.Version
	GoVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			Commit = setting.Value
		case "vcs.time":
			BuildTime = setting.Value
		case "vcs.modified":
			Dirty = setting.Value == "true"
		}
	}
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "Print version and supported archive formats",
	Action: func(ctx context.Context, command *cli.Command) error {
		registry := engine.NewRegistry(zap.NewNop(), afero.NewOsFs())
		codecs.RegisterAll(registry)

		fmt.Printf("ice %s (%s)\n", Version, GoVersion)
		if Commit != "unknown" {
			fmt.Printf("commit: %s%s\n", Commit, lo.Ternary(Dirty, " (dirty)", ""))
		}
		if BuildTime != "unknown" {
			fmt.Printf("built: %s\n", BuildTime)
		}

		formats := lo.Map(registry.Formats(), func(f engine.Format, _ int) string {
			return f.String() + lo.Ternary(f.Writable(), "", " (read-only)")
		})
		fmt.Printf("formats: %s\n", strings.Join(formats, ", "))
		return nil
	},
}
