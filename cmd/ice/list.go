package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"

	"github.com/cubeice/ice/internal/archive"
	"github.com/cubeice/ice/internal/engine"
	"github.com/cubeice/ice/internal/engine/codecs"
)

var listCommand = &cli.Command{
	Name:    "list",
	Aliases: []string{"l"},
	Usage:   "List the entries of an archive",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "archive",
			UsageText: "The archive to list",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		name := command.StringArg("archive")
		if name == "" {
			return fmt.Errorf("no archive provided")
		}

		fs := afero.NewOsFs()
		registry := engine.NewRegistry(logger.Named("engine"), fs)
		codecs.RegisterAll(registry)

		r, err := archive.Open(ctx, registry, fs, name, archive.WithLogger(logger))
		if err != nil {
			return err
		}
		defer r.Close()

		infos, err := r.Infos()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "#\tsize\tmodified\t \tpath\t\n")
		var total int64
		for _, info := range infos {
			modified := "-"
			if !info.Modified.IsZero() {
				modified = info.Modified.Local().Format(time.DateTime)
			}
			flag := " "
			switch {
			case info.IsDir:
				flag = "d"
			case info.Encrypted:
				flag = "*"
			}
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t\n", info.Index, info.Size, modified, flag, info.Path)
			total += info.Size
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("%s archive, %d entries, %d bytes\n", r.Format(), len(infos), total)
		return nil
	},
}
