package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/transaction"
)

var compressCommand = &cli.Command{
	Name:    "compress",
	Aliases: []string{"c"},
	Usage:   "Create an archive from files and directories",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Archive format (zip, tar)",
		},
		&cli.StringFlag{
			Name:    "method",
			Aliases: []string{"m"},
			Usage:   "Compression method (default, copy, deflate, zstd, gzip, lz4, xz)",
		},
		&cli.StringFlag{
			Name:  "level",
			Usage: "Compression level (none, fast, low, normal, high, ultra)",
		},
		&cli.StringFlag{
			Name:  "encryption",
			Usage: "Encryption scheme (none, default, age)",
		},
		&cli.IntFlag{
			Name:    "threads",
			Aliases: []string{"t"},
			Usage:   "Compressor threads (default: all CPUs)",
		},
		&cli.BoolFlag{
			Name:  "mail",
			Usage: "Hand the archive to the mail program",
		},
	}, archiveFlags...),
	Arguments: []cli.Argument{
		&cli.StringArgs{
			Name:      "sources",
			UsageText: "Files and directories to archive",
			Min:       1,
			Max:       -1,
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		sources, err := absPaths(command.StringArgs("sources"))
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			return fmt.Errorf("no sources provided")
		}

		s, err := newSession(ctx, command, overridesFrom(command), "compressing")
		if err != nil {
			return err
		}
		defer s.close(ctx)

		post, err := s.resolver.CompressPost()
		if err != nil {
			return err
		}
		facade := transaction.NewCompressFacade(s.engine, s.fs, s.logger.Named("transaction"), s.controller, s.collab, post)

		report, err := facade.Run(ctx, transaction.Request{
			Sources:  sources,
			Mail:     command.Bool("mail"),
			Password: command.Bool("ask-password"),
		})
		s.progress.Finish()
		if err != nil {
			if report != nil && report.Destination.Temp != "" {
				s.logger.Debug("temp archive left in place", zap.String("path", report.Destination.Temp))
			}
			return err
		}
		if report.PostErr != nil {
			s.logger.Warn("archive created but post-processing failed", zap.Error(report.PostErr))
		}
		fmt.Println(report.Destination.Path)
		return nil
	},
}
