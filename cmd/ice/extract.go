package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/archive"
	"github.com/cubeice/ice/internal/transaction"
)

var extractCommand = &cli.Command{
	Name:    "extract",
	Aliases: []string{"x"},
	Usage:   "Extract an archive",
	Flags:   archiveFlags,
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "archive",
			UsageText: "The archive to extract",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		name := command.StringArg("archive")
		if name == "" {
			return fmt.Errorf("no archive provided")
		}
		sources, err := absPaths([]string{name})
		if err != nil {
			return err
		}

		s, err := newSession(ctx, command, overridesFrom(command), "extracting")
		if err != nil {
			return err
		}
		defer s.close(ctx)

		post, opts, err := s.resolver.ExtractPost()
		if err != nil {
			return err
		}
		facade := transaction.NewExtractFacade(s.engine, s.fs, s.logger.Named("transaction"), s.controller, s.collab, post, opts)

		report, err := facade.Run(ctx, transaction.Request{Sources: sources})
		s.progress.Finish()
		if err != nil {
			var entryErr *archive.EntryError
			if errors.As(err, &entryErr) {
				s.logger.Error("some entries could not be extracted", zap.Error(err))
			}
			return err
		}
		if report.PostErr != nil {
			s.logger.Warn("archive extracted but post-processing failed", zap.Error(report.PostErr))
		}
		fmt.Println(report.Destination.Path)
		return nil
	},
}
