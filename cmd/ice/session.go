package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	v1 "github.com/cubeice/ice/apis/v1"
	"github.com/cubeice/ice/internal/archive"
	"github.com/cubeice/ice/internal/engine"
	"github.com/cubeice/ice/internal/engine/codecs"
	"github.com/cubeice/ice/internal/postprocess"
	"github.com/cubeice/ice/internal/postprocess/sinks"
	"github.com/cubeice/ice/internal/settings"
	"github.com/cubeice/ice/internal/transaction"
)

// session is everything one command needs to run a transaction.
type session struct {
	logger     *zap.Logger
	fs         afero.Fs
	settings   v1.Settings
	engine     *engine.Registry
	resolver   *settings.Resolver
	controller *archive.Controller
	publisher  *sinks.Publisher
	progress   interface {
		archive.ProgressSink
		Finish()
	}
	collab transaction.Collaborators
}

func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ice", "settings.yaml")
}

func newSession(ctx context.Context, command *cli.Command, overrides settings.Overrides, label string) (*session, error) {
	logger := getLogger(ctx)
	fs := afero.NewOsFs()

	cfg, err := settings.Load(fs, command.String("config"))
	if err != nil {
		return nil, formatValidationError(err)
	}

	var prompt archive.PasswordQuery = noPrompt{}
	var conflictPrompt settings.ConflictPrompt
	if isInteractive(ctx) {
		tp := newTerminalPrompt()
		prompt, conflictPrompt = tp, tp
	}

	resolver, err := settings.NewResolver(logger.Named("settings"), fs, cfg, overrides, runtime.NumCPU(), conflictPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to build resolver: %w", err)
	}

	registry := engine.NewRegistry(logger.Named("engine"), fs)
	codecs.RegisterAll(registry)

	launcher, err := postprocess.NewLauncher(logger.Named("launcher"), fs, postprocess.LauncherConfig{
		Explorer: postprocess.SplitCommand(cfg.Explorer),
		Mailer:   postprocess.SplitCommand(cfg.Mailer),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create launcher: %w", err)
	}

	built, err := sinks.Build(ctx, fs, os.Stdout, cfg.Publish)
	if err != nil {
		return nil, fmt.Errorf("failed to build publish sinks: %w", err)
	}
	publisher := sinks.NewPublisher(logger.Named("publish"), fs, built...)

	s := &session{
		logger:     logger,
		fs:         fs,
		settings:   cfg,
		engine:     registry,
		resolver:   resolver,
		controller: archive.NewController(),
		publisher:  publisher,
	}
	if isInteractive(ctx) {
		s.progress = newProgressPrinter(os.Stderr, label)
	} else {
		s.progress = &progressLogger{logger: logger}
	}

	s.collab = transaction.Collaborators{
		Selector:  resolver,
		Runtime:   resolver,
		Passwords: prompt,
		Post:      launcher,
		Progress:  s.progress,
	}
	if !publisher.Empty() {
		s.collab.Publisher = publisher
	}

	watchSuspend(ctx, logger, s.controller)
	go func() {
		<-ctx.Done()
		s.controller.Cancel()
	}()
	return s, nil
}

func (s *session) close(ctx context.Context) {
	s.progress.Finish()
	if err := s.publisher.Close(ctx); err != nil {
		s.logger.Warn("failed to close publish sinks", zap.Error(err))
	}
}

// archiveFlags are the per-invocation overrides shared by commands.
var archiveFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Archive path or target directory",
	},
	&cli.StringFlag{
		Name:  "overwrite",
		Usage: "When the destination exists (ask, overwrite, rename, cancel)",
		Validator: func(s string) error {
			switch s {
			case "ask", "overwrite", "rename", "cancel":
				return nil
			}
			return fmt.Errorf("invalid conflict policy %q", s)
		},
	},
	&cli.StringFlag{
		Name:  "open",
		Usage: "Open the containing folder afterwards (none, open, open_not_desktop)",
	},
	&cli.StringFlag{
		Name:  "password",
		Usage: "Archive password",
	},
	&cli.BoolFlag{
		Name:  "ask-password",
		Usage: "Prompt for a password",
	},
}

func overridesFrom(command *cli.Command) settings.Overrides {
	return settings.Overrides{
		Format:     command.String("format"),
		Method:     command.String("method"),
		Level:      command.String("level"),
		Encryption: command.String("encryption"),
		Threads:    int(command.Int("threads")),
		Password:   command.String("password"),
		Output:     command.String("output"),
		Conflict:   command.String("overwrite"),
		Open:       command.String("open"),
	}
}

func absPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		out = append(out, abs)
	}
	return out, nil
}
