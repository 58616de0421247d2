package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cubeice/ice/internal/archive"
	"github.com/cubeice/ice/internal/engine"
)

// Exit codes beyond the generic failure.
const (
	exitFailure   = 1
	exitPartial   = 2
	exitPassword  = 3
	exitCancelled = 130
)

var loggerDeferFunc func() error

func main() {
	app := &cli.Command{
		Name:  "ice",
		Usage: "Create and extract zip, tar and 7z archives",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Value:   "warn",
				Usage:   "Log Level (debug, info, warn, error, fatal)",
				Action: func(ctx context.Context, command *cli.Command, s string) error {
					_, err := zapcore.ParseLevel(s)
					if err != nil {
						return fmt.Errorf("invalid log level %s: %w", s, err)
					}
					return nil
				},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   defaultSettingsPath(),
				Usage:   "Settings file",
				Sources: cli.EnvVars("ICE_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "no-input",
				Usage: "Never prompt, even on a terminal",
			},
		},
		Commands: []*cli.Command{
			compressCommand,
			extractCommand,
			listCommand,
			validateCommand,
			versionCommand,
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			logger, _, err := createLogger(command.Bool("debug"), command.String("log-level"))
			if err != nil {
				return nil, err
			}

			logger.Debug("logger created", zap.String("log_level", command.String("log-level")))

			loggerDeferFunc = func() error {
				return logger.Sync()
			}

			ctx = withInteractive(ctx, !command.Bool("no-input") && isInteractiveEnvironment())
			return withLogger(ctx, logger), nil
		},
		ExitErrHandler: func(ctx context.Context, command *cli.Command, err error) {
			if err == nil {
				return
			}

			if logger := tryLogger(ctx); logger != nil {
				logger.Error("failed to run application", zap.Error(err))
			} else {
				fmt.Fprintf(os.Stderr, "failed to run application: %v\n", err)
			}
			if loggerDeferFunc != nil {
				_ = loggerDeferFunc()
			}
			os.Exit(exitCode(err))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defer func() {
		if loggerDeferFunc != nil {
			_ = loggerDeferFunc()
		}
	}()

	_ = app.Run(ctx, os.Args)
}

// exitCode maps a transaction failure to the process exit status.
func exitCode(err error) int {
	var entryErr *archive.EntryError
	switch {
	case errors.Is(err, engine.ErrCancelled):
		return exitCancelled
	case errors.Is(err, engine.ErrPasswordIncorrect), errors.Is(err, engine.ErrPasswordRequired):
		return exitPassword
	case errors.As(err, &entryErr):
		return exitPartial
	default:
		return exitFailure
	}
}
