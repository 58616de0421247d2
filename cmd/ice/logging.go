package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

type loggerCtxKeyType struct{}

var loggerCtxKey = loggerCtxKeyType{}

// createLogger builds the process logger. Output goes to stderr so the
// stdout publish sink and printed paths stay clean; a terminal gets the
// console encoding.
func createLogger(debug bool, logLevel string) (*zap.Logger, zap.AtomicLevel, error) {
	level, err := zap.ParseAtomicLevel(logLevel)
	if err != nil {
		return nil, zap.NewAtomicLevel(), fmt.Errorf("invalid log level %s: %w", logLevel, err)
	}

	var loggerCfg zap.Config
	if debug {
		loggerCfg = zap.NewDevelopmentConfig()
		level.SetLevel(zapcore.DebugLevel)
	} else {
		loggerCfg = zap.NewProductionConfig()
		if term.IsTerminal(int(os.Stderr.Fd())) {
			loggerCfg.Encoding = "console"
			loggerCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
			loggerCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	}
	loggerCfg.Level = level
	loggerCfg.OutputPaths = []string{"stderr"}

	logger, err := loggerCfg.Build()
	if err != nil {
		return nil, zap.NewAtomicLevel(), fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Named("ice"), level, nil
}

func withLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, logger)
}

func tryLogger(ctx context.Context) *zap.Logger {
	logger, _ := ctx.Value(loggerCtxKey).(*zap.Logger)
	return logger
}

func getLogger(ctx context.Context) *zap.Logger {
	logger := tryLogger(ctx)
	if logger == nil {
		panic("logger not found in context")
	}
	return logger
}
