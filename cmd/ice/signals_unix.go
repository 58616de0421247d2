//go:build unix

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/archive"
)

// watchSuspend toggles suspension of c on SIGUSR1 until ctx is done.
func watchSuspend(ctx context.Context, logger *zap.Logger, c *archive.Controller) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	go func() {
		defer signal.Stop(sig)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sig:
				logger.Info("toggled suspension", zap.Bool("suspended", c.Toggle()))
			}
		}
	}()
}
