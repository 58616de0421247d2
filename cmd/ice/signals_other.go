//go:build !unix

package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/archive"
)

func watchSuspend(context.Context, *zap.Logger, *archive.Controller) {}
