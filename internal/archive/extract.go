package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/engine"
)

// target is the destination of one file entry during an extraction pass.
type target struct {
	info EntryInfo
	dest string

	opened   bool
	reported bool
	writeErr error
	err      error
}

// extractCallback is the engine.ExtractCallback of one extraction pass. It
// writes each entry to its target, forwards progress, checks the controller
// and latches the first failure of every entry.
type extractCallback struct {
	ctx     context.Context
	reader  *Reader
	targets map[int]*target
}

var _ engine.ExtractCallback = (*extractCallback)(nil)

func newExtractCallback(ctx context.Context, r *Reader, targets []*target) *extractCallback {
	cb := &extractCallback{
		ctx:     ctx,
		reader:  r,
		targets: make(map[int]*target, len(targets)),
	}
	for _, t := range targets {
		cb.targets[t.info.Index] = t
	}
	return cb
}

func (c *extractCallback) OpenOutput(index int) (io.WriteCloser, error) {
	t, ok := c.targets[index]
	if !ok {
		return nil, nil
	}

	if err := c.reader.mkdirAll(filepath.Dir(t.dest)); err != nil {
		t.err = err
		return nil, err
	}
	f, err := c.reader.fs.OpenFile(t.dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		t.err = fmt.Errorf("%w: %w", ErrStreamIO, err)
		return nil, t.err
	}
	t.opened = true
	return &outputFile{file: f, target: t}, nil
}

func (c *extractCallback) SetProgress(done, total int64) error {
	c.reader.progress.Report(done, total)
	return c.reader.controller.Checkpoint(c.ctx)
}

func (c *extractCallback) Password() (string, bool) {
	return c.reader.guard.engineAnswer()
}

func (c *extractCallback) SetOperationResult(index int, result engine.OperationResult) {
	t, ok := c.targets[index]
	if !ok {
		return
	}
	t.reported = true

	if result == engine.ResultOK {
		if t.opened {
			c.reader.restore(t)
		}
		return
	}

	if t.err == nil {
		if result == engine.ResultDataError && t.writeErr != nil {
			t.err = fmt.Errorf("%w: %w", ErrStreamIO, t.writeErr)
		} else {
			t.err = result.Err()
		}
	}
	c.reader.logger.Debug("entry failed",
		zap.Int("index", index),
		zap.String("path", t.info.Path),
		zap.Stringer("result", result),
	)
	c.discard(t)
}

// finish settles entries the engine never reported because the pass was
// halted.
func (c *extractCallback) finish(halt error) {
	if halt == nil {
		return
	}
	for _, t := range c.targets {
		if t.reported || !t.opened {
			continue
		}
		t.err = halt
		c.discard(t)
	}
}

// discard removes a partially written file.
func (c *extractCallback) discard(t *target) {
	if !t.opened {
		return
	}
	if err := c.reader.fs.Remove(t.dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.reader.logger.Warn("failed to remove partial file", zap.String("path", t.dest), zap.Error(err))
	}
	t.opened = false
}

// outputFile records local write failures so they can be told apart from
// corrupt archive data.
type outputFile struct {
	file   afero.File
	target *target
}

func (o *outputFile) Write(p []byte) (int, error) {
	n, err := o.file.Write(p)
	if err != nil {
		o.target.writeErr = err
	}
	return n, err
}

func (o *outputFile) Close() error {
	err := o.file.Close()
	if err != nil {
		o.target.writeErr = errors.Join(o.target.writeErr, err)
	}
	return err
}
