package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/engine"
)

// Writer is a compression session: an ordered set of sources written into
// one new archive.
type Writer struct {
	engine     engine.Engine
	fs         afero.Fs
	logger     *zap.Logger
	controller *Controller

	sources []string
	seen    map[string]bool
	options *engine.WriteOptions
	filter  engine.Filter
}

func NewWriter(eng engine.Engine, fs afero.Fs, logger *zap.Logger, controller *Controller) *Writer {
	return &Writer{
		engine:     eng,
		fs:         fs,
		logger:     logger,
		controller: controller,
		seen:       make(map[string]bool),
	}
}

// Add appends a file or directory. Directories are expanded by the engine.
func (w *Writer) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve source %s: %w", path, err)
	}
	if w.seen[abs] {
		return fmt.Errorf("%w: %s", ErrDuplicateSource, abs)
	}
	if _, err := w.fs.Stat(abs); err != nil {
		return fmt.Errorf("failed to stat source %s: %w: %w", path, ErrStreamIO, err)
	}
	w.seen[abs] = true
	w.sources = append(w.sources, abs)
	return nil
}

// Sources returns the sources in the order they were added.
func (w *Writer) Sources() []string {
	return append([]string(nil), w.sources...)
}

// SetOptions captures the options used by Save. Later changes to the
// caller's value do not affect the session.
func (w *Writer) SetOptions(opts engine.WriteOptions) {
	w.options = &opts
}

// SetFilter sets the filter handed to the engine.
func (w *Writer) SetFilter(f engine.Filter) {
	w.filter = f
}

// Save writes every source into a new archive at tempPath. On any failure
// the temp file is left in place for the caller to clean up.
func (w *Writer) Save(ctx context.Context, tempPath string, guard *PasswordGuard, sink ProgressSink) (err error) {
	if w.engine == nil || w.fs == nil {
		return fmt.Errorf("engine and filesystem are required: %w", ErrContractViolation)
	}
	if w.options == nil {
		return fmt.Errorf("compression options are not set: %w", ErrContractViolation)
	}
	if len(w.sources) == 0 {
		return fmt.Errorf("no sources added: %w", ErrContractViolation)
	}

	opts := *w.options
	if w.filter != nil {
		opts.Filter = w.filter
	}
	if opts.Encryption.Enabled() {
		if !opts.Format.SupportsEncryption() {
			return fmt.Errorf("format %s cannot be encrypted: %w", opts.Format, engine.ErrUnsupported)
		}
		if _, err := guard.Resolve(); err != nil {
			return fmt.Errorf("failed to resolve password: %w", err)
		}
	}

	handle, err := w.engine.Create(ctx, tempPath, opts)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	cb := &compressCallback{
		ctx:        ctx,
		fs:         w.fs,
		guard:      guard,
		controller: w.controller,
		progress:   progressOrNop(sink),
		failures:   make(map[int]error),
	}

	err = handle.Compress(ctx, w.sources, cb)
	if cerr := handle.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("failed to finalize archive: %w: %w", ErrStreamIO, cerr)
	}
	if err != nil {
		return errors.Join(fmt.Errorf("failed to compress: %w", err), cb.failure())
	}
	if err := cb.failure(); err != nil {
		w.logger.Warn("sources could not be archived", zap.Int("failed", len(cb.failures)))
		return err
	}
	return nil
}

// compressCallback is the engine.CompressCallback of one Save.
type compressCallback struct {
	ctx        context.Context
	fs         afero.Fs
	guard      *PasswordGuard
	controller *Controller
	progress   ProgressSink

	mu       sync.Mutex
	order    []int
	failures map[int]error
}

var _ engine.CompressCallback = (*compressCallback)(nil)

func (c *compressCallback) OpenInput(index int, item engine.Item) (io.ReadCloser, error) {
	f, err := c.fs.Open(item.Source)
	if err != nil {
		c.fail(index, &EntryError{Index: index, Path: item.Path, Err: fmt.Errorf("%w: %w", ErrStreamIO, err)})
		return nil, err
	}
	return &sourceFile{File: f}, nil
}

func (c *compressCallback) SetProgress(done, total int64) error {
	c.progress.Report(done, total)
	return c.controller.Checkpoint(c.ctx)
}

func (c *compressCallback) Password() (string, bool) {
	return c.guard.engineAnswer()
}

func (c *compressCallback) SetOperationResult(index int, result engine.OperationResult) {
	if result == engine.ResultOK {
		return
	}
	c.fail(index, &EntryError{Index: index, Err: result.Err()})
}

func (c *compressCallback) fail(index int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.failures[index]; ok {
		return
	}
	c.order = append(c.order, index)
	c.failures[index] = err
}

func (c *compressCallback) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	errs := make([]error, 0, len(c.order))
	for _, index := range c.order {
		errs = append(errs, c.failures[index])
	}
	return errors.Join(errs...)
}

// sourceFile marks read failures as local stream errors.
type sourceFile struct {
	afero.File
}

func (s *sourceFile) Read(p []byte) (int, error) {
	n, err := s.File.Read(p)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: %w", ErrStreamIO, err)
	}
	return n, err
}
