package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/engine"
)

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithPasswordGuard sets the guard consulted for encrypted entries.
func WithPasswordGuard(guard *PasswordGuard) ReaderOption {
	return func(r *Reader) { r.guard = guard }
}

// WithController makes extraction observe suspend and cancel requests.
func WithController(c *Controller) ReaderOption {
	return func(r *Reader) { r.controller = c }
}

// WithProgress sets the sink receiving extraction progress.
func WithProgress(sink ProgressSink) ReaderOption {
	return func(r *Reader) { r.progress = progressOrNop(sink) }
}

// WithFilter leaves entries matched by the filter out of SaveAll.
func WithFilter(f engine.Filter) ReaderOption {
	return func(r *Reader) { r.filter = f }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ReaderOption {
	return func(r *Reader) { r.logger = logger }
}

// WithRestoreMetadata controls whether saved files get their stored
// modification time and permission bits. It is on by default.
func WithRestoreMetadata(restore bool) ReaderOption {
	return func(r *Reader) { r.restoreMetadata = restore }
}

// Reader is an open archive together with the transaction state needed to
// extract it.
type Reader struct {
	path   string
	handle engine.Reader
	props  *PropertyAccessor
	fs     afero.Fs
	logger *zap.Logger

	guard           *PasswordGuard
	controller      *Controller
	progress        ProgressSink
	filter          engine.Filter
	restoreMetadata bool
}

// Open opens the archive at path through eng. Extracted files are written
// to fs.
func Open(ctx context.Context, eng engine.Engine, fs afero.Fs, path string, opts ...ReaderOption) (*Reader, error) {
	if eng == nil || fs == nil {
		return nil, fmt.Errorf("engine and filesystem are required: %w", ErrContractViolation)
	}
	r := &Reader{
		path:            path,
		fs:              fs,
		logger:          zap.NewNop(),
		progress:        nopProgress{},
		restoreMetadata: true,
	}
	for _, opt := range opts {
		opt(r)
	}

	handle, err := eng.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	r.handle = handle
	r.props = NewPropertyAccessor(handle)
	return r, nil
}

// Format returns the detected archive format.
func (r *Reader) Format() engine.Format {
	return r.handle.Format()
}

// Properties returns the accessor for raw typed metadata.
func (r *Reader) Properties() *PropertyAccessor {
	return r.props
}

// Count returns the number of entries.
func (r *Reader) Count() int {
	return r.props.Count()
}

// Entry returns the entry at index.
func (r *Reader) Entry(index int) (*Entry, error) {
	if err := engine.CheckIndex(index, r.Count()); err != nil {
		return nil, err
	}
	return &Entry{reader: r, index: index}, nil
}

// Entries returns every entry in index order.
func (r *Reader) Entries() []*Entry {
	return lo.Times(r.Count(), func(i int) *Entry {
		return &Entry{reader: r, index: i}
	})
}

// Infos reads the metadata of every entry.
func (r *Reader) Infos() ([]EntryInfo, error) {
	infos := make([]EntryInfo, 0, r.Count())
	for _, e := range r.Entries() {
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// SaveAll extracts every entry under dir. Directories are created first,
// shallowest first, then files are extracted in one engine pass. Entry
// failures do not stop the remaining entries; they are joined into the
// returned error. Cancellation and a missing password stop the pass.
func (r *Reader) SaveAll(ctx context.Context, dir string) error {
	infos, err := r.Infos()
	if err != nil {
		return err
	}
	if r.filter != nil {
		infos = lo.Reject(infos, func(info EntryInfo, _ int) bool {
			return r.filter.Exclude(info.Item())
		})
	}

	dirs, files := lo.FilterReject(infos, func(info EntryInfo, _ int) bool { return info.IsDir })
	slices.SortStableFunc(dirs, func(a, b EntryInfo) int {
		return depth(a.Path) - depth(b.Path)
	})

	var errs []error
	for _, info := range dirs {
		if err := r.controller.Checkpoint(ctx); err != nil {
			return err
		}
		dest, err := safeJoin(dir, info.Path)
		if err == nil {
			err = r.mkdirAll(dest)
		}
		if err != nil {
			errs = append(errs, &EntryError{Index: info.Index, Path: info.Path, Err: err})
		}
	}

	if len(files) > 0 {
		targets := make([]*target, 0, len(files))
		for _, info := range files {
			dest, err := safeJoin(dir, info.Path)
			if err != nil {
				errs = append(errs, &EntryError{Index: info.Index, Path: info.Path, Err: err})
				continue
			}
			targets = append(targets, &target{info: info, dest: dest})
		}
		if err := r.extract(ctx, targets); err != nil {
			return errors.Join(append(errs, err)...)
		}
		for _, t := range targets {
			if t.err != nil {
				errs = append(errs, &EntryError{Index: t.info.Index, Path: t.info.Path, Err: t.err})
			}
		}
	}

	err = errors.Join(errs...)
	if err != nil {
		r.logger.Warn("extraction finished with errors", zap.String("archive", r.path), zap.Int("failed", len(errs)))
	}
	return err
}

// extract runs one engine pass over targets. It returns an error only when
// the pass was halted; per-entry failures are left on each target.
func (r *Reader) extract(ctx context.Context, targets []*target) error {
	if len(targets) == 0 {
		return nil
	}
	cb := newExtractCallback(ctx, r, targets)
	indices := lo.Map(targets, func(t *target, _ int) int { return t.info.Index })

	err := r.handle.Extract(ctx, indices, cb)
	cb.finish(err)
	if err != nil {
		return fmt.Errorf("extraction halted: %w", err)
	}
	return nil
}

func (r *Reader) mkdirAll(path string) error {
	if err := r.fs.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrStreamIO, err)
	}
	return nil
}

// Close releases the archive handle.
func (r *Reader) Close() error {
	return r.handle.Close()
}

func depth(path string) int {
	return strings.Count(strings.Trim(path, "/"), "/")
}

// safeJoin joins an entry path to dir, refusing paths that leave dir.
func safeJoin(dir, entryPath string) (string, error) {
	cleanPath := filepath.Clean(filepath.FromSlash(entryPath))
	if filepath.IsAbs(cleanPath) || cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, entryPath)
	}

	fullPath := filepath.Join(dir, cleanPath)
	relativeCheck, err := filepath.Rel(dir, fullPath)
	if err != nil || strings.HasPrefix(relativeCheck, "..") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, entryPath)
	}
	return fullPath, nil
}
