package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	v1 "github.com/cubeice/ice/apis/v1"
	"github.com/cubeice/ice/internal/engine"
	"github.com/cubeice/ice/internal/filter"
	"github.com/cubeice/ice/internal/transaction"
)

// Overrides are per-invocation values that take precedence over the
// document. Empty fields defer to it.
type Overrides struct {
	Format     string
	Method     string
	Level      string
	Encryption string
	Threads    int
	Password   string
	// Output is the archive path or target directory. An existing
	// directory receives the suggested name when compressing.
	Output   string
	Conflict string
	Open     string
}

// ConflictPrompt asks how to handle an existing destination.
type ConflictPrompt interface {
	ResolveConflict(ctx context.Context, path string) (transaction.Conflict, error)
}

// Resolver answers the selection and runtime questions of a transaction
// from the settings document.
type Resolver struct {
	logger    *zap.Logger
	fs        afero.Fs
	settings  v1.Settings
	overrides Overrides
	threads   int
	filter    *filter.Set
	prompt    ConflictPrompt
}

var (
	_ transaction.SelectionResolver = (*Resolver)(nil)
	_ transaction.RuntimeResolver   = (*Resolver)(nil)
)

// NewResolver builds a resolver. cpus is the thread count used when neither
// the document nor the overrides set one. prompt may be nil, in which case
// an "ask" conflict policy renames.
func NewResolver(logger *zap.Logger, afs afero.Fs, settings v1.Settings, overrides Overrides, cpus int, prompt ConflictPrompt) (*Resolver, error) {
	set, err := BuildFilter(logger, settings.Filter)
	if err != nil {
		return nil, err
	}
	threads := cpus
	if settings.Archive.Threads > 0 {
		threads = settings.Archive.Threads
	}
	if overrides.Threads > 0 {
		threads = overrides.Threads
	}
	return &Resolver{
		logger:    logger,
		fs:        afs,
		settings:  settings,
		overrides: overrides,
		threads:   max(threads, 1),
		filter:    set,
		prompt:    prompt,
	}, nil
}

// Resolve returns the runtime options for req. The request's format is
// used when no override names one.
func (r *Resolver) Resolve(_ context.Context, req transaction.Request) (transaction.RuntimeOptions, error) {
	a := r.settings.Archive
	opts := transaction.RuntimeOptions{
		Threads:  r.threads,
		Filter:   r.filter,
		Password: r.overrides.Password,
	}

	var err error
	switch {
	case r.overrides.Format != "":
		opts.Format, err = engine.ParseFormat(r.overrides.Format)
	case req.Format != "":
		opts.Format = req.Format
	default:
		opts.Format, err = engine.ParseFormat(first(a.Format, string(engine.FormatZip)))
	}
	if err != nil {
		return transaction.RuntimeOptions{}, err
	}
	if opts.Method, err = engine.ParseMethod(first(r.overrides.Method, a.Method)); err != nil {
		return transaction.RuntimeOptions{}, err
	}
	if opts.Level, err = engine.ParseLevel(first(r.overrides.Level, a.Level, engine.LevelUltra.String())); err != nil {
		return transaction.RuntimeOptions{}, err
	}
	if opts.Encryption, err = engine.ParseEncryption(first(r.overrides.Encryption, a.Encryption)); err != nil {
		return transaction.RuntimeOptions{}, err
	}

	// Document defaults the chosen format cannot honour fall back to the
	// format's own behaviour. Explicit overrides are left for the engine to
	// reject.
	if r.overrides.Method == "" && opts.Method != engine.MethodDefault && !methodFits(opts.Format, opts.Method) {
		r.logger.Debug("method does not fit format, using default", zap.Stringer("format", opts.Format), zap.Stringer("method", opts.Method))
		opts.Method = engine.MethodDefault
	}
	if r.overrides.Encryption == "" && opts.Encryption.Enabled() && !opts.Format.SupportsEncryption() {
		r.logger.Debug("format cannot be encrypted, disabling encryption", zap.Stringer("format", opts.Format))
		opts.Encryption = engine.EncryptionNone
	}
	return opts, nil
}

// Select decides the destination from the save location and conflict
// policy.
func (r *Resolver) Select(ctx context.Context, req transaction.Request, suggested string) (transaction.Destination, error) {
	path, err := r.location(req, suggested)
	if err != nil {
		return transaction.Destination{}, err
	}

	// Extracting next to the archive without a root folder merges into an
	// existing directory by construction.
	if req.Operation == transaction.OperationExtract && len(req.Sources) == 1 && path == filepath.Dir(req.Sources[0]) {
		return transaction.Destination{Path: path}, nil
	}

	if _, err := r.fs.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return transaction.Destination{Path: path}, nil
	} else if err != nil {
		return transaction.Destination{}, fmt.Errorf("failed to stat destination %s: %w", path, err)
	}

	conflict, err := r.conflict(ctx, path)
	if err != nil {
		return transaction.Destination{}, err
	}
	r.logger.Debug("destination exists", zap.String("destination", path), zap.Stringer("conflict", conflict))
	if conflict == transaction.ConflictRename {
		path = UniquePath(r.fs, path)
	}
	return transaction.Destination{Path: path, Conflict: conflict}, nil
}

func (r *Resolver) location(req transaction.Request, suggested string) (string, error) {
	if out := r.overrides.Output; out != "" {
		if req.Operation == transaction.OperationCompress {
			if info, err := r.fs.Stat(out); err == nil && info.IsDir() {
				return filepath.Join(out, filepath.Base(suggested)), nil
			}
		}
		return filepath.Abs(out)
	}

	switch r.settings.Archive.SaveLocation {
	case "", "source":
		return suggested, nil
	case "others":
		dir := r.settings.Archive.SaveDirectory
		if req.Operation == transaction.OperationExtract && len(req.Sources) == 1 && suggested == filepath.Dir(req.Sources[0]) {
			return dir, nil
		}
		return filepath.Join(dir, filepath.Base(suggested)), nil
	case "runtime":
		return "", errors.New("save location is chosen at runtime but no output was given")
	default:
		return "", fmt.Errorf("unknown save location %q", r.settings.Archive.SaveLocation)
	}
}

func (r *Resolver) conflict(ctx context.Context, path string) (transaction.Conflict, error) {
	switch policy := first(r.overrides.Conflict, r.settings.Archive.Conflict); policy {
	case "overwrite":
		return transaction.ConflictOverwrite, nil
	case "rename":
		return transaction.ConflictRename, nil
	case "cancel":
		return transaction.ConflictCancel, nil
	case "", "ask":
		if r.prompt == nil {
			return transaction.ConflictRename, nil
		}
		return r.prompt.ResolveConflict(ctx, path)
	default:
		return 0, fmt.Errorf("unknown conflict policy %q", policy)
	}
}

// CompressPost returns the post-processing options of compression.
func (r *Resolver) CompressPost() (transaction.PostOptions, error) {
	open, err := ParseOpenPolicy(first(r.overrides.Open, r.settings.Compress.OpenMethod))
	if err != nil {
		return transaction.PostOptions{}, err
	}
	return transaction.PostOptions{Open: open, DeleteOnMail: r.settings.Compress.DeleteOnMail}, nil
}

// ExtractPost returns the post-processing and layout options of extraction.
func (r *Resolver) ExtractPost() (transaction.PostOptions, transaction.ExtractOptions, error) {
	open, err := ParseOpenPolicy(first(r.overrides.Open, r.settings.Extract.OpenMethod))
	if err != nil {
		return transaction.PostOptions{}, transaction.ExtractOptions{}, err
	}
	root, err := ParseRootPolicy(r.settings.Extract.RootDirectory)
	if err != nil {
		return transaction.PostOptions{}, transaction.ExtractOptions{}, err
	}
	restore := r.settings.Extract.RestoreMetadata == nil || *r.settings.Extract.RestoreMetadata
	return transaction.PostOptions{Open: open}, transaction.ExtractOptions{Root: root, RestoreMetadata: restore}, nil
}

// ParseOpenPolicy parses none, open or open_not_desktop.
func ParseOpenPolicy(s string) (transaction.OpenPolicy, error) {
	switch s {
	case "", "none":
		return transaction.OpenNone, nil
	case "open":
		return transaction.OpenAlways, nil
	case "open_not_desktop":
		return transaction.OpenSkipDesktop, nil
	default:
		return 0, fmt.Errorf("unknown open method %q", s)
	}
}

// ParseRootPolicy parses auto, create or none.
func ParseRootPolicy(s string) (transaction.RootPolicy, error) {
	switch s {
	case "", "auto":
		return transaction.RootAuto, nil
	case "create":
		return transaction.RootCreate, nil
	case "none":
		return transaction.RootNone, nil
	default:
		return 0, fmt.Errorf("unknown root directory policy %q", s)
	}
}

// UniquePath appends " (n)" before the archive extension until the path is
// free.
func UniquePath(afs afero.Fs, path string) string {
	dir, base := filepath.Split(path)
	stem := engine.TrimExtension(base)
	ext := base[len(stem):]
	for n := 1; ; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if _, err := afs.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
	}
}

func methodFits(f engine.Format, m engine.Method) bool {
	return engine.WriteOptions{Format: f, Method: m, Threads: 1}.Validate() == nil
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
