package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Codec reads and, for writable formats, creates archives of one format.
type Codec interface {
	Format() Format
	Open(ctx context.Context, path string) (Reader, error)
	Create(ctx context.Context, path string, opts WriteOptions) (Writer, error)
}

// CodecFactory builds a codec bound to a filesystem.
type CodecFactory func(logger *zap.Logger, fs afero.Fs) Codec

// Registry dispatches engine calls to the codec registered for each format.
// It implements Engine.
type Registry struct {
	mu     sync.RWMutex
	codecs map[Format]Codec
	fs     afero.Fs
	logger *zap.Logger
}

var _ Engine = (*Registry)(nil)

func NewRegistry(logger *zap.Logger, fs afero.Fs) *Registry {
	return &Registry{
		codecs: make(map[Format]Codec),
		fs:     fs,
		logger: logger,
	}
}

// Register builds a codec with the registry's filesystem and logger and
// registers it under the codec's format, replacing any previous one.
func (r *Registry) Register(factory CodecFactory) {
	codec := factory(r.logger.Named("codec"), r.fs)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[codec.Format()] = codec
}

func (r *Registry) codec(format Format) (Codec, error) {
	r.mu.RLock()
	codec, ok := r.codecs[format]
	available := r.availableFormats()
	r.mu.RUnlock()
	if !ok {
		return nil, &UnsupportedFormatError{Format: string(format), Available: available}
	}
	return codec, nil
}

// Open detects the format of the archive at path and opens it.
func (r *Registry) Open(ctx context.Context, path string) (Reader, error) {
	format, err := DetectFile(r.fs, path)
	if err != nil {
		return nil, err
	}
	codec, err := r.codec(format)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("opening archive", zap.String("path", path), zap.Stringer("format", format))
	return codec.Open(ctx, path)
}

// Create validates opts and creates a new archive at path.
func (r *Registry) Create(ctx context.Context, path string, opts WriteOptions) (Writer, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid write options: %w", err)
	}
	codec, err := r.codec(opts.Format)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("creating archive",
		zap.String("path", path),
		zap.Stringer("format", opts.Format),
		zap.Stringer("method", opts.Method.Resolve(opts.Format)),
		zap.Stringer("level", opts.Level),
		zap.Int("threads", opts.Threads),
	)
	return codec.Create(ctx, path, opts)
}

// Formats returns the registered formats in sorted order.
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.availableFormats(), func(s string, _ int) Format { return Format(s) })
}

func (r *Registry) availableFormats() []string {
	formats := lo.Map(lo.Keys(r.codecs), func(f Format, _ int) string { return string(f) })
	slices.Sort(formats)
	return formats
}
