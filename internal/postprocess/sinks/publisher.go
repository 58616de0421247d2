package sinks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	v1 "github.com/cubeice/ice/apis/v1"
	"github.com/cubeice/ice/internal/engine"
)

// Publisher copies a committed archive to every configured sink.
type Publisher struct {
	logger *zap.Logger
	fs     afero.Fs
	sinks  []Sink
}

func NewPublisher(logger *zap.Logger, fs afero.Fs, sinks ...Sink) *Publisher {
	return &Publisher{logger: logger, fs: fs, sinks: sinks}
}

// Empty reports whether there is nothing to publish to.
func (p *Publisher) Empty() bool {
	return len(p.sinks) == 0
}

// Publish sniffs the archive at path and writes it to each sink under its
// base name. A failing sink does not stop the others.
func (p *Publisher) Publish(ctx context.Context, path string) (err error) {
	f, err := p.fs.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	archive, err := describe(f, filepath.Base(path))
	if err != nil {
		return err
	}

	var errs []error
	for _, sink := range p.sinks {
		if err := sink.Write(ctx, archive, io.NewSectionReader(f, 0, archive.Size)); err != nil {
			p.logger.Warn("publish failed", zap.String("sink", sink.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		p.logger.Info("archive published",
			zap.String("sink", sink.Name()),
			zap.String("name", archive.Name),
			zap.Stringer("format", archive.Format),
			zap.Int64("size", archive.Size))
	}
	return errors.Join(errs...)
}

// describe reads the header of f to build its Archive descriptor.
func describe(f afero.File, name string) (Archive, error) {
	info, err := f.Stat()
	if err != nil {
		return Archive{}, fmt.Errorf("failed to stat archive: %w", err)
	}
	header := make([]byte, engine.HeaderSize)
	n, err := f.ReadAt(header, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return Archive{}, fmt.Errorf("failed to read archive header: %w", err)
	}
	format, err := engine.DetectFormat(header[:n])
	if err != nil {
		return Archive{}, fmt.Errorf("refusing to publish %s: %w", name, err)
	}
	return Archive{
		Name:   name,
		Format: format,
		Method: engine.DetectMethod(header[:n]),
		Size:   info.Size(),
	}, nil
}

// Close closes every sink.
func (p *Publisher) Close(ctx context.Context) error {
	var errs []error
	for _, sink := range p.sinks {
		if err := sink.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close sink %s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Build creates the sinks described by specs. Folder sinks write through
// base and stdout sinks write to stdout.
func Build(ctx context.Context, base afero.Fs, stdout io.Writer, specs []v1.PublishSpec) ([]Sink, error) {
	sinks := make([]Sink, 0, len(specs))
	for i, spec := range specs {
		sink, err := build(ctx, base, stdout, spec)
		if err != nil {
			return nil, fmt.Errorf("publish destination %d: %w", i, err)
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

func build(ctx context.Context, base afero.Fs, stdout io.Writer, spec v1.PublishSpec) (Sink, error) {
	switch {
	case spec.Folder != nil:
		return NewFolderSink(base, spec.Folder.Path)
	case spec.S3 != nil:
		return NewS3Sink(ctx, s3Config(spec.S3))
	case spec.Stdout != nil:
		return NewStreamSink(stdout), nil
	default:
		return nil, errors.New("no destination type specified")
	}
}

func s3Config(spec *v1.S3Spec) S3Config {
	cfg := S3Config{
		Bucket:         spec.Bucket,
		ForcePathStyle: spec.ForcePathStyle,
		Timestamp:      spec.Timestamp,
		ByFormat:       spec.ByFormat,
	}
	if spec.Region != nil {
		cfg.Region = *spec.Region
	}
	if spec.Endpoint != nil {
		cfg.Endpoint = *spec.Endpoint
	}
	if spec.Prefix != nil {
		cfg.Prefix = *spec.Prefix
	}
	if spec.Credentials != nil {
		cfg.AccessKeyID = spec.Credentials.AccessKeyID
		cfg.SecretAccessKey = spec.Credentials.SecretAccessKey
	}
	return cfg
}
