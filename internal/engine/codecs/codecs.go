// Package codecs implements the archive formats behind engine.Engine.
package codecs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/cubeice/ice/internal/engine"
)

// Option configures the codecs built by RegisterAll.
type Option func(*config)

type config struct {
	scryptWorkFactor int
}

// WithScryptWorkFactor sets the log2 scrypt work factor used when
// encrypting zip entries. Lower values are only suitable for tests.
func WithScryptWorkFactor(logN int) Option {
	return func(c *config) {
		c.scryptWorkFactor = logN
	}
}

func newConfig(opts []Option) config {
	c := config{scryptWorkFactor: 18}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// RegisterAll registers the zip, tar and 7z codecs.
func RegisterAll(r *engine.Registry, opts ...Option) {
	r.Register(NewZip(opts...))
	r.Register(NewTar())
	r.Register(NewSevenZip())
}

// haltError carries an error returned by SetProgress through io.Copy.
type haltError struct {
	err error
}

func (e *haltError) Error() string { return e.err.Error() }
func (e *haltError) Unwrap() error { return e.err }

type progressCallback interface {
	SetProgress(done, total int64) error
}

type progress struct {
	cb    progressCallback
	done  int64
	total int64
}

func (p *progress) add(n int64) error {
	p.done += n
	if err := p.cb.SetProgress(p.done, p.total); err != nil {
		return &haltError{err: err}
	}
	return nil
}

type progressWriter struct {
	w io.Writer
	p *progress
}

func (pw *progressWriter) Write(b []byte) (int, error) {
	n, err := pw.w.Write(b)
	if n > 0 {
		if perr := pw.p.add(int64(n)); perr != nil {
			return n, perr
		}
	}
	return n, err
}

type progressReader struct {
	r io.Reader
	p *progress
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	if n > 0 {
		if perr := pr.p.add(int64(n)); perr != nil {
			return n, perr
		}
	}
	return n, err
}

// haltCause returns the error a callback used to stop the run, or nil.
func haltCause(err error) error {
	var halt *haltError
	if errors.As(err, &halt) {
		return halt.err
	}
	return nil
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", engine.ErrCancelled, err)
	}
	return nil
}

// passwordCache asks the callback for a password once per run.
type passwordCache struct {
	value    string
	resolved bool
}

func (c *passwordCache) get(cb interface{ Password() (string, bool) }) (string, error) {
	if c.resolved {
		return c.value, nil
	}
	value, cancel := cb.Password()
	if cancel {
		return "", fmt.Errorf("password prompt: %w", engine.ErrCancelled)
	}
	if value == "" {
		return "", engine.ErrPasswordRequired
	}
	c.value, c.resolved = value, true
	return value, nil
}

// openFunc opens the plain data of an entry. A non-OK result is reported
// for the entry; an error halts the whole run.
type openFunc func() (io.ReadCloser, engine.OperationResult, error)

// extractEntry streams one entry into the output provided by the callback.
// Only halts requested by the callback are returned as errors; every other
// failure becomes the entry's result so the remaining entries still run.
func extractEntry(cb engine.ExtractCallback, p *progress, index int, open openFunc) error {
	rc, result, err := open()
	if err != nil {
		return err
	}
	if result != engine.ResultOK {
		cb.SetOperationResult(index, result)
		return nil
	}
	defer rc.Close()

	out, err := cb.OpenOutput(index)
	if err != nil {
		cb.SetOperationResult(index, engine.ResultDataError)
		return nil
	}
	if out == nil {
		return nil
	}

	_, err = io.Copy(&progressWriter{w: out, p: p}, rc)
	err = errors.Join(err, out.Close())
	if halt := haltCause(err); halt != nil {
		return halt
	}
	if err != nil {
		cb.SetOperationResult(index, engine.ResultDataError)
		return nil
	}
	cb.SetOperationResult(index, engine.ResultOK)
	return nil
}

// addFunc writes one item into the archive. data is nil for directories and
// yields exactly item.Size bytes otherwise.
type addFunc func(item engine.Item, data io.Reader) error

// compressItems drives the compress callback over items. Sources that
// cannot be opened are reported and skipped; any failure after an entry
// header was written is fatal.
func compressItems(ctx context.Context, items []engine.Item, cb engine.CompressCallback, add addFunc) error {
	p := &progress{cb: cb, total: engine.TotalSize(items)}
	for i, item := range items {
		if err := checkContext(ctx); err != nil {
			return err
		}
		if item.IsDir {
			if err := add(item, nil); err != nil {
				return fmt.Errorf("failed to add directory %s: %w", item.Path, err)
			}
			cb.SetOperationResult(i, engine.ResultOK)
			continue
		}

		rc, err := cb.OpenInput(i, item)
		if err != nil {
			cb.SetOperationResult(i, engine.ResultDataError)
			continue
		}
		err = add(item, &progressReader{r: rc, p: p})
		err = errors.Join(err, rc.Close())
		if halt := haltCause(err); halt != nil {
			return halt
		}
		if err != nil {
			cb.SetOperationResult(i, engine.ResultDataError)
			return fmt.Errorf("failed to add %s: %w", item.Path, err)
		}
		cb.SetOperationResult(i, engine.ResultOK)
	}
	return nil
}

// copyExact copies exactly n bytes, failing if the source ends early. An
// error returned together with the last bytes, such as a halt from the
// progress reader, is kept.
func copyExact(dst io.Writer, src io.Reader, n int64) error {
	written, err := io.Copy(dst, io.LimitReader(src, n))
	if err != nil {
		return err
	}
	if written < n {
		return fmt.Errorf("source shrank to %d of %d bytes: %w", written, n, io.ErrUnexpectedEOF)
	}
	return nil
}

func resolveIndices(indices []int, count int) ([]int, error) {
	if indices == nil {
		all := make([]int, count)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	for _, i := range indices {
		if err := engine.CheckIndex(i, count); err != nil {
			return nil, err
		}
	}
	return indices, nil
}

func flateLevel(l engine.Level) int {
	switch l {
	case engine.LevelNone:
		return flate.NoCompression
	case engine.LevelFast:
		return flate.BestSpeed
	case engine.LevelLow:
		return 3
	case engine.LevelNormal:
		return flate.DefaultCompression
	case engine.LevelHigh:
		return 7
	default:
		return flate.BestCompression
	}
}

func zstdLevel(l engine.Level) zstd.EncoderLevel {
	switch l {
	case engine.LevelNone, engine.LevelFast:
		return zstd.SpeedFastest
	case engine.LevelLow, engine.LevelNormal:
		return zstd.SpeedDefault
	case engine.LevelHigh:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

func lz4Level(l engine.Level) lz4.CompressionLevel {
	switch l {
	case engine.LevelNone, engine.LevelFast:
		return lz4.Fast
	case engine.LevelLow:
		return lz4.Level3
	case engine.LevelNormal:
		return lz4.Level5
	case engine.LevelHigh:
		return lz4.Level7
	default:
		return lz4.Level9
	}
}

// nopWriteCloser wraps a Writer to provide a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (n *nopWriteCloser) Close() error {
	return nil
}

// multiCloser closes a decoder chain from the outside in.
type multiCloser struct {
	io.Reader
	closers []func() error
}

func (m *multiCloser) Close() error {
	var err error
	for _, c := range m.closers {
		err = errors.Join(err, c())
	}
	return err
}
