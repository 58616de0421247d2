package codecs

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/spf13/afero"
	"github.com/ulikunitz/xz"
	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/engine"
)

// TarCodec reads and writes tar archives wrapped in gzip, zstd, lz4, xz or
// no stream compression.
type TarCodec struct {
	fs     afero.Fs
	logger *zap.Logger
}

// NewTar returns a factory for the tar codec.
func NewTar() engine.CodecFactory {
	return func(logger *zap.Logger, fs afero.Fs) engine.Codec {
		return &TarCodec{fs: fs, logger: logger.Named("tar")}
	}
}

func (c *TarCodec) Format() engine.Format {
	return engine.FormatTar
}

// newCompressor wraps w with the stream compression for method.
// If method is MethodDefault, gzip is used.
func newCompressor(w io.Writer, method engine.Method, level engine.Level, threads int) (io.WriteCloser, error) {
	switch method.Resolve(engine.FormatTar) {
	case engine.MethodGzip:
		gw, err := gzip.NewWriterLevel(w, flateLevel(level))
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		return gw, nil
	case engine.MethodZstd:
		zw, err := zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstdLevel(level)),
			zstd.WithEncoderConcurrency(threads),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return zw, nil
	case engine.MethodLZ4:
		lw := lz4.NewWriter(w)
		if err := lw.Apply(lz4.CompressionLevelOption(lz4Level(level)), lz4.ConcurrencyOption(threads)); err != nil {
			return nil, fmt.Errorf("failed to configure lz4 writer: %w", err)
		}
		return lw, nil
	case engine.MethodXZ:
		cfg := xz.WriterConfig{}
		if level >= engine.LevelHigh {
			cfg.DictCap = 64 << 20
		}
		xw, err := cfg.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		return xw, nil
	case engine.MethodCopy:
		return &nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("tar compression %s: %w", method, engine.ErrUnsupported)
	}
}

// newDecompressor sniffs the stream compression of r.
func newDecompressor(r io.Reader) (io.Reader, func() error, engine.Method, error) {
	br := bufio.NewReader(r)
	header, _ := br.Peek(6)
	method := engine.DetectMethod(header)
	nop := func() error { return nil }

	switch method {
	case engine.MethodGzip:
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, method, fmt.Errorf("failed to read gzip stream: %w", err)
		}
		return gr, gr.Close, method, nil
	case engine.MethodZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, nil, method, fmt.Errorf("failed to read zstd stream: %w", err)
		}
		return zr, func() error { zr.Close(); return nil }, method, nil
	case engine.MethodLZ4:
		return lz4.NewReader(br), nop, method, nil
	case engine.MethodXZ:
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, nil, method, fmt.Errorf("failed to read xz stream: %w", err)
		}
		return xr, nop, method, nil
	default:
		return br, nop, engine.MethodCopy, nil
	}
}

// Create opens a tar archive for writing at path.
func (c *TarCodec) Create(_ context.Context, path string, opts engine.WriteOptions) (engine.Writer, error) {
	f, err := c.fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	compressor, err := newCompressor(f, opts.Method, opts.Level, opts.Threads)
	if err != nil {
		return nil, errors.Join(err, f.Close())
	}

	return &tarWriter{
		codec:      c,
		file:       f,
		compressor: compressor,
		tw:         tar.NewWriter(compressor),
		opts:       opts,
	}, nil
}

type tarWriter struct {
	codec      *TarCodec
	file       afero.File
	compressor io.WriteCloser
	tw         *tar.Writer
	opts       engine.WriteOptions
	closed     bool
}

func (w *tarWriter) Compress(ctx context.Context, sources []string, cb engine.CompressCallback) error {
	if w.closed {
		return fmt.Errorf("tar writer is closed")
	}
	items, err := engine.ExpandSources(w.codec.fs, sources, w.opts.Filter)
	if err != nil {
		return err
	}
	w.codec.logger.Debug("compressing", zap.Int("items", len(items)))
	return compressItems(ctx, items, cb, w.add)
}

func (w *tarWriter) add(item engine.Item, data io.Reader) error {
	header := &tar.Header{
		Name:    item.Path,
		Mode:    int64(item.Mode.Perm()),
		ModTime: item.Modified,
	}
	if item.IsDir {
		header.Typeflag = tar.TypeDir
		header.Name = strings.TrimSuffix(item.Path, "/") + "/"
	} else {
		header.Typeflag = tar.TypeReg
		header.Size = item.Size
	}

	if err := w.tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header: %w", err)
	}
	if item.IsDir {
		return nil
	}
	if err := copyExact(w.tw, data, item.Size); err != nil {
		return fmt.Errorf("failed to write tar content: %w", err)
	}
	return nil
}

func (w *tarWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	// Close tar writer first so the trailer is compressed too.
	err := w.tw.Close()
	if err != nil {
		err = fmt.Errorf("failed to close tar writer: %w", err)
	}
	if cerr := w.compressor.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("failed to close compressor: %w", cerr))
	}
	return errors.Join(err, w.file.Close())
}

type tarEntry struct {
	name     string
	typeflag byte
	size     int64
	mode     fs.FileMode
	modified time.Time
}

func (e tarEntry) isDir() bool {
	return e.typeflag == tar.TypeDir
}

// Open indexes the tar archive at path. Extraction re-reads the stream.
func (c *TarCodec) Open(ctx context.Context, path string) (engine.Reader, error) {
	r := &tarReader{codec: c, path: path}
	err := r.scan(ctx, func(_ int, hdr *tar.Header, _ io.Reader) error {
		r.entries = append(r.entries, tarEntry{
			name:     strings.TrimSuffix(hdr.Name, "/"),
			typeflag: hdr.Typeflag,
			size:     hdr.Size,
			mode:     fs.FileMode(hdr.Mode).Perm(),
			modified: hdr.ModTime,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("indexed tar archive",
		zap.String("path", path),
		zap.Int("entries", len(r.entries)),
		zap.Stringer("compression", r.method),
	)
	return r, nil
}

type tarReader struct {
	codec   *TarCodec
	path    string
	method  engine.Method
	entries []tarEntry
}

// scan streams the archive and calls fn for every entry header in order.
func (r *tarReader) scan(ctx context.Context, fn func(index int, hdr *tar.Header, data io.Reader) error) (err error) {
	f, err := r.codec.fs.Open(r.path)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	stream, closeStream, method, err := newDecompressor(f)
	if err != nil {
		return fmt.Errorf("%w: %w", engine.ErrDataError, err)
	}
	defer func() {
		err = errors.Join(err, closeStream())
	}()
	r.method = method

	tr := tar.NewReader(stream)
	for index := 0; ; {
		if err := checkContext(ctx); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar header: %w: %w", engine.ErrDataError, err)
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		if err := fn(index, hdr, tr); err != nil {
			return err
		}
		index++
	}
}

func (r *tarReader) Format() engine.Format {
	return engine.FormatTar
}

func (r *tarReader) EntryCount() int {
	return len(r.entries)
}

func (r *tarReader) Property(index int, id engine.PropID) (engine.Value, error) {
	if err := engine.CheckIndex(index, len(r.entries)); err != nil {
		return engine.Value{}, err
	}
	e := r.entries[index]

	switch id {
	case engine.PropPath:
		return engine.StringValue(e.name), nil
	case engine.PropIsDirectory:
		return engine.BoolValue(e.isDir()), nil
	case engine.PropSize:
		return engine.Int64Value(e.size), nil
	case engine.PropModified:
		if e.modified.IsZero() {
			return engine.EmptyValue(), nil
		}
		return engine.Int64Value(e.modified.Unix()), nil
	case engine.PropEncrypted:
		return engine.BoolValue(false), nil
	case engine.PropMode:
		return engine.Int64Value(int64(e.mode)), nil
	default:
		return engine.EmptyValue(), nil
	}
}

// errStopScan ends a scan once every requested entry was seen.
var errStopScan = errors.New("stop scan")

func (r *tarReader) Extract(ctx context.Context, indices []int, cb engine.ExtractCallback) error {
	indices, err := resolveIndices(indices, len(r.entries))
	if err != nil {
		return err
	}

	p := &progress{cb: cb}
	wanted := make(map[int]bool, len(indices))
	last := -1
	for _, i := range indices {
		wanted[i] = true
		p.total += r.entries[i].size
		last = max(last, i)
	}
	if len(wanted) == 0 {
		return nil
	}

	err = r.scan(ctx, func(index int, hdr *tar.Header, data io.Reader) error {
		if !wanted[index] {
			return nil
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			cb.SetOperationResult(index, engine.ResultOK)
		case tar.TypeReg:
			err := extractEntry(cb, p, index, func() (io.ReadCloser, engine.OperationResult, error) {
				return io.NopCloser(data), engine.ResultOK, nil
			})
			if err != nil {
				return err
			}
		default:
			cb.SetOperationResult(index, engine.ResultUnsupported)
		}
		if index == last {
			return errStopScan
		}
		return nil
	})
	if errors.Is(err, errStopScan) {
		return nil
	}
	return err
}

func (r *tarReader) Close() error {
	return nil
}
