package codecs

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"filippo.io/age"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/engine"
)

// ZipCodec reads and writes zip archives. Deflate and zstd (method 93) are
// backed by klauspost/compress; encrypted entries are age streams.
type ZipCodec struct {
	fs     afero.Fs
	logger *zap.Logger
	config config
}

// NewZip returns a factory for the zip codec.
func NewZip(opts ...Option) engine.CodecFactory {
	cfg := newConfig(opts)
	return func(logger *zap.Logger, fs afero.Fs) engine.Codec {
		return &ZipCodec{fs: fs, logger: logger.Named("zip"), config: cfg}
	}
}

func (c *ZipCodec) Format() engine.Format {
	return engine.FormatZip
}

func zipMethod(m engine.Method) (uint16, error) {
	switch m {
	case engine.MethodCopy:
		return zip.Store, nil
	case engine.MethodDeflate:
		return zip.Deflate, nil
	case engine.MethodZstd:
		return zstd.ZipMethodWinZip, nil
	default:
		return 0, fmt.Errorf("zip method %s: %w", m, engine.ErrUnsupported)
	}
}

func zipCompressor(method uint16, level engine.Level, threads int) (zip.Compressor, error) {
	switch method {
	case zip.Store:
		return func(w io.Writer) (io.WriteCloser, error) {
			return &nopWriteCloser{w}, nil
		}, nil
	case zip.Deflate:
		return func(w io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(w, flateLevel(level))
		}, nil
	case zstd.ZipMethodWinZip:
		return zstd.ZipCompressor(
			zstd.WithEncoderLevel(zstdLevel(level)),
			zstd.WithEncoderConcurrency(threads),
		), nil
	default:
		return nil, fmt.Errorf("zip method %d: %w", method, engine.ErrUnsupported)
	}
}

func zipDecompressor(method uint16) (zip.Decompressor, error) {
	switch method {
	case zip.Store:
		return io.NopCloser, nil
	case zip.Deflate:
		return flate.NewReader, nil
	case zstd.ZipMethodWinZip:
		return zstd.ZipDecompressor(), nil
	default:
		return nil, fmt.Errorf("zip method %d: %w", method, engine.ErrUnsupported)
	}
}

// Create opens a zip archive for writing at path.
func (c *ZipCodec) Create(_ context.Context, path string, opts engine.WriteOptions) (engine.Writer, error) {
	method := opts.Method.Resolve(engine.FormatZip)
	if opts.Level == engine.LevelNone {
		method = engine.MethodCopy
	}
	zm, err := zipMethod(method)
	if err != nil {
		return nil, err
	}

	f, err := c.fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flateLevel(opts.Level))
	})
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor(
		zstd.WithEncoderLevel(zstdLevel(opts.Level)),
		zstd.WithEncoderConcurrency(opts.Threads),
	))

	return &zipWriter{
		codec:  c,
		file:   f,
		zw:     zw,
		method: zm,
		opts:   opts,
	}, nil
}

type zipWriter struct {
	codec  *ZipCodec
	file   afero.File
	zw     *zip.Writer
	method uint16
	opts   engine.WriteOptions
	closed bool

	recipient *age.ScryptRecipient
}

func (w *zipWriter) Compress(ctx context.Context, sources []string, cb engine.CompressCallback) error {
	if w.closed {
		return fmt.Errorf("zip writer is closed")
	}

	if w.opts.Encryption.Enabled() && w.recipient == nil {
		var pw passwordCache
		password, err := pw.get(cb)
		if err != nil {
			return err
		}
		recipient, err := age.NewScryptRecipient(password)
		if err != nil {
			return fmt.Errorf("failed to derive encryption key: %w", err)
		}
		recipient.SetWorkFactor(w.codec.config.scryptWorkFactor)
		w.recipient = recipient
	}

	items, err := engine.ExpandSources(w.codec.fs, sources, w.opts.Filter)
	if err != nil {
		return err
	}
	w.codec.logger.Debug("compressing",
		zap.Int("items", len(items)),
		zap.Bool("encrypted", w.recipient != nil),
	)
	return compressItems(ctx, items, cb, w.add)
}

func (w *zipWriter) add(item engine.Item, data io.Reader) error {
	hdr := &zip.FileHeader{
		Name:     item.Path,
		Method:   w.method,
		Modified: item.Modified,
	}

	if item.IsDir {
		hdr.Name = strings.TrimSuffix(item.Path, "/") + "/"
		hdr.Method = zip.Store
		hdr.SetMode(item.Mode | fs.ModeDir)
		_, err := w.zw.CreateHeader(hdr)
		return err
	}
	hdr.SetMode(item.Mode)

	if w.recipient == nil {
		ew, err := w.zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("failed to write zip header: %w", err)
		}
		return copyExact(ew, data, item.Size)
	}

	hdr.Method = zip.Store
	hdr.Extra = appendSealedExtra(hdr.Extra, sealedEntry{method: w.method, size: uint64(item.Size)})
	ew, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("failed to write zip header: %w", err)
	}
	return w.sealTo(ew, data, item.Size)
}

// sealTo compresses data with the configured method and encrypts the
// compressed stream.
func (w *zipWriter) sealTo(dst io.Writer, data io.Reader, size int64) (err error) {
	enc, err := age.Encrypt(dst, w.recipient)
	if err != nil {
		return fmt.Errorf("failed to start encryption: %w", err)
	}
	compress, err := zipCompressor(w.method, w.opts.Level, w.opts.Threads)
	if err != nil {
		return err
	}
	cw, err := compress(enc)
	if err != nil {
		return fmt.Errorf("failed to start compression: %w", err)
	}
	if err := copyExact(cw, data, size); err != nil {
		return err
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("failed to flush compressor: %w", err)
	}
	return enc.Close()
}

func (w *zipWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return errors.Join(w.zw.Close(), w.file.Close())
}

// Open reads the central directory of the zip archive at path.
func (c *ZipCodec) Open(_ context.Context, path string) (engine.Reader, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to stat archive: %w", err), f.Close())
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to read zip directory: %w: %w", engine.ErrDataError, err), f.Close())
	}
	zr.RegisterDecompressor(zip.Deflate, flate.NewReader)
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())

	sealed := make([]*sealedEntry, len(zr.File))
	for i, zf := range zr.File {
		if entry, ok := parseSealedExtra(zf.Extra); ok {
			sealed[i] = &entry
		}
	}

	return &zipReader{codec: c, file: f, zr: zr, sealed: sealed}, nil
}

type zipReader struct {
	codec  *ZipCodec
	file   afero.File
	zr     *zip.Reader
	sealed []*sealedEntry
}

func (r *zipReader) Format() engine.Format {
	return engine.FormatZip
}

func (r *zipReader) EntryCount() int {
	return len(r.zr.File)
}

func (r *zipReader) Property(index int, id engine.PropID) (engine.Value, error) {
	if err := engine.CheckIndex(index, len(r.zr.File)); err != nil {
		return engine.Value{}, err
	}
	zf := r.zr.File[index]
	sealed := r.sealed[index]

	switch id {
	case engine.PropPath:
		return engine.StringValue(strings.TrimSuffix(zf.Name, "/")), nil
	case engine.PropIsDirectory:
		return engine.BoolValue(zf.FileInfo().IsDir()), nil
	case engine.PropSize:
		if sealed != nil {
			return engine.Int64Value(int64(sealed.size)), nil
		}
		return engine.Int64Value(int64(zf.UncompressedSize64)), nil
	case engine.PropPackedSize:
		return engine.Int64Value(int64(zf.CompressedSize64)), nil
	case engine.PropModified:
		if zf.Modified.IsZero() {
			return engine.EmptyValue(), nil
		}
		return engine.Int64Value(zf.Modified.Unix()), nil
	case engine.PropEncrypted:
		return engine.BoolValue(sealed != nil), nil
	case engine.PropMode:
		return engine.Int64Value(int64(zf.Mode().Perm())), nil
	default:
		return engine.EmptyValue(), nil
	}
}

func (r *zipReader) Extract(ctx context.Context, indices []int, cb engine.ExtractCallback) error {
	indices, err := resolveIndices(indices, len(r.zr.File))
	if err != nil {
		return err
	}

	p := &progress{cb: cb}
	for _, i := range indices {
		if size, err := r.Property(i, engine.PropSize); err == nil {
			n, _ := size.AsInt64()
			p.total += n
		}
	}

	var pw passwordCache
	for _, i := range indices {
		if err := checkContext(ctx); err != nil {
			return err
		}
		zf := r.zr.File[i]
		if zf.FileInfo().IsDir() {
			cb.SetOperationResult(i, engine.ResultOK)
			continue
		}
		err := extractEntry(cb, p, i, func() (io.ReadCloser, engine.OperationResult, error) {
			return r.openEntry(i, cb, &pw)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *zipReader) openEntry(index int, cb engine.ExtractCallback, pw *passwordCache) (io.ReadCloser, engine.OperationResult, error) {
	zf := r.zr.File[index]
	rc, err := zf.Open()
	if errors.Is(err, zip.ErrAlgorithm) {
		return nil, engine.ResultUnsupported, nil
	}
	if err != nil {
		r.codec.logger.Debug("failed to open entry", zap.Int("index", index), zap.Error(err))
		return nil, engine.ResultDataError, nil
	}

	sealed := r.sealed[index]
	if sealed == nil {
		return rc, engine.ResultOK, nil
	}

	password, err := pw.get(cb)
	if err != nil {
		return nil, 0, errors.Join(err, rc.Close())
	}
	identity, err := age.NewScryptIdentity(password)
	if err != nil {
		return nil, 0, errors.Join(fmt.Errorf("failed to derive decryption key: %w", err), rc.Close())
	}

	plain, err := age.Decrypt(rc, identity)
	if err != nil {
		_ = rc.Close()
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, engine.ResultWrongPassword, nil
		}
		r.codec.logger.Debug("failed to decrypt entry", zap.Int("index", index), zap.Error(err))
		return nil, engine.ResultDataError, nil
	}

	decompress, err := zipDecompressor(sealed.method)
	if err != nil {
		_ = rc.Close()
		return nil, engine.ResultUnsupported, nil
	}
	dec := decompress(plain)
	return &multiCloser{Reader: dec, closers: []func() error{dec.Close, rc.Close}}, engine.ResultOK, nil
}

func (r *zipReader) Close() error {
	return r.file.Close()
}
