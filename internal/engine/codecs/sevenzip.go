package codecs

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/engine"
)

// SevenZipCodec reads 7z archives. Writing is not supported.
type SevenZipCodec struct {
	fs     afero.Fs
	logger *zap.Logger
}

// NewSevenZip returns a factory for the read-only 7z codec.
func NewSevenZip() engine.CodecFactory {
	return func(logger *zap.Logger, fs afero.Fs) engine.Codec {
		return &SevenZipCodec{fs: fs, logger: logger.Named("7z")}
	}
}

func (c *SevenZipCodec) Format() engine.Format {
	return engine.FormatSevenZip
}

func (c *SevenZipCodec) Create(context.Context, string, engine.WriteOptions) (engine.Writer, error) {
	return nil, fmt.Errorf("creating 7z archives: %w", engine.ErrUnsupported)
}

// Open reads the 7z headers. Archives with encrypted headers cannot be
// listed without a password and fail with ErrPasswordRequired.
func (c *SevenZipCodec) Open(_ context.Context, path string) (engine.Reader, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to stat archive: %w", err), f.Close())
	}

	zr, err := sevenzip.NewReader(f, info.Size())
	if err != nil {
		cause := engine.ErrDataError
		if isEncryptedError(err) {
			cause = engine.ErrPasswordRequired
		}
		return nil, errors.Join(fmt.Errorf("failed to read 7z headers: %w: %w", cause, err), f.Close())
	}

	return &sevenZipReader{codec: c, file: f, size: info.Size(), zr: zr}, nil
}

func isEncryptedError(err error) bool {
	var readErr *sevenzip.ReadError
	return errors.As(err, &readErr) && readErr.Encrypted
}

type sevenZipReader struct {
	codec *SevenZipCodec
	file  afero.File
	size  int64
	zr    *sevenzip.Reader
	// unlocked is set once zr was reopened with a password.
	unlocked bool
}

func (r *sevenZipReader) Format() engine.Format {
	return engine.FormatSevenZip
}

func (r *sevenZipReader) EntryCount() int {
	return len(r.zr.File)
}

func (r *sevenZipReader) Property(index int, id engine.PropID) (engine.Value, error) {
	if err := engine.CheckIndex(index, len(r.zr.File)); err != nil {
		return engine.Value{}, err
	}
	f := r.zr.File[index]

	switch id {
	case engine.PropPath:
		return engine.StringValue(strings.TrimSuffix(f.Name, "/")), nil
	case engine.PropIsDirectory:
		return engine.BoolValue(f.FileInfo().IsDir()), nil
	case engine.PropSize:
		return engine.Int64Value(int64(f.UncompressedSize)), nil //nolint:gosec // sizes fit in int64
	case engine.PropModified:
		if f.Modified.IsZero() {
			return engine.EmptyValue(), nil
		}
		return engine.Int64Value(f.Modified.Unix()), nil
	case engine.PropMode:
		return engine.Int64Value(int64(f.Mode().Perm())), nil
	default:
		// Packed size and encryption are per folder in 7z, not per entry.
		return engine.EmptyValue(), nil
	}
}

func (r *sevenZipReader) Extract(ctx context.Context, indices []int, cb engine.ExtractCallback) error {
	indices, err := resolveIndices(indices, len(r.zr.File))
	if err != nil {
		return err
	}

	p := &progress{cb: cb}
	for _, i := range indices {
		p.total += int64(r.zr.File[i].UncompressedSize) //nolint:gosec // sizes fit in int64
	}

	var pw passwordCache
	for _, i := range indices {
		if err := checkContext(ctx); err != nil {
			return err
		}
		if r.zr.File[i].FileInfo().IsDir() {
			cb.SetOperationResult(i, engine.ResultOK)
			continue
		}
		if err := r.extractFile(cb, p, &pw, i); err != nil {
			return err
		}
	}
	return nil
}

// extractFile writes one entry. 7z stores no per-entry encryption flag, so
// data that fails to decode or to match its checksum is taken as locked:
// the first time, the password is asked for and the entry retried.
func (r *sevenZipReader) extractFile(cb engine.ExtractCallback, p *progress, pw *passwordCache, index int) error {
	locked, err := r.copyFile(cb, p, index)
	if err != nil || !locked {
		return err
	}
	if !r.unlocked {
		if err := r.unlock(cb, pw); err != nil {
			return err
		}
		if locked, err = r.copyFile(cb, p, index); err != nil || !locked {
			return err
		}
	}
	cb.SetOperationResult(index, engine.ResultWrongPassword)
	return nil
}

// unlock reopens the archive with the password from the callback. A
// password that does not even open the headers leaves the reader as is;
// the entry is then reported with a wrong password.
func (r *sevenZipReader) unlock(cb engine.ExtractCallback, pw *passwordCache) error {
	password, err := pw.get(cb)
	if err != nil {
		return err
	}
	r.unlocked = true
	zr, err := sevenzip.NewReaderWithPassword(r.file, r.size, password)
	if err != nil {
		r.codec.logger.Debug("failed to reopen archive with password", zap.Error(err))
		return nil
	}
	r.zr = zr
	return nil
}

// copyFile streams one entry into its output and checks its CRC. It
// reports the entry's result unless the data looks locked. Only halts
// requested by the callback are returned as errors.
func (r *sevenZipReader) copyFile(cb engine.ExtractCallback, p *progress, index int) (locked bool, err error) {
	f := r.zr.File[index]
	rc, err := f.Open()
	if err != nil {
		if isEncryptedError(err) {
			return true, nil
		}
		r.codec.logger.Debug("failed to open entry", zap.Int("index", index), zap.Error(err))
		cb.SetOperationResult(index, engine.ResultDataError)
		return false, nil
	}
	defer rc.Close()

	out, err := cb.OpenOutput(index)
	if err != nil {
		cb.SetOperationResult(index, engine.ResultDataError)
		return false, nil
	}
	if out == nil {
		return false, nil
	}

	sum := crc32.NewIEEE()
	start := p.done
	_, err = io.Copy(&progressWriter{w: io.MultiWriter(out, sum), p: p}, rc)
	err = errors.Join(err, out.Close())
	if halt := haltCause(err); halt != nil {
		return false, halt
	}

	switch {
	case err != nil && isEncryptedError(err):
		locked = true
	case err != nil:
		r.codec.logger.Debug("failed to read entry", zap.Int("index", index), zap.Error(err))
		cb.SetOperationResult(index, engine.ResultDataError)
		return false, nil
	case hasCRC(f) && sum.Sum32() != f.CRC32:
		locked = true
	default:
		cb.SetOperationResult(index, engine.ResultOK)
		return false, nil
	}

	r.codec.logger.Debug("entry data did not decode", zap.Int("index", index), zap.Bool("unlocked", r.unlocked))
	p.done = start
	return true, nil
}

// hasCRC reports whether the archive recorded a checksum for f. Archives
// may omit digests, which leaves CRC32 zero for non-empty files.
func hasCRC(f *sevenzip.File) bool {
	return f.UncompressedSize == 0 || f.CRC32 != 0
}

func (r *sevenZipReader) Close() error {
	return r.file.Close()
}
