package archive

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/engine"
)

// EntryInfo is a snapshot of one entry's metadata.
type EntryInfo struct {
	Index     int
	Path      string
	IsDir     bool
	Size      int64
	Encrypted bool
	// Modified is zero when the codec does not record it.
	Modified time.Time
	// Mode is zero when the codec does not record it.
	Mode fs.FileMode
}

// Item describes the entry to an engine.Filter.
func (i EntryInfo) Item() engine.Item {
	return engine.Item{
		Path:     i.Path,
		IsDir:    i.IsDir,
		Size:     i.Size,
		Mode:     i.Mode,
		Modified: i.Modified,
	}
}

// Entry is one member of an open archive. It is only valid while its
// Reader is open, and every accessor reads through to the handle.
type Entry struct {
	reader *Reader
	index  int
}

func (e *Entry) Index() int {
	return e.index
}

func (e *Entry) Path() (string, error) {
	return e.reader.props.String(e.index, engine.PropPath)
}

func (e *Entry) IsDirectory() (bool, error) {
	return e.reader.props.Bool(e.index, engine.PropIsDirectory)
}

func (e *Entry) Size() (int64, error) {
	return e.reader.props.Int64(e.index, engine.PropSize)
}

// Encrypted reports false when the codec does not know.
func (e *Entry) Encrypted() (bool, error) {
	v, _, err := e.reader.props.OptionalBool(e.index, engine.PropEncrypted)
	return v, err
}

// Info reads every metadata property of the entry.
func (e *Entry) Info() (EntryInfo, error) {
	info := EntryInfo{Index: e.index}
	var err error
	if info.Path, err = e.Path(); err != nil {
		return EntryInfo{}, err
	}
	if info.IsDir, err = e.IsDirectory(); err != nil {
		return EntryInfo{}, err
	}
	if info.Size, err = e.Size(); err != nil {
		return EntryInfo{}, err
	}
	if info.Encrypted, err = e.Encrypted(); err != nil {
		return EntryInfo{}, err
	}

	modified, ok, err := e.reader.props.OptionalInt64(e.index, engine.PropModified)
	if err != nil {
		return EntryInfo{}, err
	}
	if ok {
		info.Modified = time.Unix(modified, 0)
	}
	mode, ok, err := e.reader.props.OptionalInt64(e.index, engine.PropMode)
	if err != nil {
		return EntryInfo{}, err
	}
	if ok {
		info.Mode = fs.FileMode(mode).Perm()
	}
	return info, nil
}

// Save writes the entry under dir. Directories are created with their
// parents. Files are streamed through a single-entry extraction; a file
// that fails part way is removed.
func (e *Entry) Save(ctx context.Context, dir string) error {
	info, err := e.Info()
	if err != nil {
		return err
	}
	dest, err := safeJoin(dir, info.Path)
	if err != nil {
		return &EntryError{Index: e.index, Path: info.Path, Err: err}
	}

	if info.IsDir {
		if err := e.reader.mkdirAll(dest); err != nil {
			return &EntryError{Index: e.index, Path: info.Path, Err: err}
		}
		return nil
	}
	if err := e.reader.mkdirAll(filepath.Dir(dest)); err != nil {
		return &EntryError{Index: e.index, Path: info.Path, Err: err}
	}

	t := &target{info: info, dest: dest}
	if err := e.reader.extract(ctx, []*target{t}); err != nil {
		return &EntryError{Index: e.index, Path: info.Path, Err: err}
	}
	if t.err != nil {
		return &EntryError{Index: e.index, Path: info.Path, Err: t.err}
	}
	e.reader.logger.Debug("saved entry", zap.Int("index", e.index), zap.String("path", dest))
	return nil
}

// restore applies stored metadata to a saved file. Failures are logged and
// ignored since the data itself is intact.
func (r *Reader) restore(t *target) {
	if !r.restoreMetadata {
		return
	}
	if t.info.Mode != 0 {
		if err := r.fs.Chmod(t.dest, t.info.Mode); err != nil {
			r.logger.Debug("failed to restore mode", zap.String("path", t.dest), zap.Error(err))
		}
	}
	if !t.info.Modified.IsZero() {
		if err := r.fs.Chtimes(t.dest, t.info.Modified, t.info.Modified); err != nil {
			r.logger.Debug("failed to restore mtime", zap.String("path", t.dest), zap.Error(err))
		}
	}
}
