package sinks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
)

// FolderSink mirrors archives into a directory. Each copy lands under a
// temporary name and is renamed once complete, so the folder never shows a
// half-written archive.
type FolderSink struct {
	fs afero.Fs
}

// NewFolderSink roots a sink at dir on base, creating dir.
func NewFolderSink(base afero.Fs, dir string) (Sink, error) {
	root := filepath.Clean(dir)
	if err := base.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create publish folder %s: %w", root, err)
	}
	return &FolderSink{fs: afero.NewBasePathFs(base, root)}, nil
}

func (s *FolderSink) Name() string {
	return fmt.Sprintf("folder(%s)", s.fs.Name())
}

func (s *FolderSink) Kind() string {
	return "folder"
}

func (s *FolderSink) Write(ctx context.Context, archive Archive, data io.Reader) error {
	dir := filepath.Dir(archive.Name)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".ice-publish-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary copy: %w", err)
	}
	n, err := io.Copy(tmp, data)
	err = errors.Join(err, tmp.Close())
	if err == nil && n != archive.Size {
		err = fmt.Errorf("copied %d of %d bytes: %w", n, archive.Size, io.ErrShortWrite)
	}
	if err == nil {
		err = s.fs.Rename(tmp.Name(), archive.Name)
	}
	if err != nil {
		_ = s.fs.Remove(tmp.Name())
		return fmt.Errorf("failed to copy %s: %w", archive.Name, err)
	}
	return nil
}

func (s *FolderSink) Close(ctx context.Context) error {
	return nil
}
