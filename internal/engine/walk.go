package engine

import (
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// ExpandSources walks every source and returns the items to archive.
// Directories are emitted before their children and excluded directories
// are not descended into.
func ExpandSources(afs afero.Fs, sources []string, filter Filter) ([]Item, error) {
	var items []Item
	for _, source := range sources {
		base := filepath.Dir(filepath.Clean(source))
		err := afero.Walk(afs, source, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(base, path)
			if err != nil {
				return fmt.Errorf("failed to compute archive name for %s: %w", path, err)
			}
			item := Item{
				Path:     filepath.ToSlash(rel),
				Source:   path,
				IsDir:    info.IsDir(),
				Mode:     info.Mode().Perm(),
				Modified: info.ModTime(),
			}
			if !item.IsDir {
				item.Size = info.Size()
			}
			if filter != nil && filter.Exclude(item) {
				if item.IsDir {
					return filepath.SkipDir
				}
				return nil
			}
			items = append(items, item)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk source %s: %w", source, err)
		}
	}
	return items, nil
}

// TotalSize sums the sizes of file items.
func TotalSize(items []Item) int64 {
	var total int64
	for _, item := range items {
		total += item.Size
	}
	return total
}

// DetectFile sniffs the format of the archive stored at path.
func DetectFile(afs afero.Fs, path string) (Format, error) {
	f, err := afs.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("failed to read archive header: %w", err)
	}
	return DetectFormat(header[:n])
}
