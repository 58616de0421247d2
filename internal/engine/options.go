package engine

import (
	"fmt"
	"io/fs"
	"time"
)

// Item is one file or directory produced by expanding the sources of a
// compression run.
type Item struct {
	// Path is the slash-separated name stored in the archive.
	Path string
	// Source is the path the data is read from.
	Source   string
	IsDir    bool
	Size     int64
	Mode     fs.FileMode
	Modified time.Time
}

// Filter decides which items are left out of an archive or an extraction.
type Filter interface {
	Exclude(item Item) bool
}

// WriteOptions configure an archive created through Engine.Create.
type WriteOptions struct {
	Format     Format
	Method     Method
	Level      Level
	Encryption Encryption
	// Threads bounds codec parallelism; must be at least 1.
	Threads int
	// Filter is optional.
	Filter Filter
}

// Validate checks that the options describe an archive a codec can write.
func (o WriteOptions) Validate() error {
	if !o.Format.Writable() {
		return fmt.Errorf("format %s cannot be written: %w", o.Format, ErrUnsupported)
	}
	if o.Threads < 1 {
		return fmt.Errorf("thread count must be at least 1, got %d", o.Threads)
	}
	if o.Level < LevelNone || o.Level > LevelUltra {
		return fmt.Errorf("invalid compression level %d", int(o.Level))
	}
	if o.Encryption.Enabled() && !o.Format.SupportsEncryption() {
		return fmt.Errorf("format %s does not support encryption: %w", o.Format, ErrUnsupported)
	}

	method := o.Method.Resolve(o.Format)
	switch o.Format {
	case FormatZip:
		switch method {
		case MethodCopy, MethodDeflate, MethodZstd:
		default:
			return fmt.Errorf("method %s is not available for zip: %w", method, ErrUnsupported)
		}
	case FormatTar:
		switch method {
		case MethodCopy, MethodGzip, MethodZstd, MethodLZ4, MethodXZ:
		default:
			return fmt.Errorf("method %s is not available for tar: %w", method, ErrUnsupported)
		}
	}
	return nil
}
