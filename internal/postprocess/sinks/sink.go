// Package sinks publishes committed archives to further destinations.
package sinks

import (
	"context"
	"io"

	"github.com/cubeice/ice/internal/engine"
)

// ISO8601Basic is a URL-safe timestamp format without colons, used for
// timestamped object keys.
const ISO8601Basic = "20060102T150405Z"

// Archive describes a committed archive handed to a sink. Format and Method
// are sniffed from the archive's leading bytes, not taken from its name.
type Archive struct {
	Name   string
	Format engine.Format
	// Method is the stream compression around a tar archive, MethodCopy
	// otherwise.
	Method engine.Method
	Size   int64
}

// ContentType is the media type of the archive's outermost layer.
func (a Archive) ContentType() string {
	switch a.Format {
	case engine.FormatZip:
		return "application/zip"
	case engine.FormatSevenZip:
		return "application/x-7z-compressed"
	case engine.FormatTar:
		switch a.Method {
		case engine.MethodGzip:
			return "application/gzip"
		case engine.MethodZstd:
			return "application/zstd"
		case engine.MethodLZ4:
			return "application/x-lz4"
		case engine.MethodXZ:
			return "application/x-xz"
		default:
			return "application/x-tar"
		}
	default:
		return "application/octet-stream"
	}
}

// Sink receives committed archives. data yields exactly archive.Size bytes.
type Sink interface {
	Name() string
	Kind() string
	Write(ctx context.Context, archive Archive, data io.Reader) error
	Close(ctx context.Context) error
}
