package engine

import (
	"context"
	"fmt"
	"io"
)

// OperationResult is the terminal status a codec reports for one entry.
type OperationResult int

const (
	ResultOK OperationResult = iota
	ResultUnsupported
	ResultDataError
	ResultWrongPassword
)

func (r OperationResult) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultUnsupported:
		return "unsupported"
	case ResultDataError:
		return "data_error"
	case ResultWrongPassword:
		return "wrong_password"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Err maps a non-OK result to its sentinel error. ResultOK maps to nil.
func (r OperationResult) Err() error {
	switch r {
	case ResultOK:
		return nil
	case ResultUnsupported:
		return ErrUnsupported
	case ResultWrongPassword:
		return ErrPasswordIncorrect
	default:
		return ErrDataError
	}
}

// ExtractCallback is driven by a Reader during Extract, synchronously on the
// calling goroutine and in codec-determined order.
type ExtractCallback interface {
	// OpenOutput returns the sink for an entry. A nil writer with a nil error
	// skips the entry. The codec closes the writer once the entry is done.
	OpenOutput(index int) (io.WriteCloser, error)

	// SetProgress reports bytes processed so far. A non-nil error halts the
	// extraction and is returned from Extract.
	SetProgress(done, total int64) error

	// Password is called when an encrypted entry is met. cancel=true halts
	// the extraction with ErrCancelled.
	Password() (value string, cancel bool)

	// SetOperationResult reports the terminal status of an entry.
	SetOperationResult(index int, result OperationResult)
}

// CompressCallback is driven by a Writer during Compress.
type CompressCallback interface {
	// OpenInput returns the data of a file item. An error marks the item
	// failed without halting the rest of the run.
	OpenInput(index int, item Item) (io.ReadCloser, error)

	SetProgress(done, total int64) error

	Password() (value string, cancel bool)

	SetOperationResult(index int, result OperationResult)
}

// Reader is an open archive handle. Entry indices are dense and stable for
// the lifetime of the handle.
type Reader interface {
	Format() Format
	EntryCount() int
	// Property returns the tagged value of a property, or an empty Value if
	// the codec does not record it. Indices outside [0, EntryCount) fail with
	// ErrIndexOutOfRange.
	Property(index int, id PropID) (Value, error)
	// Extract streams the given entries through cb. A nil slice extracts
	// every entry.
	Extract(ctx context.Context, indices []int, cb ExtractCallback) error
	Close() error
}

// Writer is an archive handle opened for creation.
type Writer interface {
	// Compress expands sources, applies the configured filter and writes
	// every resulting item, pulling file data through cb.
	Compress(ctx context.Context, sources []string, cb CompressCallback) error
	// Close finalises the archive. It must be called even after a failed
	// Compress so the underlying file is released.
	Close() error
}

// Engine opens and creates archive handles.
type Engine interface {
	Open(ctx context.Context, path string) (Reader, error)
	Create(ctx context.Context, path string, opts WriteOptions) (Writer, error)
	Formats() []Format
}

// CheckIndex validates an entry index against a handle's entry count.
func CheckIndex(index, count int) error {
	if index < 0 || index >= count {
		return fmt.Errorf("index %d with %d entries: %w", index, count, ErrIndexOutOfRange)
	}
	return nil
}
