package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrTypeMismatch is returned when a property value is decoded into a
	// representation that disagrees with its tag.
	ErrTypeMismatch = errors.New("property type mismatch")

	// ErrIndexOutOfRange is returned when an entry index is outside
	// [0, EntryCount) for the open handle.
	ErrIndexOutOfRange = errors.New("entry index out of range")

	// ErrPasswordRequired is returned when an encrypted entry is processed
	// without a password.
	ErrPasswordRequired = errors.New("password required")

	// ErrPasswordIncorrect is returned when the supplied password does not
	// decrypt an entry.
	ErrPasswordIncorrect = errors.New("password incorrect")

	// ErrCancelled is returned when an operation was cancelled at a
	// cooperative checkpoint or by a password prompt.
	ErrCancelled = errors.New("operation cancelled")

	// ErrUnsupported is returned for formats, methods or entries the codec
	// cannot handle.
	ErrUnsupported = errors.New("unsupported")

	// ErrDataError is returned when entry data is corrupt or fails its
	// integrity check.
	ErrDataError = errors.New("data error")
)

// TypeMismatchError is returned when a Value is projected into a kind that
// differs from its tag.
type TypeMismatchError struct {
	Property string
	Want     ValueKind
	Got      ValueKind
}

func (e *TypeMismatchError) Error() string {
	if e.Property == "" {
		return fmt.Sprintf("expected %s value, got %s", e.Want, e.Got)
	}
	return fmt.Sprintf("property %s: expected %s value, got %s", e.Property, e.Want, e.Got)
}

func (e *TypeMismatchError) Unwrap() error {
	return ErrTypeMismatch
}

// UnsupportedFormatError is returned when no codec is registered for a format.
type UnsupportedFormatError struct {
	Format    string   // the requested format
	Available []string // registered formats
}

func (e *UnsupportedFormatError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unsupported archive format %q: no codecs registered", e.Format)
	}
	return fmt.Sprintf("unsupported archive format %q (available: %v)", e.Format, e.Available)
}

func (e *UnsupportedFormatError) Unwrap() error {
	return ErrUnsupported
}
