// Package archive drives the codec engine for one transaction: typed entry
// metadata, saving entries to disk, the extraction and compression callback
// sessions, password negotiation and cooperative suspend/cancel.
package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrContractViolation is returned when a required collaborator or
	// setting is missing. It is raised before the engine is invoked.
	ErrContractViolation = errors.New("contract violation")

	// ErrStreamIO is returned when reading a local source or writing a
	// local destination fails.
	ErrStreamIO = errors.New("stream I/O failure")

	// ErrDuplicateSource is returned by Writer.Add for a path already added.
	ErrDuplicateSource = errors.New("duplicate source")

	// ErrUnsafePath is returned for entries whose path escapes the target
	// directory.
	ErrUnsafePath = errors.New("entry path escapes target directory")
)

// EntryError reports the failure of a single archive entry.
type EntryError struct {
	Index int
	Path  string
	Err   error
}

func (e *EntryError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("entry %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("entry %d (%s): %v", e.Index, e.Path, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}
