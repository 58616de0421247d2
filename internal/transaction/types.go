// Package transaction runs compress and extract transactions: it resolves
// options and destinations through collaborators, drives the archive
// session and commits the result.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/cubeice/ice/internal/engine"
)

// ErrCommitFailure is returned when the finished temp archive could not be
// renamed onto the destination. The destination keeps its prior state.
var ErrCommitFailure = errors.New("commit failed")

// Operation is the kind of transaction a request belongs to.
type Operation int

const (
	OperationCompress Operation = iota
	OperationExtract
)

func (o Operation) String() string {
	if o == OperationExtract {
		return "extract"
	}
	return "compress"
}

// Request is what the user asked for.
type Request struct {
	// Operation is set by the facade running the request.
	Operation Operation
	// Sources are kept in order. Extraction takes exactly one archive.
	Sources []string
	// Format is the requested archive format; empty defers to the runtime
	// options.
	Format engine.Format
	// Mail hands the finished archive to the mail collaborator.
	Mail bool
	// Password asks for the archive to be password protected.
	Password bool
}

// RuntimeOptions are fixed for the whole transaction once resolved.
type RuntimeOptions struct {
	Format     engine.Format
	Method     engine.Method
	Level      engine.Level
	Encryption engine.Encryption
	Threads    int
	Filter     engine.Filter
	// Password, when set, is used without asking.
	Password string
}

// WriteOptions returns the engine options for compression.
func (o RuntimeOptions) WriteOptions() engine.WriteOptions {
	return engine.WriteOptions{
		Format:     o.Format,
		Method:     o.Method,
		Level:      o.Level,
		Encryption: o.Encryption,
		Threads:    max(o.Threads, 1),
		Filter:     o.Filter,
	}
}

// Conflict is how an existing destination is handled.
type Conflict int

const (
	// ConflictNone means the destination did not exist.
	ConflictNone Conflict = iota
	ConflictOverwrite
	ConflictRename
	ConflictCancel
)

func (c Conflict) String() string {
	switch c {
	case ConflictNone:
		return "none"
	case ConflictOverwrite:
		return "overwrite"
	case ConflictRename:
		return "rename"
	case ConflictCancel:
		return "cancel"
	default:
		return fmt.Sprintf("conflict(%d)", int(c))
	}
}

// Destination is where a transaction writes.
type Destination struct {
	// Path is the final archive for compression or the target directory
	// for extraction.
	Path string
	// Temp is the working archive, next to Path. Extraction has none.
	Temp string
	// Conflict records how an existing Path was resolved.
	Conflict Conflict
}

// OpenPolicy controls opening the containing folder after success.
type OpenPolicy int

const (
	OpenNone OpenPolicy = iota
	OpenAlways
	// OpenSkipDesktop opens the folder unless it is the user's desktop.
	OpenSkipDesktop
)

func (p OpenPolicy) String() string {
	switch p {
	case OpenNone:
		return "none"
	case OpenAlways:
		return "open"
	case OpenSkipDesktop:
		return "open_not_desktop"
	default:
		return fmt.Sprintf("open(%d)", int(p))
	}
}

// RootPolicy controls the folder extraction creates for the archive.
type RootPolicy int

const (
	// RootAuto creates a folder unless the archive has one top-level entry.
	RootAuto RootPolicy = iota
	RootCreate
	RootNone
)

// ExtractOptions control how an archive is laid out on disk.
type ExtractOptions struct {
	Root RootPolicy
	// RestoreMetadata applies stored modification times and permissions.
	RestoreMetadata bool
}

// SelectionResolver decides the destination. suggested is the default
// archive path for compression or target directory for extraction. It may
// prompt when the destination exists.
type SelectionResolver interface {
	Select(ctx context.Context, req Request, suggested string) (Destination, error)
}

// RuntimeResolver resolves the options of a transaction.
type RuntimeResolver interface {
	Resolve(ctx context.Context, req Request) (RuntimeOptions, error)
}

// PostProcessor performs the desktop integration after a successful
// transaction.
type PostProcessor interface {
	OpenFolder(ctx context.Context, path string, policy OpenPolicy) error
	SendMail(ctx context.Context, path string) error
}

// Publisher copies a committed archive to further destinations.
type Publisher interface {
	Publish(ctx context.Context, path string) error
}

const tempPrefix = ".ice-"

// TempPath returns a reserved working path in the directory of final.
func TempPath(final string) string {
	return filepath.Join(filepath.Dir(final), tempPrefix+uuid.NewString()+".tmp")
}
