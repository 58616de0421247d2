package transaction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/archive"
	"github.com/cubeice/ice/internal/engine"
)

// Collaborators are the pluggable parts of a transaction. Selector, Runtime
// and Passwords are required; the rest may be nil.
type Collaborators struct {
	Selector  SelectionResolver
	Runtime   RuntimeResolver
	Passwords archive.PasswordQuery
	Post      PostProcessor
	Publisher Publisher
	Progress  archive.ProgressSink
}

// PostOptions control the post-processing phase.
type PostOptions struct {
	Open OpenPolicy
	// DeleteOnMail removes the archive after it was handed to the mailer.
	DeleteOnMail bool
}

// CompressFacade turns a request into a committed archive.
type CompressFacade struct {
	engine     engine.Engine
	fs         afero.Fs
	logger     *zap.Logger
	collab     Collaborators
	post       PostOptions
	controller *archive.Controller
	machine    machine
}

func NewCompressFacade(eng engine.Engine, fs afero.Fs, logger *zap.Logger, controller *archive.Controller, collab Collaborators, post PostOptions) *CompressFacade {
	logger = logger.Named("compress")
	return &CompressFacade{
		engine:     eng,
		fs:         fs,
		logger:     logger,
		collab:     collab,
		post:       post,
		controller: controller,
		machine:    machine{logger: logger},
	}
}

// State returns the current phase.
func (f *CompressFacade) State() State {
	return f.machine.state
}

// Run executes one compress transaction. The returned error is the
// report's failure, if any. The temp archive of a failed transaction is
// left on disk.
func (f *CompressFacade) Run(ctx context.Context, req Request) (*Report, error) {
	if err := f.machine.reset(); err != nil {
		return nil, fmt.Errorf("%w: %w", archive.ErrContractViolation, err)
	}
	f.machine.advance(StatePreProcess)
	req.Operation = OperationCompress

	if err := f.checkContract(req); err != nil {
		return f.machine.fail(Destination{}, err)
	}
	opts, err := f.collab.Runtime.Resolve(ctx, req)
	if err != nil {
		return f.machine.fail(Destination{}, fmt.Errorf("failed to resolve options: %w", err))
	}
	if opts.Format == "" {
		opts.Format = req.Format
	}
	if opts.Format == "" {
		opts.Format = engine.FormatZip
	}

	var guard *archive.PasswordGuard
	if opts.Password != "" || req.Password || opts.Encryption.Enabled() {
		guard = archive.NewPasswordGuard(opts.Password, f.collab.Passwords)
		if !opts.Encryption.Enabled() {
			opts.Encryption = engine.EncryptionDefault
		}
	}

	dest, err := f.collab.Selector.Select(ctx, req, SuggestArchivePath(req.Sources, opts.Format, opts.Method))
	if err != nil {
		return f.machine.fail(Destination{}, fmt.Errorf("failed to select destination: %w", err))
	}
	if dest.Conflict == ConflictCancel {
		return f.machine.fail(dest, fmt.Errorf("destination %s exists: %w", dest.Path, engine.ErrCancelled))
	}
	dest.Temp = TempPath(dest.Path)

	f.machine.advance(StateProcessing)
	f.logger.Info("compressing",
		zap.Strings("sources", req.Sources),
		zap.String("destination", dest.Path),
		zap.Stringer("format", opts.Format),
		zap.Stringer("method", opts.Method.Resolve(opts.Format)),
		zap.Stringer("level", opts.Level),
	)

	w := archive.NewWriter(f.engine, f.fs, f.logger, f.controller)
	for _, src := range req.Sources {
		if err := w.Add(src); err != nil {
			return f.machine.fail(dest, err)
		}
	}
	w.SetOptions(opts.WriteOptions())
	w.SetFilter(opts.Filter)
	if err := w.Save(ctx, dest.Temp, guard, f.collab.Progress); err != nil {
		return f.machine.fail(dest, err)
	}
	if err := f.commit(ctx, dest); err != nil {
		return f.machine.fail(dest, err)
	}

	f.machine.advance(StatePostProcess)
	report := &Report{Destination: dest, PostErr: f.postProcess(ctx, req, dest.Path)}
	f.machine.advance(StateDone)
	report.State = StateDone
	if report.PostErr != nil {
		f.logger.Warn("post-processing failed", zap.Error(report.PostErr))
	}
	f.logger.Info("archive created", zap.String("path", dest.Path))
	return report, nil
}

func (f *CompressFacade) checkContract(req Request) error {
	switch {
	case f.engine == nil || f.fs == nil:
		return fmt.Errorf("engine and filesystem are required: %w", archive.ErrContractViolation)
	case f.collab.Selector == nil || f.collab.Runtime == nil || f.collab.Passwords == nil:
		return fmt.Errorf("selection, runtime and password resolvers are required: %w", archive.ErrContractViolation)
	case len(req.Sources) == 0:
		return fmt.Errorf("no sources given: %w", archive.ErrContractViolation)
	}
	return nil
}

// commit renames the finished temp archive onto the destination. A cancel
// requested before the rename leaves the destination untouched.
func (f *CompressFacade) commit(ctx context.Context, dest Destination) error {
	if err := f.controller.Checkpoint(ctx); err != nil {
		return err
	}
	if err := f.fs.Rename(dest.Temp, dest.Path); err != nil {
		return fmt.Errorf("%w: %s -> %s: %w", ErrCommitFailure, dest.Temp, dest.Path, err)
	}
	return nil
}

func (f *CompressFacade) postProcess(ctx context.Context, req Request, path string) error {
	var errs []error
	if f.collab.Post != nil && f.post.Open != OpenNone {
		if err := f.collab.Post.OpenFolder(ctx, path, f.post.Open); err != nil {
			errs = append(errs, fmt.Errorf("failed to open folder: %w", err))
		}
	}
	if f.collab.Publisher != nil {
		if err := f.collab.Publisher.Publish(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("failed to publish archive: %w", err))
		}
	}
	if req.Mail && f.collab.Post != nil {
		if err := f.collab.Post.SendMail(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("failed to send mail: %w", err))
		} else if f.post.DeleteOnMail {
			if err := f.fs.Remove(path); err != nil {
				errs = append(errs, fmt.Errorf("failed to remove mailed archive: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

// SuggestArchivePath names the archive after the first source, in the
// source's directory.
func SuggestArchivePath(sources []string, format engine.Format, method engine.Method) string {
	if len(sources) == 0 {
		return ""
	}
	first := filepath.Clean(sources[0])
	stem := filepath.Base(first)
	if ext := filepath.Ext(stem); ext != "" && ext != stem {
		stem = stem[:len(stem)-len(ext)]
	}
	return filepath.Join(filepath.Dir(first), stem+engine.Extension(format, method))
}
