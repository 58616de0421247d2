package transaction

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/archive"
	"github.com/cubeice/ice/internal/engine"
)

// ExtractFacade extracts one archive into a directory. Files are written
// in place; there is no temp stage.
type ExtractFacade struct {
	engine     engine.Engine
	fs         afero.Fs
	logger     *zap.Logger
	collab     Collaborators
	post       PostOptions
	opts       ExtractOptions
	controller *archive.Controller
	machine    machine
}

func NewExtractFacade(eng engine.Engine, fs afero.Fs, logger *zap.Logger, controller *archive.Controller, collab Collaborators, post PostOptions, opts ExtractOptions) *ExtractFacade {
	logger = logger.Named("extract")
	return &ExtractFacade{
		engine:     eng,
		fs:         fs,
		logger:     logger,
		collab:     collab,
		post:       post,
		opts:       opts,
		controller: controller,
		machine:    machine{logger: logger},
	}
}

// State returns the current phase.
func (f *ExtractFacade) State() State {
	return f.machine.state
}

// Run executes one extract transaction. Entry failures are reported
// together after every entry was attempted.
func (f *ExtractFacade) Run(ctx context.Context, req Request) (*Report, error) {
	if err := f.machine.reset(); err != nil {
		return nil, fmt.Errorf("%w: %w", archive.ErrContractViolation, err)
	}
	f.machine.advance(StatePreProcess)
	req.Operation = OperationExtract

	if err := f.checkContract(req); err != nil {
		return f.machine.fail(Destination{}, err)
	}
	opts, err := f.collab.Runtime.Resolve(ctx, req)
	if err != nil {
		return f.machine.fail(Destination{}, fmt.Errorf("failed to resolve options: %w", err))
	}

	src := req.Sources[0]
	guard := archive.NewPasswordGuard(opts.Password, f.collab.Passwords)
	r, err := archive.Open(ctx, f.engine, f.fs, src,
		archive.WithPasswordGuard(guard),
		archive.WithController(f.controller),
		archive.WithProgress(f.collab.Progress),
		archive.WithFilter(opts.Filter),
		archive.WithLogger(f.logger),
		archive.WithRestoreMetadata(f.opts.RestoreMetadata),
	)
	if err != nil {
		return f.machine.fail(Destination{}, err)
	}
	defer r.Close()

	infos, err := r.Infos()
	if err != nil {
		return f.machine.fail(Destination{}, fmt.Errorf("failed to read entries: %w", err))
	}
	dest, err := f.collab.Selector.Select(ctx, req, SuggestExtractDir(src, f.opts.Root, infos))
	if err != nil {
		return f.machine.fail(Destination{}, fmt.Errorf("failed to select destination: %w", err))
	}
	if dest.Conflict == ConflictCancel {
		return f.machine.fail(dest, fmt.Errorf("destination %s exists: %w", dest.Path, engine.ErrCancelled))
	}

	f.machine.advance(StateProcessing)
	f.logger.Info("extracting",
		zap.String("archive", src),
		zap.Stringer("format", r.Format()),
		zap.Int("entries", r.Count()),
		zap.String("destination", dest.Path),
	)
	if err := r.SaveAll(ctx, dest.Path); err != nil {
		return f.machine.fail(dest, err)
	}

	f.machine.advance(StatePostProcess)
	report := &Report{Destination: dest}
	if f.collab.Post != nil && f.post.Open != OpenNone {
		if err := f.collab.Post.OpenFolder(ctx, dest.Path, f.post.Open); err != nil {
			report.PostErr = fmt.Errorf("failed to open folder: %w", err)
			f.logger.Warn("post-processing failed", zap.Error(report.PostErr))
		}
	}
	f.machine.advance(StateDone)
	report.State = StateDone
	f.logger.Info("archive extracted", zap.String("destination", dest.Path))
	return report, nil
}

func (f *ExtractFacade) checkContract(req Request) error {
	switch {
	case f.engine == nil || f.fs == nil:
		return fmt.Errorf("engine and filesystem are required: %w", archive.ErrContractViolation)
	case f.collab.Selector == nil || f.collab.Runtime == nil || f.collab.Passwords == nil:
		return fmt.Errorf("selection, runtime and password resolvers are required: %w", archive.ErrContractViolation)
	case len(req.Sources) != 1:
		return fmt.Errorf("extraction takes exactly one archive, got %d: %w", len(req.Sources), archive.ErrContractViolation)
	}
	return nil
}

// SuggestExtractDir returns the default target directory for archive.
// RootAuto skips the extra folder when the archive already has a single
// top-level entry.
func SuggestExtractDir(archivePath string, policy RootPolicy, infos []archive.EntryInfo) string {
	dir := filepath.Dir(archivePath)
	folder := filepath.Join(dir, engine.TrimExtension(filepath.Base(archivePath)))
	switch policy {
	case RootNone:
		return dir
	case RootCreate:
		return folder
	}

	tops := lo.Uniq(lo.FilterMap(infos, func(info archive.EntryInfo, _ int) (string, bool) {
		top, _, _ := strings.Cut(strings.TrimPrefix(info.Path, "./"), "/")
		return top, top != ""
	}))
	if len(tops) == 1 {
		return dir
	}
	return folder
}
