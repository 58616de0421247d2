// Package postprocess hands finished archives to the desktop: it opens the
// containing folder and starts the mail program.
package postprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/transaction"
)

const defaultTimeout = 30 * time.Second

// ErrNoMailer is returned by SendMail when no mail program is configured.
var ErrNoMailer = errors.New("no mail program configured")

type LauncherConfig struct {
	// Explorer opens a folder given as its last argument. Empty uses the
	// platform default.
	Explorer []string
	// Mailer composes a mail with the archive given as its last argument.
	Mailer []string
	// Desktop is skipped by transaction.OpenSkipDesktop. Empty uses
	// ~/Desktop.
	Desktop string
	Timeout *string
}

// Launcher runs external programs for the post-processing phase.
type Launcher struct {
	logger   *zap.Logger
	fs       afero.Fs
	explorer []string
	mailer   []string
	desktop  string
	timeout  time.Duration
}

var _ transaction.PostProcessor = (*Launcher)(nil)

func NewLauncher(logger *zap.Logger, fs afero.Fs, cfg LauncherConfig) (*Launcher, error) {
	timeout := defaultTimeout
	if cfg.Timeout != nil {
		parsed, err := time.ParseDuration(*cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", *cfg.Timeout, err)
		}
		timeout = parsed
	}

	explorer := cfg.Explorer
	if len(explorer) == 0 {
		explorer = DefaultExplorer()
	}

	desktop := cfg.Desktop
	if desktop == "" {
		if home, err := os.UserHomeDir(); err == nil {
			desktop = filepath.Join(home, "Desktop")
		}
	}

	return &Launcher{
		logger:   logger,
		fs:       fs,
		explorer: explorer,
		mailer:   cfg.Mailer,
		desktop:  desktop,
		timeout:  timeout,
	}, nil
}

// DefaultExplorer returns the folder opener of the running platform.
func DefaultExplorer() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"open"}
	case "windows":
		return []string{"explorer"}
	default:
		return []string{"xdg-open"}
	}
}

// SplitCommand splits a configured command line on whitespace.
func SplitCommand(s string) []string {
	return strings.Fields(s)
}

// OpenFolder opens path when it is a directory, or the directory holding
// it otherwise.
func (l *Launcher) OpenFolder(ctx context.Context, path string, policy transaction.OpenPolicy) error {
	if policy == transaction.OpenNone {
		return nil
	}
	dir := path
	if info, err := l.fs.Stat(path); err != nil || !info.IsDir() {
		dir = filepath.Dir(path)
	}
	if policy == transaction.OpenSkipDesktop && l.desktop != "" && filepath.Clean(dir) == filepath.Clean(l.desktop) {
		l.logger.Debug("not opening desktop folder", zap.String("path", dir))
		return nil
	}
	return l.run(ctx, "explorer", l.explorer, dir)
}

// SendMail starts the mail program with path attached.
func (l *Launcher) SendMail(ctx context.Context, path string) error {
	if len(l.mailer) == 0 {
		return ErrNoMailer
	}
	return l.run(ctx, "mailer", l.mailer, path)
}

func (l *Launcher) run(ctx context.Context, role string, program []string, arg string) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, program[0], append(program[1:len(program):len(program)], arg)...)
	cmd.Env = os.Environ()

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	l.logger.Debug("launching program",
		zap.String("role", role),
		zap.Strings("program", program),
		zap.String("arg", arg),
		zap.Duration("timeout", l.timeout),
	)
	start := time.Now()
	err := cmd.Run()
	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	l.logger.Debug("program finished",
		zap.String("role", role),
		zap.Int("exit_code", exitCode),
		zap.Duration("duration", time.Since(start)),
	)

	if err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out after %s: %s", role, l.timeout, stderrStr)
		}
		if stderrStr != "" {
			return fmt.Errorf("%s failed: %w: %s", role, err, stderrStr)
		}
		return fmt.Errorf("%s failed: %w", role, err)
	}
	return nil
}
