package main

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// progressPrinter renders whole-percent progress on one terminal line.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	label   string
	percent int
	started bool
}

func newProgressPrinter(w io.Writer, label string) *progressPrinter {
	return &progressPrinter{w: w, label: label, percent: -1}
}

func (p *progressPrinter) Report(done, total int64) {
	if total <= 0 {
		return
	}
	percent := int(done * 100 / total)
	p.mu.Lock()
	defer p.mu.Unlock()
	if percent == p.percent {
		return
	}
	p.percent = percent
	p.started = true
	fmt.Fprintf(p.w, "\r%s %3d%%", p.label, percent)
}

// Finish ends the progress line.
func (p *progressPrinter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		fmt.Fprintln(p.w)
		p.started = false
	}
}

// progressLogger logs progress at debug level in ten percent steps.
type progressLogger struct {
	mu     sync.Mutex
	logger *zap.Logger
	step   int64
}

func (p *progressLogger) Report(done, total int64) {
	if total <= 0 {
		return
	}
	step := done * 10 / total
	p.mu.Lock()
	defer p.mu.Unlock()
	if step == p.step {
		return
	}
	p.step = step
	p.logger.Debug("progress", zap.Int64("done", done), zap.Int64("total", total))
}

func (p *progressLogger) Finish() {}
