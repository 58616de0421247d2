package sinks

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/term"
)

// StreamSink writes archives to a byte stream, typically standard output
// piped into another program.
type StreamSink struct {
	w io.Writer
}

func NewStreamSink(w io.Writer) Sink {
	return &StreamSink{w: w}
}

func (s *StreamSink) Name() string {
	return "stream"
}

func (s *StreamSink) Kind() string {
	return "stream"
}

// Write refuses to dump binary archive data onto a terminal.
func (s *StreamSink) Write(ctx context.Context, archive Archive, data io.Reader) error {
	if f, ok := s.w.(interface{ Fd() uintptr }); ok && term.IsTerminal(int(f.Fd())) {
		return fmt.Errorf("refusing to write %s archive %s to a terminal", archive.Format, archive.Name)
	}
	n, err := io.Copy(s.w, data)
	if err != nil {
		return fmt.Errorf("failed to stream %s: %w", archive.Name, err)
	}
	if n != archive.Size {
		return fmt.Errorf("streamed %d of %d bytes of %s: %w", n, archive.Size, archive.Name, io.ErrShortWrite)
	}
	return nil
}

func (s *StreamSink) Close(ctx context.Context) error {
	return nil
}
