package archive

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/engine"
	"github.com/cubeice/ice/internal/engine/codecs"
)

// fakeEntry describes one member of a fakeHandle.
type fakeEntry struct {
	path      string
	dir       bool
	data      string
	size      *engine.Value
	encrypted bool
	result    engine.OperationResult
}

// fakeHandle is a scripted engine.Reader. Encrypted entries accept the
// password "secret".
type fakeHandle struct {
	entries   []fakeEntry
	beforeOut func(index int)
	closed    bool
}

func (h *fakeHandle) Format() engine.Format { return engine.FormatZip }
func (h *fakeHandle) EntryCount() int       { return len(h.entries) }
func (h *fakeHandle) Close() error          { h.closed = true; return nil }

func (h *fakeHandle) Property(index int, id engine.PropID) (engine.Value, error) {
	if err := engine.CheckIndex(index, len(h.entries)); err != nil {
		return engine.Value{}, err
	}
	e := h.entries[index]
	switch id {
	case engine.PropPath:
		return engine.StringValue(e.path), nil
	case engine.PropIsDirectory:
		return engine.BoolValue(e.dir), nil
	case engine.PropSize:
		if e.size != nil {
			return *e.size, nil
		}
		return engine.Int64Value(int64(len(e.data))), nil
	case engine.PropEncrypted:
		return engine.BoolValue(e.encrypted), nil
	default:
		return engine.EmptyValue(), nil
	}
}

func (h *fakeHandle) Extract(_ context.Context, indices []int, cb engine.ExtractCallback) error {
	var done int64
	for _, i := range indices {
		e := h.entries[i]
		if e.encrypted {
			password, cancel := cb.Password()
			if cancel {
				return engine.ErrCancelled
			}
			if password == "" {
				return engine.ErrPasswordRequired
			}
			if password != "secret" {
				cb.SetOperationResult(i, engine.ResultWrongPassword)
				continue
			}
		}
		if h.beforeOut != nil {
			h.beforeOut(i)
		}
		w, err := cb.OpenOutput(i)
		if err != nil {
			cb.SetOperationResult(i, engine.ResultDataError)
			continue
		}
		if w == nil {
			continue
		}
		n, _ := w.Write([]byte(e.data))
		done += int64(n)
		if err := cb.SetProgress(done, done); err != nil {
			_ = w.Close()
			return err
		}
		_ = w.Close()
		cb.SetOperationResult(i, e.result)
	}
	return nil
}

type fakeEngine struct {
	handle *fakeHandle
}

func (e *fakeEngine) Open(context.Context, string) (engine.Reader, error) {
	return e.handle, nil
}

func (e *fakeEngine) Create(context.Context, string, engine.WriteOptions) (engine.Writer, error) {
	return nil, engine.ErrUnsupported
}

func (e *fakeEngine) Formats() []engine.Format { return nil }

func openFake(t *testing.T, fs afero.Fs, h *fakeHandle, opts ...ReaderOption) *Reader {
	t.Helper()
	r, err := Open(t.Context(), &fakeEngine{handle: h}, fs, "/fake.zip", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// newEngine returns the real codec engine over a scratch directory.
func newEngine(t *testing.T) (*engine.Registry, afero.Fs, string) {
	t.Helper()
	fs := afero.NewOsFs()
	r := engine.NewRegistry(zap.NewNop(), fs)
	codecs.RegisterAll(r, codecs.WithScryptWorkFactor(10))
	return r, fs, t.TempDir()
}
