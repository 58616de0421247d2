package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Mock types for testing

type mockCodec struct {
	format  Format
	opened  []string
	created []string
}

func (m *mockCodec) Format() Format { return m.format }

func (m *mockCodec) Open(_ context.Context, path string) (Reader, error) {
	m.opened = append(m.opened, path)
	return nil, nil
}

func (m *mockCodec) Create(_ context.Context, path string, _ WriteOptions) (Writer, error) {
	m.created = append(m.created, path)
	return nil, nil
}

func newTestRegistry(t *testing.T, codecs ...*mockCodec) (*Registry, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	r := NewRegistry(zap.NewNop(), fs)
	for _, c := range codecs {
		r.Register(func(*zap.Logger, afero.Fs) Codec { return c })
	}
	return r, fs
}

func TestRegistryFormats(t *testing.T) {
	r, _ := newTestRegistry(t,
		&mockCodec{format: FormatZip},
		&mockCodec{format: FormatSevenZip},
		&mockCodec{format: FormatTar},
	)

	assert.Equal(t, []Format{FormatSevenZip, FormatTar, FormatZip}, r.Formats())
}

func TestRegistryOpen(t *testing.T) {
	ctx := t.Context()

	t.Run("dispatches on detected format", func(t *testing.T) {
		zipCodec := &mockCodec{format: FormatZip}
		r, fs := newTestRegistry(t, zipCodec)
		require.NoError(t, afero.WriteFile(fs, "/a.zip", []byte("PK\x03\x04rest"), 0o644))

		_, err := r.Open(ctx, "/a.zip")

		require.NoError(t, err)
		assert.Equal(t, []string{"/a.zip"}, zipCodec.opened)
	})

	t.Run("unregistered format lists available ones", func(t *testing.T) {
		r, fs := newTestRegistry(t, &mockCodec{format: FormatZip})
		require.NoError(t, afero.WriteFile(fs, "/a.7z", []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}, 0o644))

		_, err := r.Open(ctx, "/a.7z")

		var unsupported *UnsupportedFormatError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, "7z", unsupported.Format)
		assert.Equal(t, []string{"zip"}, unsupported.Available)
		assert.ErrorIs(t, err, ErrUnsupported)
	})

	t.Run("unknown header", func(t *testing.T) {
		r, fs := newTestRegistry(t, &mockCodec{format: FormatZip})
		require.NoError(t, afero.WriteFile(fs, "/a.txt", []byte("hello"), 0o644))

		_, err := r.Open(ctx, "/a.txt")

		assert.ErrorIs(t, err, ErrUnsupported)
	})

	t.Run("missing file", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		_, err := r.Open(ctx, "/missing.zip")

		require.Error(t, err)
		assert.ErrorContains(t, err, "failed to open archive")
	})
}

func TestRegistryCreate(t *testing.T) {
	ctx := t.Context()

	t.Run("valid options reach the codec", func(t *testing.T) {
		tarCodec := &mockCodec{format: FormatTar}
		r, _ := newTestRegistry(t, tarCodec)

		_, err := r.Create(ctx, "/out.tar", WriteOptions{Format: FormatTar, Threads: 1})

		require.NoError(t, err)
		assert.Equal(t, []string{"/out.tar"}, tarCodec.created)
	})

	t.Run("invalid options never reach the codec", func(t *testing.T) {
		tarCodec := &mockCodec{format: FormatTar}
		r, _ := newTestRegistry(t, tarCodec)

		_, err := r.Create(ctx, "/out.tar", WriteOptions{Format: FormatTar, Threads: 1, Encryption: EncryptionAge})

		assert.ErrorIs(t, err, ErrUnsupported)
		assert.Empty(t, tarCodec.created)
	})

	t.Run("no codecs registered", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		_, err := r.Create(ctx, "/out.zip", WriteOptions{Format: FormatZip, Threads: 1})

		var unsupported *UnsupportedFormatError
		require.True(t, errors.As(err, &unsupported))
		assert.Empty(t, unsupported.Available)
		assert.ErrorContains(t, err, "no codecs registered")
	})
}
