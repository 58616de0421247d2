package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtension(t *testing.T) {
	tests := []struct {
		format Format
		method Method
		want   string
	}{
		{FormatZip, MethodDefault, ".zip"},
		{FormatZip, MethodZstd, ".zip"},
		{FormatTar, MethodDefault, ".tar.gz"},
		{FormatTar, MethodCopy, ".tar"},
		{FormatTar, MethodZstd, ".tar.zst"},
		{FormatTar, MethodLZ4, ".tar.lz4"},
		{FormatTar, MethodXZ, ".tar.xz"},
		{FormatSevenZip, MethodDefault, ".7z"},
	}

	for _, tt := range tests {
		t.Run(tt.format.String()+"/"+tt.method.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Extension(tt.format, tt.method))
		})
	}
}

func TestTrimExtension(t *testing.T) {
	assert.Equal(t, "photos", TrimExtension("photos.tar.gz"))
	assert.Equal(t, "Photos", TrimExtension("Photos.ZIP"))
	assert.Equal(t, "notes.txt", TrimExtension("notes.txt"))
	assert.Equal(t, ".zip", TrimExtension(".zip"))
}

func TestDetectFormat(t *testing.T) {
	ustar := make([]byte, 512)
	copy(ustar[257:], "ustar")

	tests := []struct {
		name    string
		header  []byte
		want    Format
		wantErr bool
	}{
		{name: "zip", header: []byte("PK\x03\x04...."), want: FormatZip},
		{name: "empty zip", header: []byte("PK\x05\x06"), want: FormatZip},
		{name: "7z", header: []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C, 0, 4}, want: FormatSevenZip},
		{name: "gzip", header: []byte{0x1f, 0x8b, 8}, want: FormatTar},
		{name: "zstd", header: []byte{0x28, 0xb5, 0x2f, 0xfd}, want: FormatTar},
		{name: "lz4", header: []byte{0x04, 0x22, 0x4d, 0x18}, want: FormatTar},
		{name: "xz", header: []byte{0xfd, '7', 'z', 'X', 'Z', 0}, want: FormatTar},
		{name: "plain tar", header: ustar, want: FormatTar},
		{name: "text", header: []byte("hello world"), wantErr: true},
		{name: "empty", header: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.header)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupported)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEnums(t *testing.T) {
	f, err := ParseFormat("ZIP")
	require.NoError(t, err)
	assert.Equal(t, FormatZip, f)

	m, err := ParseMethod("store")
	require.NoError(t, err)
	assert.Equal(t, MethodCopy, m)

	l, err := ParseLevel("ultra")
	require.NoError(t, err)
	assert.Equal(t, LevelUltra, l)

	e, err := ParseEncryption("")
	require.NoError(t, err)
	assert.False(t, e.Enabled())

	_, err = ParseFormat("rar")
	assert.Error(t, err)
	_, err = ParseLevel("max")
	assert.Error(t, err)
}

func TestWriteOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    WriteOptions
		wantErr string
	}{
		{name: "zip defaults", opts: WriteOptions{Format: FormatZip, Level: LevelUltra, Threads: 4}},
		{name: "zip encrypted", opts: WriteOptions{Format: FormatZip, Encryption: EncryptionDefault, Threads: 1}},
		{name: "tar lz4", opts: WriteOptions{Format: FormatTar, Method: MethodLZ4, Threads: 2}},
		{name: "7z is read-only", opts: WriteOptions{Format: FormatSevenZip, Threads: 1}, wantErr: "cannot be written"},
		{name: "no threads", opts: WriteOptions{Format: FormatZip}, wantErr: "thread count"},
		{name: "tar encrypted", opts: WriteOptions{Format: FormatTar, Encryption: EncryptionAge, Threads: 1}, wantErr: "does not support encryption"},
		{name: "zip xz", opts: WriteOptions{Format: FormatZip, Method: MethodXZ, Threads: 1}, wantErr: "not available for zip"},
		{name: "tar deflate", opts: WriteOptions{Format: FormatTar, Method: MethodDeflate, Threads: 1}, wantErr: "not available for tar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
