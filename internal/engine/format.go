package engine

import (
	"bytes"
	"fmt"
	"strings"
)

// Format is an archive container format.
type Format string

const (
	FormatZip      Format = "zip"
	FormatTar      Format = "tar"
	FormatSevenZip Format = "7z"
)

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zip":
		return FormatZip, nil
	case "tar":
		return FormatTar, nil
	case "7z", "7zip", "sevenzip":
		return FormatSevenZip, nil
	default:
		return "", fmt.Errorf("unknown archive format %q", s)
	}
}

func (f Format) String() string {
	return string(f)
}

// SupportsEncryption reports whether entries of the format can be encrypted
// when written.
func (f Format) SupportsEncryption() bool {
	return f == FormatZip
}

// Writable reports whether a codec can create archives of the format.
func (f Format) Writable() bool {
	return f == FormatZip || f == FormatTar
}

// Method is the compression method applied to entry data.
type Method string

const (
	// MethodDefault lets the codec pick: deflate for zip, gzip for tar.
	MethodDefault Method = ""
	MethodCopy    Method = "copy"
	MethodDeflate Method = "deflate"
	MethodZstd    Method = "zstd"
	MethodGzip    Method = "gzip"
	MethodLZ4     Method = "lz4"
	MethodXZ      Method = "xz"
)

// ParseMethod parses a compression method name. An empty string is
// MethodDefault.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return MethodDefault, nil
	case "copy", "store", "none":
		return MethodCopy, nil
	case "deflate":
		return MethodDeflate, nil
	case "zstd", "zstandard":
		return MethodZstd, nil
	case "gzip", "gz":
		return MethodGzip, nil
	case "lz4":
		return MethodLZ4, nil
	case "xz":
		return MethodXZ, nil
	default:
		return "", fmt.Errorf("unknown compression method %q", s)
	}
}

func (m Method) String() string {
	if m == MethodDefault {
		return "default"
	}
	return string(m)
}

// Resolve replaces MethodDefault with the format's default method.
func (m Method) Resolve(f Format) Method {
	if m != MethodDefault {
		return m
	}
	switch f {
	case FormatZip:
		return MethodDeflate
	case FormatTar:
		return MethodGzip
	default:
		return MethodCopy
	}
}

// Level is the compression effort.
type Level int

const (
	LevelNone Level = iota
	LevelFast
	LevelLow
	LevelNormal
	LevelHigh
	LevelUltra
)

var levelNames = map[Level]string{
	LevelNone:   "none",
	LevelFast:   "fast",
	LevelLow:    "low",
	LevelNormal: "normal",
	LevelHigh:   "high",
	LevelUltra:  "ultra",
}

// ParseLevel parses a compression level name.
func ParseLevel(s string) (Level, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for l, name := range levelNames {
		if name == needle {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown compression level %q", s)
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Encryption selects how entry data is encrypted on write.
type Encryption string

const (
	EncryptionNone Encryption = "none"
	// EncryptionDefault is the format's default scheme, which is age for zip.
	EncryptionDefault Encryption = "default"
	EncryptionAge     Encryption = "age"
)

// ParseEncryption parses an encryption scheme name. An empty string is
// EncryptionNone.
func ParseEncryption(s string) (Encryption, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return EncryptionNone, nil
	case "default":
		return EncryptionDefault, nil
	case "age":
		return EncryptionAge, nil
	default:
		return "", fmt.Errorf("unknown encryption %q", s)
	}
}

// Enabled reports whether the scheme encrypts anything.
func (e Encryption) Enabled() bool {
	return e != EncryptionNone && e != ""
}

// Extension returns the file extension, including the leading dot, for an
// archive of the given format and method.
func Extension(f Format, m Method) string {
	switch f {
	case FormatZip:
		return ".zip"
	case FormatSevenZip:
		return ".7z"
	case FormatTar:
		switch m.Resolve(f) {
		case MethodGzip:
			return ".tar.gz"
		case MethodZstd:
			return ".tar.zst"
		case MethodLZ4:
			return ".tar.lz4"
		case MethodXZ:
			return ".tar.xz"
		default:
			return ".tar"
		}
	default:
		return "." + string(f)
	}
}

// TrimExtension strips a known archive extension from name.
func TrimExtension(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range []string{".tar.gz", ".tgz", ".tar.zst", ".tar.lz4", ".tar.xz", ".zip", ".tar", ".7z"} {
		if strings.HasSuffix(lower, ext) && len(name) > len(ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

var (
	magicZip      = []byte("PK\x03\x04")
	magicZipEmpty = []byte("PK\x05\x06")
	magicSevenZip = []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}
	magicGzip     = []byte{0x1f, 0x8b}
	magicZstd     = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4      = []byte{0x04, 0x22, 0x4d, 0x18}
	magicXZ       = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicUstar    = []byte("ustar")
)

// HeaderSize is the number of leading bytes DetectFormat needs to recognise
// every supported format.
const HeaderSize = 512

// DetectFormat identifies an archive by its leading bytes. Compressed
// streams are assumed to wrap a tar archive.
func DetectFormat(header []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(header, magicZip), bytes.HasPrefix(header, magicZipEmpty):
		return FormatZip, nil
	case bytes.HasPrefix(header, magicSevenZip):
		return FormatSevenZip, nil
	case bytes.HasPrefix(header, magicGzip),
		bytes.HasPrefix(header, magicZstd),
		bytes.HasPrefix(header, magicLZ4),
		bytes.HasPrefix(header, magicXZ):
		return FormatTar, nil
	case len(header) >= 262 && bytes.Equal(header[257:262], magicUstar):
		return FormatTar, nil
	default:
		return "", fmt.Errorf("unrecognised archive header: %w", ErrUnsupported)
	}
}

// DetectMethod identifies the stream compression wrapping a tar archive.
func DetectMethod(header []byte) Method {
	switch {
	case bytes.HasPrefix(header, magicGzip):
		return MethodGzip
	case bytes.HasPrefix(header, magicZstd):
		return MethodZstd
	case bytes.HasPrefix(header, magicLZ4):
		return MethodLZ4
	case bytes.HasPrefix(header, magicXZ):
		return MethodXZ
	default:
		return MethodCopy
	}
}
