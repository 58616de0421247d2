package sinks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeice/ice/internal/engine"
)

type mockUploader struct {
	uploads []mockUpload
	err     error
}

type mockUpload struct {
	bucket        string
	key           string
	body          []byte
	contentType   string
	contentLength int64
	metadata      map[string]string
}

func (m *mockUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	body, _ := io.ReadAll(input.Body)
	upload := mockUpload{
		bucket:   *input.Bucket,
		key:      *input.Key,
		body:     body,
		metadata: input.Metadata,
	}
	if input.ContentType != nil {
		upload.contentType = *input.ContentType
	}
	if input.ContentLength != nil {
		upload.contentLength = *input.ContentLength
	}
	m.uploads = append(m.uploads, upload)
	return &manager.UploadOutput{}, nil
}

func TestS3Sink_Name(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		prefix   string
		expected string
	}{
		{
			name:     "bucket only",
			bucket:   "my-bucket",
			expected: "s3(my-bucket)",
		},
		{
			name:     "bucket with prefix",
			bucket:   "my-bucket",
			prefix:   "backups/laptop",
			expected: "s3(my-bucket/backups/laptop)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := NewS3SinkWithUploader(tt.bucket, tt.prefix, &mockUploader{})
			assert.Equal(t, tt.expected, sink.Name())
			assert.Equal(t, "s3", sink.Kind())
		})
	}
}

func TestS3Sink_ObjectKey(t *testing.T) {
	tests := []struct {
		name        string
		prefix      string
		timestamp   bool
		byFormat    bool
		archive     Archive
		expectedKey string
	}{
		{
			name:        "name only",
			archive:     Archive{Name: "photos.zip", Format: engine.FormatZip},
			expectedKey: "photos.zip",
		},
		{
			name:        "prefixed",
			prefix:      "backups/2026",
			archive:     Archive{Name: "photos.zip", Format: engine.FormatZip},
			expectedKey: "backups/2026/photos.zip",
		},
		{
			name:        "timestamped",
			prefix:      "backups",
			timestamp:   true,
			archive:     Archive{Name: "photos.tar.zst", Format: engine.FormatTar, Method: engine.MethodZstd},
			expectedKey: "backups/20260301T101500Z/photos.tar.zst",
		},
		{
			name:        "grouped by format",
			prefix:      "backups",
			byFormat:    true,
			archive:     Archive{Name: "docs.7z", Format: engine.FormatSevenZip},
			expectedKey: "backups/7z/docs.7z",
		},
		{
			name:        "timestamp before format",
			timestamp:   true,
			byFormat:    true,
			archive:     Archive{Name: "photos.tar.gz", Format: engine.FormatTar, Method: engine.MethodGzip},
			expectedKey: "20260301T101500Z/tar/photos.tar.gz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploader := &mockUploader{}
			sink := NewS3SinkWithUploader("my-bucket", tt.prefix, uploader).(*S3Sink)
			sink.timestamp = tt.timestamp
			sink.byFormat = tt.byFormat
			sink.now = func() time.Time {
				return time.Date(2026, 3, 1, 11, 15, 0, 0, time.FixedZone("CET", 3600))
			}

			require.NoError(t, sink.Write(t.Context(), tt.archive, bytes.NewBufferString("archive bytes")))

			require.Len(t, uploader.uploads, 1)
			assert.Equal(t, "my-bucket", uploader.uploads[0].bucket)
			assert.Equal(t, tt.expectedKey, uploader.uploads[0].key)
			assert.Equal(t, "archive bytes", string(uploader.uploads[0].body))
		})
	}
}

func TestS3Sink_WriteDescribesArchive(t *testing.T) {
	uploader := &mockUploader{}
	sink := NewS3SinkWithUploader("bucket", "", uploader)

	archive := Archive{Name: "A.ZIP", Format: engine.FormatTar, Method: engine.MethodXZ, Size: 7}
	require.NoError(t, sink.Write(t.Context(), archive, bytes.NewBufferString("content")))

	require.Len(t, uploader.uploads, 1)
	upload := uploader.uploads[0]
	assert.Equal(t, "application/x-xz", upload.contentType, "the sniffed format wins over the extension")
	assert.Equal(t, int64(7), upload.contentLength)
	assert.Equal(t, map[string]string{"archive-format": "tar", "archive-method": "xz"}, upload.metadata)
}

func TestS3Sink_WriteError(t *testing.T) {
	sink := NewS3SinkWithUploader("bucket", "p", &mockUploader{err: errors.New("access denied")})
	err := sink.Write(t.Context(), Archive{Name: "a.zip", Format: engine.FormatZip, Size: 1}, bytes.NewBufferString("x"))
	assert.ErrorContains(t, err, "zip archive to s3://bucket/p/a.zip")
	assert.ErrorContains(t, err, "access denied")
}
