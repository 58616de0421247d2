package sinks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/go-cleanhttp"
)

// S3Uploader is an interface for uploading objects to S3.
// This allows for easy mocking in tests.
type S3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Config contains configuration for the S3 sink.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	// Timestamp nests every upload under a UTC ISO8601Basic folder.
	Timestamp bool
	// ByFormat nests every upload under a folder named after the detected
	// archive format, such as "zip" or "tar".
	ByFormat bool
}

// S3Sink uploads archives to S3-compatible object storage. Objects carry
// the archive's sniffed format in their content type and metadata.
type S3Sink struct {
	bucket    string
	prefix    string
	timestamp bool
	byFormat  bool
	now       func() time.Time
	uploader  S3Uploader
}

// NewS3SinkWithUploader creates an S3 sink around uploader, for tests and
// callers that build their own client.
func NewS3SinkWithUploader(bucket, prefix string, uploader S3Uploader) Sink {
	return &S3Sink{
		bucket:   bucket,
		prefix:   prefix,
		now:      time.Now,
		uploader: uploader,
	}
}

func (s *S3Sink) Name() string {
	if s.prefix != "" {
		return fmt.Sprintf("s3(%s/%s)", s.bucket, s.prefix)
	}
	return fmt.Sprintf("s3(%s)", s.bucket)
}

func (s *S3Sink) Kind() string {
	return "s3"
}

// objectKey lays out prefix/[timestamp/][format/]name.
func (s *S3Sink) objectKey(archive Archive) string {
	parts := []string{s.prefix}
	if s.timestamp {
		parts = append(parts, s.now().UTC().Format(ISO8601Basic))
	}
	if s.byFormat {
		parts = append(parts, archive.Format.String())
	}
	return path.Join(append(parts, filepath.ToSlash(archive.Name))...)
}

func (s *S3Sink) Write(ctx context.Context, archive Archive, data io.Reader) error {
	key := s.objectKey(archive)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          data,
		ContentLength: aws.Int64(archive.Size),
		ContentType:   aws.String(archive.ContentType()),
		Metadata: map[string]string{
			"archive-format": archive.Format.String(),
			"archive-method": archive.Method.String(),
		},
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload %s archive to s3://%s/%s: %w", archive.Format, s.bucket, key, err)
	}
	return nil
}

func (s *S3Sink) Close(ctx context.Context) error {
	return nil
}
