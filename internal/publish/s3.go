// Package publish moves the exported site to where users reach it: an S3
// bucket behind the public origin, and an rsync share on a trusted host for
// restricted downloads.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/antarctica/lantern/internal/config"
)

// S3API is the object store surface the uploader depends on.
type S3API interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, input *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, input *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// NewS3Client creates an S3 client from pipeline configuration.
func NewS3Client(ctx context.Context, cfg config.AWSConfig) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessID, cfg.AccessSecret, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

// Uploader copies site content into one bucket.
type Uploader struct {
	logger *slog.Logger
	client S3API
	bucket string
}

// NewUploader creates an uploader for bucket.
func NewUploader(client S3API, bucket string) *Uploader {
	return &Uploader{
		logger: slog.With("component", "publisher"),
		client: client,
		bucket: bucket,
	}
}

// PutOption adjusts a single object upload.
type PutOption func(*s3.PutObjectInput)

// WithRedirect marks the object as a website redirect to location.
func WithRedirect(location string) PutOption {
	return func(input *s3.PutObjectInput) {
		input.WebsiteRedirectLocation = aws.String(location)
	}
}

// WithContentType overrides the detected content type.
func WithContentType(contentType string) PutOption {
	return func(input *s3.PutObjectInput) {
		input.ContentType = aws.String(contentType)
	}
}

// WithMetadata attaches object metadata.
func WithMetadata(meta map[string]string) PutOption {
	return func(input *s3.PutObjectInput) {
		input.Metadata = meta
	}
}

// UploadContent writes body to key. Content type defaults from the key's
// extension.
func (u *Uploader) UploadContent(ctx context.Context, key string, body []byte, opts ...PutOption) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(ContentType(key)),
	}
	for _, opt := range opts {
		opt(input)
	}
	if _, err := u.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// UploadDirectory mirrors a local directory under keyPrefix.
func (u *Uploader) UploadDirectory(ctx context.Context, dir, keyPrefix string, opts ...PutOption) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		body, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		key, err := CalcKey(path, dir, keyPrefix)
		if err != nil {
			return err
		}
		return u.UploadContent(ctx, key, body, opts...)
	})
}

// UploadDirectoryIfMissing mirrors a local directory under keyPrefix,
// skipping keys already present. Used for static resources shared across
// builds that never change for a given path.
func (u *Uploader) UploadDirectoryIfMissing(ctx context.Context, dir, keyPrefix string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		key, err := CalcKey(path, dir, keyPrefix)
		if err != nil {
			return err
		}
		exists, err := u.exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		body, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		return u.UploadContent(ctx, key, body)
	})
}

func (u *Uploader) exists(ctx context.Context, key string) (bool, error) {
	_, err := u.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	})
	var notFound *types.NotFound
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &notFound):
		return false, nil
	default:
		return false, fmt.Errorf("head %s: %w", key, err)
	}
}

// EmptyBucket deletes every object in the bucket, in batches.
func (u *Uploader) EmptyBucket(ctx context.Context) error {
	var continuation *string
	for {
		page, err := u.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(u.bucket),
			ContinuationToken: continuation,
		})
		if err != nil {
			return fmt.Errorf("list bucket %s: %w", u.bucket, err)
		}
		if len(page.Contents) > 0 {
			objects := make([]types.ObjectIdentifier, len(page.Contents))
			for i, object := range page.Contents {
				objects[i] = types.ObjectIdentifier{Key: object.Key}
			}
			if _, err := u.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(u.bucket),
				Delete: &types.Delete{Objects: objects},
			}); err != nil {
				return fmt.Errorf("delete objects in %s: %w", u.bucket, err)
			}
			u.logger.Info("deleted objects", "bucket", u.bucket, "count", len(objects))
		}
		if page.NextContinuationToken == nil {
			return nil
		}
		continuation = page.NextContinuationToken
	}
}

// CalcKey maps a local file path under basePath to an object key under
// keyPrefix, always using forward slashes.
func CalcKey(path, basePath, keyPrefix string) (string, error) {
	rel, err := filepath.Rel(basePath, path)
	if err != nil {
		return "", fmt.Errorf("key for %s: %w", path, err)
	}
	key := filepath.ToSlash(rel)
	if keyPrefix != "" {
		key = strings.TrimSuffix(keyPrefix, "/") + "/" + key
	}
	return key, nil
}

// ContentType guesses a media type from a key's extension, defaulting to
// binary.
func ContentType(key string) string {
	if detected := mime.TypeByExtension(filepath.Ext(key)); detected != "" {
		return detected
	}
	return "application/octet-stream"
}
