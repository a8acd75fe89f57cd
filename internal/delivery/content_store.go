// Package delivery uploads rendered reports and fans them out to
// recipients over email and SMS.
package delivery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// ContentStore persists a rendered document and returns a link
// recipients can fetch it from. Upload must complete before any
// message referencing the link goes out.
type ContentStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// S3Store stores documents in an S3 bucket and hands out presigned
// GET links.
type S3Store struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	linkExpiry time.Duration
}

// NewS3Store builds a store against the ambient AWS credential chain.
func NewS3Store(ctx context.Context, bucket, region string, linkExpiry time.Duration) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}
	if linkExpiry <= 0 {
		linkExpiry = 7 * 24 * time.Hour
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Store{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     bucket,
		linkExpiry: linkExpiry,
	}, nil
}

// Upload puts the document and returns a presigned link bounded by
// the configured expiry.
func (s *S3Store) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload document: %w", err)
	}

	presigned, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.linkExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign document link: %w", err)
	}

	log.Info().Str("bucket", s.bucket).Str("key", key).Msg("Document uploaded")
	return presigned.URL, nil
}

// LocalStore writes documents to a directory and returns file-backed
// URLs. Used for development and tests; the link has no expiry.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create document directory: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: baseURL}, nil
}

// Upload writes the document under dir and returns baseURL/key.
func (l *LocalStore) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(l.dir, filepath.Base(key))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create document file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		return "", fmt.Errorf("failed to write document file: %w", err)
	}
	return l.baseURL + "/" + filepath.Base(key), nil
}
