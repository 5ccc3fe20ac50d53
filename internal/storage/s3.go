package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// StorageType defines the type of S3-compatible storage
type StorageType string

const (
	StorageTypeR2           StorageType = "r2"
	StorageTypeS3           StorageType = "s3"
	StorageTypeS3Compatible StorageType = "s3compatible"
)

// defaultPresignExpiry applies when no public URL is configured.
const defaultPresignExpiry = 24 * time.Hour

// S3Config holds configuration for S3-compatible storage
type S3Config struct {
	Type      StorageType
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string
	// PublicURL prefixes object keys for an R2.dev domain or a CDN.
	PublicURL string
	// PresignExpiry bounds presigned download links when PublicURL is empty.
	PresignExpiry time.Duration
}

// S3Storage stores published artifacts in an S3-compatible bucket.
type S3Storage struct {
	client        *s3.Client
	presigner     *s3.PresignClient
	bucket        string
	storeType     StorageType
	publicURL     string
	presignExpiry time.Duration
}

// NewS3Storage creates a new S3-compatible storage client.
func NewS3Storage(cfg *S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	client, err := newS3Client(cfg)
	if err != nil {
		return nil, err
	}

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return &S3Storage{
		client:        client,
		presigner:     s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		storeType:     cfg.Type,
		publicURL:     strings.TrimSuffix(cfg.PublicURL, "/"),
		presignExpiry: expiry,
	}, nil
}

// Bucket returns the configured bucket name.
func (s *S3Storage) Bucket() string {
	return s.bucket
}

// EnsureBucket creates the bucket unless it already exists. R2 buckets can
// only be created from the dashboard.
func (s *S3Storage) EnsureBucket(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err == nil {
		return nil
	}
	if s.storeType == StorageTypeR2 {
		return fmt.Errorf("bucket %s does not exist, please create it in R2 dashboard", s.bucket)
	}
	if _, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Upload stores size bytes from reader under key.
func (s *S3Storage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          reader,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// URL returns the public URL for an object, or a presigned GET URL when no
// public prefix is configured.
func (s *S3Storage) URL(ctx context.Context, key string) (string, error) {
	if s.publicURL != "" {
		return s.publicURL + "/" + key, nil
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

// Delete removes the object stored under key.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
