package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewStorage creates the artifact store described by cfg.
// Parameters:
//   - cfg: storage configuration; an empty Type is detected from the endpoint.
//
// Returns:
//   - *S3Storage: initialized storage client implementation.
//   - error: non-nil if the storage client cannot be created.
func NewStorage(cfg *S3Config) (*S3Storage, error) {
	if cfg.Type == "" {
		cfg.Type = detectStorageType(cfg.Endpoint)
	}
	return NewS3Storage(cfg)
}

func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)
	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"), endpoint == "":
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}

// normalizeEndpoint reduces an endpoint to host[:port].
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	host, _, _ := strings.Cut(endpoint, "/")
	return host
}

func regionFor(cfg *S3Config) string {
	switch {
	case cfg.Region != "":
		return cfg.Region
	case cfg.Type == StorageTypeR2:
		return "auto"
	default:
		return "us-east-1"
	}
}

// newS3Client builds a client that talks path-style to custom endpoints and
// falls back to the default AWS credential chain when no keys are given.
func newS3Client(cfg *S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(regionFor(cfg))}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	host := normalizeEndpoint(cfg.Endpoint)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if host == "" {
			return
		}
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		o.BaseEndpoint = aws.String(scheme + "://" + host)
		o.UsePathStyle = true
	}), nil
}
