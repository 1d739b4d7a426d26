// Package storage mirrors checkpoint artifacts to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/erp/agreementclone/internal/infrastructure/checkpoint"
	infraconfig "github.com/erp/agreementclone/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Ensure S3Mirror implements checkpoint.Mirror
var _ checkpoint.Mirror = (*S3Mirror)(nil)

// PutObjectAPI is the subset of the S3 client used by the mirror.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror uploads checkpoint artifacts to a bucket. It is compatible with
// any S3-compatible storage (AWS S3, MinIO, RustFS, etc.)
type S3Mirror struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *zap.Logger
}

// S3MirrorOption is a functional option for configuring S3Mirror
type S3MirrorOption func(*S3Mirror)

// WithLogger sets a custom logger for S3Mirror
func WithLogger(logger *zap.Logger) S3MirrorOption {
	return func(m *S3Mirror) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClient replaces the S3 client.
func WithClient(client PutObjectAPI) S3MirrorOption {
	return func(m *S3Mirror) {
		if client != nil {
			m.client = client
		}
	}
}

// NewS3Mirror creates a mirror from configuration. Static credentials are
// used when both keys are set; otherwise the default AWS credential chain
// applies.
func NewS3Mirror(ctx context.Context, cfg *infraconfig.StorageConfig, opts ...S3MirrorOption) (*S3Mirror, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if (cfg.AccessKey == "") != (cfg.SecretKey == "") {
		return nil, errors.New("storage access key and secret key must be set together")
	}

	m := &S3Mirror{
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.client != nil {
		return m, nil
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpoint := endpointURL(cfg.Endpoint, cfg.UseSSL)
	m.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return m, nil
}

// endpointURL adds the scheme to a bare host:port endpoint.
func endpointURL(endpoint string, useSSL bool) string {
	if endpoint == "" || strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// Key returns the object key an artifact key is stored under.
func (m *S3Mirror) Key(key string) string {
	if m.prefix == "" {
		return key
	}
	return m.prefix + "/" + key
}

// Put uploads one artifact.
func (m *S3Mirror) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	objectKey := m.Key(key)
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", objectKey, err)
	}
	m.logger.Debug("Artifact mirrored", zap.String("bucket", m.bucket), zap.String("key", objectKey))
	return nil
}

// Bucket returns the bucket name
func (m *S3Mirror) Bucket() string {
	return m.bucket
}
