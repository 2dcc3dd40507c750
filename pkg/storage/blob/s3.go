// Package blob writes archive objects to S3 or any S3 compatible store.
package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/platinummonkey/authsvc/pkg/storage"
)

// ChecksumMetadataKey holds the hex sha256 of the object body
const ChecksumMetadataKey = "sha256"

// Bucket is a single S3 bucket
type Bucket struct {
	client *s3.Client
	name   string
}

// NewS3Bucket builds a client for cfg.S3Bucket. Static keys are used when both
// are set, otherwise the default credential chain.
func NewS3Bucket(ctx context.Context, cfg storage.Config) (*Bucket, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("S3 bucket is not configured")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})
	return &Bucket{client: client, name: cfg.S3Bucket}, nil
}

// Name returns the bucket name
func (b *Bucket) Name() string { return b.name }

// Put uploads body under key, recording its sha256 in the object metadata
func (b *Bucket) Put(ctx context.Context, key string, body []byte, contentType string) error {
	sum := sha256.Sum256(body)
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.name),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
		Metadata:      map[string]string{ChecksumMetadataKey: hex.EncodeToString(sum[:])},
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", b.name, key, err)
	}
	return nil
}

// HealthCheck verifies the bucket is reachable with the configured credentials
func (b *Bucket) HealthCheck(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.name)})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}
