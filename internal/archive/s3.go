package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config holds configuration for the S3 store.
type S3Config struct {
	// Region is the AWS region for the bucket.
	Region string
	// Endpoint is an optional custom endpoint (MinIO, LocalStack).
	Endpoint string
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
}

// S3Store implements ObjectStore for AWS S3.
type S3Store struct {
	client     *s3.Client
	bucket     string
	maxRetries int
	baseDelay  time.Duration
}

// NewS3Store loads the default AWS credential chain and returns a store for bucket.
func NewS3Store(ctx context.Context, bucket string, cfg S3Config) (*S3Store, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle || cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewS3StoreWithClient(s3.NewFromConfig(awsCfg, s3Opts...), bucket), nil
}

// NewS3StoreWithClient wraps a pre-configured client.
func NewS3StoreWithClient(client *s3.Client, bucket string) *S3Store {
	return &S3Store{
		client:     client,
		bucket:     bucket,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
	}
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	err := retryWithBackoff(ctx, s.maxRetries, s.baseDelay, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPutFailed, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := retryWithBackoff(ctx, s.maxRetries, s.baseDelay, func() error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var noSuchKey *types.NoSuchKey
			if errors.As(err, &noSuchKey) {
				return ErrObjectNotFound
			}
			return err
		}
		defer resp.Body.Close()
		data, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrGetFailed, err)
	}
	return data, nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// retryWithBackoff runs operation up to maxRetries+1 times, sleeping
// base*2^attempt between attempts. ErrObjectNotFound is not retried.
func retryWithBackoff(ctx context.Context, maxRetries int, base time.Duration, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil || errors.Is(lastErr, ErrObjectNotFound) {
			return lastErr
		}

		if attempt < maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * base
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
