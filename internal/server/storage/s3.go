package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store keeps content parts in an S3 (or S3-compatible) bucket under
// "parts/<fileID>/<index>". A custom endpoint with path-style addressing
// supports MinIO and similar services.
type S3Store struct {
	client *s3.Client
	bucket string
}

// S3Config configures the S3 content backend.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, for S3-compatible services
	AccessKey string // optional, falls back to the default credential chain
	SecretKey string
}

// NewS3Store builds the S3 client and verifies bucket access.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	store := &S3Store{client: client, bucket: cfg.Bucket}
	if err := store.Ping(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// PutPart uploads one content part.
func (s *S3Store) PutPart(ctx context.Context, fileID string, index int, data io.Reader) (int64, error) {
	counter := &countingReader{r: data}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.partKey(fileID, index)),
		Body:   counter,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upload part %d of %s: %w", index, fileID, err)
	}
	return counter.n, nil
}

// GetPart downloads one content part.
func (s *S3Store) GetPart(ctx context.Context, fileID string, index int) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.partKey(fileID, index)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download part %d of %s: %w", index, fileID, err)
	}
	return out.Body, nil
}

// DeleteParts removes every stored part of a file.
func (s *S3Store) DeleteParts(ctx context.Context, fileID string, count int) error {
	for i := 0; i < count; i++ {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.partKey(fileID, i)),
		})
		if err != nil {
			return fmt.Errorf("failed to delete part %d of %s: %w", i, fileID, err)
		}
	}
	return nil
}

// Ping verifies the bucket is reachable.
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", s.bucket, err)
	}
	return nil
}

func (s *S3Store) partKey(fileID string, index int) string {
	return fmt.Sprintf("parts/%s/%06d", fileID, index)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
