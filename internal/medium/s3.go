package medium

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds the connection settings for the S3-backed medium.
type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
}

// S3Medium stores each key as an object in a bucket. It lets the studio run
// with shared durable storage instead of the per-host file medium.
type S3Medium struct {
	client   *minio.Client
	bucket   string
	capacity int64
	timeout  time.Duration
	logger   *slog.Logger
}

// NewS3 connects to the configured endpoint and ensures the bucket exists.
// A capacity of 0 means unlimited.
func NewS3(cfg S3Config, capacity int64, logger *slog.Logger) (*S3Medium, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage client: %w", err)
	}

	m := &S3Medium{
		client:   client,
		bucket:   cfg.Bucket,
		capacity: capacity,
		timeout:  30 * time.Second,
		logger:   logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return m, nil
}

func (s *S3Medium) objectName(key string) string {
	return strings.ReplaceAll(key, "/", "_")
}

func (s *S3Medium) Get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	obj, err := s.client.GetObject(ctx, s.bucket, s.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return "", false
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code != "NoSuchKey" {
			s.logger.Warn("failed to read object", "key", key, "error", err)
		}
		return "", false
	}
	return string(data), true
}

func (s *S3Medium) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if s.capacity > 0 {
		usage := s.usageExcluding(ctx, s.objectName(key))
		if usage+int64(len(value)) > s.capacity {
			return ErrQuotaExceeded
		}
	}

	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		s.objectName(key),
		strings.NewReader(value),
		int64(len(value)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	if err != nil {
		return fmt.Errorf("failed to store key %q: %w", key, err)
	}
	return nil
}

func (s *S3Medium) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.client.RemoveObject(ctx, s.bucket, s.objectName(key), minio.RemoveObjectOptions{})
	if err != nil {
		s.logger.Warn("failed to delete key", "key", key, "error", err)
	}
}

func (s *S3Medium) usageExcluding(ctx context.Context, skip string) int64 {
	var usage int64
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{}) {
		if obj.Err != nil {
			s.logger.Warn("failed to list objects", "error", obj.Err)
			break
		}
		if obj.Key == skip {
			continue
		}
		usage += obj.Size
	}
	return usage
}
