package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioOptions configures a MinioStorage.
type MinioOptions struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// MinioStorage is a StorageEngine backed by an S3-compatible object store.
// Every key maps to one object in a single bucket.
type MinioStorage struct {
	client    *minio.Client
	bucket    string
	chunkSize int
}

// NewMinioStorage connects to the object store and makes sure the bucket
// exists.
func NewMinioStorage(ctx context.Context, opts MinioOptions, chunkSize int) (*MinioStorage, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("minio endpoint is required")
	}
	if opts.Bucket == "" {
		return nil, errors.New("minio bucket name is required")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	if err := ensureBucket(ctx, client, opts.Bucket); err != nil {
		return nil, err
	}

	return &MinioStorage{client: client, bucket: opts.Bucket, chunkSize: chunkSize}, nil
}

// ensureBucket checks if a bucket exists, and creates it if it does not.
func ensureBucket(ctx context.Context, client *minio.Client, bucketName string) error {
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %q: %w", bucketName, err)
		}
	}
	return nil
}

// PutBlob streams the chunks as one object of unknown size. The object only
// becomes visible once the upload completes.
func (s *MinioStorage) PutBlob(ctx context.Context, key string, src ChunkSource) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, NewChunkReader(ctx, src), -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %q to bucket %q: %w", key, s.bucket, err)
	}
	return nil
}

func (s *MinioStorage) GetBlob(ctx context.Context, key string) (ChunkStream, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get object %q: %w", key, err)
	}

	// GetObject is lazy; Stat issues the request and surfaces NoSuchKey.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to stat object %q: %w", key, err)
	}

	return ReaderChunks(obj, s.chunkSize), true, nil
}
