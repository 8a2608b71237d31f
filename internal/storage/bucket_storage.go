package storage

import (
	"context"
	"errors"
	"fmt"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

// BucketStorage is a StorageEngine over a portable Go CDK bucket, selected
// by URL ("mem://", "file:///var/lib/blobs", ...).
type BucketStorage struct {
	bucket    *blob.Bucket
	chunkSize int
}

// OpenBucketStorage opens the bucket named by bucketURL.
func OpenBucketStorage(ctx context.Context, bucketURL string, chunkSize int) (*BucketStorage, error) {
	if bucketURL == "" {
		return nil, errors.New("bucket url must not be empty")
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %q: %w", bucketURL, err)
	}

	return &BucketStorage{bucket: bucket, chunkSize: chunkSize}, nil
}

// Close closes the bucket.
func (s *BucketStorage) Close() error {
	return s.bucket.Close()
}

// PutBlob writes every chunk through a bucket writer. On failure the writer's
// context is cancelled before Close so the partial object is discarded.
func (s *BucketStorage) PutBlob(ctx context.Context, key string, src ChunkSource) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := s.bucket.NewWriter(wctx, key, &blob.WriterOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("open writer for %q: %w", key, err)
	}

	if err := writeChunks(ctx, w, src); err != nil {
		cancel()
		_ = w.Close()
		return err
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("commit %q: %w", key, err)
	}
	return nil
}

func (s *BucketStorage) GetBlob(ctx context.Context, key string) (ChunkStream, bool, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open reader for %q: %w", key, err)
	}

	return ReaderChunks(r, s.chunkSize), true, nil
}
