package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix   = "blob:"
	versionKeyPrefix = "blobver:"
)

// errStaleFill aborts a cache fill whose payload was read before a newer put.
var errStaleFill = errors.New("blob changed while it was read")

// RedisOptions configures the read-through cache in front of an engine.
type RedisOptions struct {
	Addr     string        `mapstructure:"addr"`
	TTL      time.Duration `mapstructure:"ttl"`
	MaxBytes int           `mapstructure:"max_bytes"`
}

// CachedStorage decorates a StorageEngine with a Redis read-through cache.
// Cache failures never fail a request; they are logged and the inner engine
// is used instead.
type CachedStorage struct {
	inner    StorageEngine
	client   *redis.Client
	ttl      time.Duration
	maxBytes int
}

// NewCachedStorage connects to Redis and wraps inner.
func NewCachedStorage(ctx context.Context, inner StorageEngine, opts RedisOptions) (*CachedStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 1 << 20
	}

	return &CachedStorage{
		inner:    inner,
		client:   client,
		ttl:      opts.TTL,
		maxBytes: opts.MaxBytes,
	}, nil
}

// Close closes the Redis client and the wrapped engine.
func (c *CachedStorage) Close() error {
	return errors.Join(c.client.Close(), Close(c.inner))
}

// PutBlob writes through to the inner engine, then bumps the key's version
// and drops any cached copy. A fill started against an older version is
// refused by fill, so a slow reader cannot cache the payload this put
// replaced.
func (c *CachedStorage) PutBlob(ctx context.Context, key string, src ChunkSource) error {
	if err := c.inner.PutBlob(ctx, key, src); err != nil {
		return err
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKeyPrefix+key)
		pipe.Del(ctx, cacheKeyPrefix+key)
		return nil
	})
	if err != nil {
		slog.Warn("Failed to invalidate cached blob", "key", key, "error", err)
	}
	return nil
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// version returns the put counter of key; a key never put through the cache
// is at version 0.
func (c *CachedStorage) version(ctx context.Context, getter stringGetter, key string) (int64, error) {
	v, err := getter.Get(ctx, versionKeyPrefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *CachedStorage) GetBlob(ctx context.Context, key string) (ChunkStream, bool, error) {
	data, err := c.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	switch {
	case err == nil:
		return SliceChunks([][]byte{data}), true, nil
	case !errors.Is(err, redis.Nil):
		slog.Warn("Blob cache lookup failed", "key", key, "error", err)
	}

	// The version must be read before the inner engine is.
	version, verErr := c.version(ctx, c.client, key)
	if verErr != nil {
		slog.Warn("Blob cache version lookup failed", "key", key, "error", verErr)
	}

	stream, found, err := c.inner.GetBlob(ctx, key)
	if err != nil || !found || verErr != nil {
		return stream, found, err
	}

	return &cachingStream{ChunkStream: stream, cache: c, key: key, version: version}, true, nil
}

// cachingStream forwards chunks from the inner engine and stores the payload
// in Redis once the stream has been drained completely.
type cachingStream struct {
	ChunkStream
	cache   *CachedStorage
	key     string
	version int64
	buf     []byte

	// skip is set once the payload outgrows the cache limit or has already
	// been cached.
	skip bool
}

func (s *cachingStream) NextChunk(ctx context.Context) ([]byte, error) {
	chunk, err := s.ChunkStream.NextChunk(ctx)
	if errors.Is(err, io.EOF) {
		s.fill(ctx)
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}

	if !s.skip {
		if len(s.buf)+len(chunk) > s.cache.maxBytes {
			s.skip = true
			s.buf = nil
		} else {
			s.buf = append(s.buf, chunk...)
		}
	}
	return chunk, nil
}

func (s *cachingStream) fill(ctx context.Context) {
	if s.skip {
		return
	}
	s.skip = true
	if s.buf == nil {
		s.buf = []byte{}
	}

	c := s.cache
	versionKey := versionKeyPrefix + s.key
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := c.version(ctx, tx, s.key)
		if err != nil {
			return err
		}
		if current != s.version {
			return errStaleFill
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKeyPrefix+s.key, s.buf, c.ttl)
			return nil
		})
		return err
	}, versionKey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		slog.Debug("Skipped caching a replaced blob", "key", s.key)
	default:
		slog.Warn("Failed to cache blob", "key", s.key, "error", err)
	}
}
