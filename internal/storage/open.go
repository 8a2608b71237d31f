package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Engine kinds accepted by Open.
const (
	KindMemory = "memory"
	KindFS     = "fs"
	KindSQLite = "sqlite"
	KindMinio  = "minio"
	KindBucket = "bucket"
)

// Kinds lists every engine kind accepted by Open.
var Kinds = []string{KindMemory, KindFS, KindSQLite, KindMinio, KindBucket}

// Options selects and configures the storage engine.
type Options struct {
	Kind       string       `mapstructure:"kind"`
	DataDir    string       `mapstructure:"data_dir"`
	SQLitePath string       `mapstructure:"sqlite_path"`
	BucketURL  string       `mapstructure:"bucket_url"`
	ChunkSize  int          `mapstructure:"chunk_size"`
	Minio      MinioOptions `mapstructure:"minio"`
	Redis      RedisOptions `mapstructure:"redis"`
}

// Open builds the engine described by opts, wrapped in a Redis cache when a
// Redis address is configured. Release it with Close.
func Open(ctx context.Context, opts Options) (StorageEngine, error) {
	engine, err := openEngine(ctx, opts)
	if err != nil {
		return nil, err
	}

	if opts.Redis.Addr == "" {
		return engine, nil
	}

	cached, err := NewCachedStorage(ctx, engine, opts.Redis)
	if err != nil {
		return nil, errors.Join(err, Close(engine))
	}

	slog.Info("Blob cache enabled", "addr", opts.Redis.Addr, "ttl", opts.Redis.TTL)
	return cached, nil
}

func openEngine(ctx context.Context, opts Options) (StorageEngine, error) {
	switch opts.Kind {
	case KindMemory:
		return NewMemoryStorage(), nil
	case KindFS:
		return NewLocalFileStorage(opts.DataDir, opts.ChunkSize)
	case KindSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = filepath.Join(opts.DataDir, "blobs.sqlite")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
		return NewSQLiteStorage(ctx, path)
	case KindMinio:
		return NewMinioStorage(ctx, opts.Minio, opts.ChunkSize)
	case KindBucket:
		return OpenBucketStorage(ctx, opts.BucketURL, opts.ChunkSize)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", opts.Kind)
	}
}
