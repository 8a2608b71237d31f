package storage

import (
	"context"
	"io"
)

// DefaultChunkSize is the chunk granularity used by engines that split a
// stored payload into chunks on read.
const DefaultChunkSize = 64 * 1024

// ChunkSource produces the chunks of a payload that is being written.
type ChunkSource interface {
	// NextChunk returns the next chunk of the payload, or io.EOF once every
	// chunk has been produced.
	NextChunk(ctx context.Context) ([]byte, error)
}

// ChunkStream yields the chunks of a stored payload in order. Callers must
// Close the stream once they are done with it, even after io.EOF.
type ChunkStream interface {
	// NextChunk returns the next chunk of the payload, or io.EOF after the
	// last chunk.
	NextChunk(ctx context.Context) ([]byte, error)

	io.Closer
}

// StorageEngine defines the interface for a storage backend that persists
// chunked byte streams under a hierarchical key. Implementations must be
// safe for concurrent use.
type StorageEngine interface {
	// PutBlob stores the chunks produced by src under key, replacing any
	// payload previously stored there. A reader never observes a mix of
	// two writes.
	PutBlob(ctx context.Context, key string, src ChunkSource) error

	// GetBlob opens the payload stored under key. found is false, with a nil
	// error, when nothing is stored under key.
	GetBlob(ctx context.Context, key string) (stream ChunkStream, found bool, err error)
}

// Close releases the resources held by engine, if it holds any.
func Close(engine StorageEngine) error {
	if closer, ok := engine.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
