package storage

import (
	"context"
	"sync"
)

// MemoryStorage is a StorageEngine that keeps every payload in process
// memory. It is meant for tests and throwaway deployments.
type MemoryStorage struct {
	mu    sync.RWMutex
	blobs map[string][][]byte
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{blobs: make(map[string][][]byte)}
}

// PutBlob drains src before publishing the payload, so concurrent readers
// see either the old or the new payload.
func (s *MemoryStorage) PutBlob(ctx context.Context, key string, src ChunkSource) error {
	chunks, err := collectSource(ctx, src)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = chunks
	return nil
}

func (s *MemoryStorage) GetBlob(ctx context.Context, key string) (ChunkStream, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks, ok := s.blobs[key]
	if !ok {
		return nil, false, nil
	}

	// Stored chunks are never mutated, only replaced, so sharing them with
	// the stream is safe.
	return SliceChunks(chunks), true, nil
}

// Len returns the number of stored payloads.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
