package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	objectsDirName = "objects"
	tempDirName    = ".tmp"
)

// LocalFileStorage is a StorageEngine implementation that stores payloads on
// the local filesystem under dataDir/objects. Each "/"-separated key segment
// becomes one directory level, so a key "img/thumbnails/x" lives at
// dataDir/objects/img/thumbnails/x. Temp files live beside it in
// dataDir/.tmp, outside the key space.
type LocalFileStorage struct {
	dataDir   string
	chunkSize int
}

// NewLocalFileStorage creates a new LocalFileStorage rooted at dataDir. Reads
// are split into chunks of chunkSize bytes.
func NewLocalFileStorage(dataDir string, chunkSize int) (*LocalFileStorage, error) {
	if dataDir == "" {
		return nil, errors.New("data dir must not be empty")
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	for _, dir := range []string{objectsDirName, tempDirName} {
		if err := os.MkdirAll(filepath.Join(dataDir, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	return &LocalFileStorage{dataDir: dataDir, chunkSize: chunkSize}, nil
}

// ObjectPath computes the full filesystem path for the payload stored under
// key. Keys with empty, "." or ".." segments are rejected so that no key can
// escape the storage root or alias another key.
func ObjectPath(directory string, key string) (string, error) {
	segments := strings.Split(key, "/")
	for _, segment := range segments {
		switch segment {
		case "", ".", "..":
			return "", fmt.Errorf("invalid key %q: bad segment %q", key, segment)
		}
		if strings.ContainsRune(segment, filepath.Separator) {
			return "", fmt.Errorf("invalid key %q: segment %q contains a path separator", key, segment)
		}
	}

	return filepath.Join(append([]string{directory}, segments...)...), nil
}

// PutBlob writes the chunks into a temporary file and renames it into place
// once every chunk has been written. A cancelled or failed write leaves the
// previous payload untouched.
func (s *LocalFileStorage) PutBlob(ctx context.Context, key string, src ChunkSource) error {
	objPath, err := ObjectPath(filepath.Join(s.dataDir, objectsDirName), key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Join(s.dataDir, tempDirName), "put-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := writeChunks(ctx, tmp, src); err != nil {
		_ = tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return err
	}

	return moveFile(tmpPath, objPath)
}

func writeChunks(ctx context.Context, w io.Writer, src ChunkSource) error {
	for {
		chunk, err := src.NextChunk(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}
}

func (s *LocalFileStorage) GetBlob(ctx context.Context, key string) (ChunkStream, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	// Nothing can have been stored under a key without a path.
	objPath, err := ObjectPath(filepath.Join(s.dataDir, objectsDirName), key)
	if err != nil {
		return nil, false, nil
	}

	f, err := os.Open(objPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, false, err
	}

	// A key that names an intermediate directory is not a stored payload.
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, false, nil
	}

	return ReaderChunks(f, s.chunkSize), true, nil
}
