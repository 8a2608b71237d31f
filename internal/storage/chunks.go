package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
)

// SingleChunk returns a ChunkSource that produces data as exactly one chunk.
// An empty payload still produces a single, empty chunk.
func SingleChunk(data []byte) ChunkSource {
	return &sliceChunks{chunks: [][]byte{data}}
}

// SliceChunks returns a ChunkStream over chunks that are already in memory.
// The same value can be used as a ChunkSource.
func SliceChunks(chunks [][]byte) ChunkStream {
	return &sliceChunks{chunks: chunks}
}

type sliceChunks struct {
	chunks [][]byte
	next   int
}

func (s *sliceChunks) NextChunk(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.chunks) {
		return nil, io.EOF
	}
	chunk := s.chunks[s.next]
	s.next++
	return chunk, nil
}

func (s *sliceChunks) Close() error {
	s.chunks = nil
	return nil
}

// ReaderChunks returns a ChunkStream that splits r into chunks of at most
// size bytes. Closing the stream closes r.
func ReaderChunks(r io.ReadCloser, size int) ChunkStream {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &readerChunks{r: r, size: size}
}

type readerChunks struct {
	r    io.ReadCloser
	size int
	done bool
}

func (s *readerChunks) NextChunk(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.done {
		return nil, io.EOF
	}

	buf := make([]byte, s.size)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case errors.Is(err, io.EOF):
		s.done = true
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
		return buf[:n], nil
	case err != nil:
		return nil, err
	}
	return buf, nil
}

func (s *readerChunks) Close() error {
	return s.r.Close()
}

// ChunkReader adapts a ChunkSource to an io.Reader for engines whose client
// libraries consume readers.
type ChunkReader struct {
	ctx     context.Context
	src     ChunkSource
	pending []byte
	err     error
}

// NewChunkReader returns a reader over the chunks produced by src.
func NewChunkReader(ctx context.Context, src ChunkSource) *ChunkReader {
	return &ChunkReader{ctx: ctx, src: src}
}

func (r *ChunkReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		chunk, err := r.src.NextChunk(r.ctx)
		if err != nil {
			r.err = err
			continue
		}
		r.pending = chunk
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// Collect drains stream and returns the concatenation of its chunks in the
// order they were received. Any failure discards what was read so far.
func Collect(ctx context.Context, stream ChunkStream) ([]byte, error) {
	var buf bytes.Buffer
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, err := stream.NextChunk(ctx)
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
		buf.Write(chunk)
	}
}

// collectSource drains a ChunkSource into a list of chunks, copying each one
// so the caller may retain them after src reuses its buffers.
func collectSource(ctx context.Context, src ChunkSource) ([][]byte, error) {
	var chunks [][]byte
	for {
		chunk, err := src.NextChunk(ctx)
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, bytes.Clone(chunk))
	}
}
