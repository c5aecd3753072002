package chunkuploader

import (
	"fmt"
	"io"
)

// ChunkProvider reads the bytes of a chunk range.
type ChunkProvider interface {
	// ReadChunk returns the bytes of the given range. The returned slice is only valid
	// until the next call.
	ReadChunk(r ChunkRange) ([]byte, error)
}

// ReaderAtChunkProvider reads chunk windows from an io.ReaderAt, typically an *os.File.
// It keeps a single buffer of at most chunkSize bytes, so memory use does not depend on
// the file size.
type ReaderAtChunkProvider struct {
	reader io.ReaderAt
	buf    []byte
}

// NewReaderAtChunkProvider creates a ChunkProvider over the given reader.
func NewReaderAtChunkProvider(reader io.ReaderAt, chunkSize uint64) *ReaderAtChunkProvider {
	return &ReaderAtChunkProvider{
		reader: reader,
		buf:    make([]byte, 0, chunkSize),
	}
}

// ReadChunk returns the bytes of the given range.
func (p *ReaderAtChunkProvider) ReadChunk(r ChunkRange) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	size := int(r.Size())
	if cap(p.buf) < size {
		p.buf = make([]byte, size)
	}
	chunk := p.buf[:size]

	n, err := p.reader.ReadAt(chunk, int64(r.Start))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read chunk %s: %w", r, err)
	}
	if n != size {
		return nil, fmt.Errorf("read chunk %s: short read, got %d of %d bytes", r, n, size)
	}
	return chunk, nil
}
