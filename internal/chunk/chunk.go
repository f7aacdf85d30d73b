// Package chunk splits a file into fixed-size chunks with stable ordinals.
//
// Grounded on FairForge-vaultaire's FixedChunker shape (Chunk/ChunkBytes,
// channel-based streaming variant) but content-agnostic: this archiver's
// chunk boundaries are fixed byte offsets, never content-defined, since
// FastCDC-style chunking is explicitly out of scope for this format.
package chunk

import (
	"fmt"
	"io"

	"github.com/kenchrcum/moonball/internal/archiveerr"
)

// DefaultSize is the default chunk size, 5 MiB, matching spec.md.
const DefaultSize = 5 * 1024 * 1024

// Chunk is one fixed-size slice of a file, keyed by (FileName, ID) rather
// than content hash.
type Chunk struct {
	FileName string
	ID       int // 0-based, incrementing
	Data     []byte
}

// Result wraps a Chunk or an error from the streaming variant.
type Result struct {
	Chunk Chunk
	Err   error
}

// Chunker reads a file as a sequence of fixed-size chunks.
type Chunker struct {
	size int
}

// New returns a Chunker with the given chunk size. Zero or negative falls
// back to DefaultSize.
func New(size int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	return &Chunker{size: size}
}

// Split reads r to completion and returns its chunks in order. A zero-byte
// reader yields zero chunks and no error; callers that must reject empty
// files (per ErrEmptyFile) do so themselves at the file-open boundary
// (Builder.AddFile checks the file size before splitting).
func (c *Chunker) Split(fileName string, r io.Reader) ([]Chunk, error) {
	var chunks []Chunk
	id := 0

	for {
		buf := make([]byte, c.size)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunks = append(chunks, Chunk{FileName: fileName, ID: id, Data: buf[:n]})
			id++
		}
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			// final short chunk already appended above
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chunk: %w: %v", archiveerr.ErrIO, err)
		}
	}

	return chunks, nil
}

// Stream is the channel-based variant, useful for large files the builder
// does not want to hold entirely in memory before dispatching workers.
func (c *Chunker) Stream(fileName string, r io.Reader) <-chan Result {
	out := make(chan Result, 4)

	go func() {
		defer close(out)

		id := 0
		for {
			buf := make([]byte, c.size)
			n, err := io.ReadFull(r, buf)
			if n > 0 {
				out <- Result{Chunk: Chunk{FileName: fileName, ID: id, Data: buf[:n]}}
				id++
			}
			if err == io.EOF {
				return
			}
			if err == io.ErrUnexpectedEOF {
				return
			}
			if err != nil {
				out <- Result{Err: fmt.Errorf("chunk: %w: %v", archiveerr.ErrIO, err)}
				return
			}
		}
	}()

	return out
}
