package archive

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kenchrcum/moonball/internal/archiveerr"
)

// Save drains the builder's in-flight workers, freezes the accumulated
// chunks into an ordered Metadata, and writes the container to outPath.
// Files appear in AddFile call order; within each file, chunks appear in
// ascending chunkId order (I1, I3).
func (b *Builder) Save(ctx context.Context, outPath string) error {
	b.wg.Wait()
	close(b.resultCh)
	acc := <-b.accDone

	if b.firstErr != nil {
		return b.firstErr
	}

	var chunks []ChunkMetadata
	payloads := make([]payload, 0)
	embeddingDim := 0

	for _, fileName := range b.fileOrder {
		byID := acc[fileName]
		for id := 0; id < len(byID); id++ {
			res, ok := byID[id]
			if !ok {
				return fmt.Errorf("archive: %w: missing chunk %d for %q", archiveerr.ErrCorruptArchive, id, fileName)
			}
			if len(res.meta.Embedding) > 0 && embeddingDim == 0 {
				embeddingDim = len(res.meta.Embedding)
			}
			chunks = append(chunks, res.meta)
			payloads = append(payloads, res.payload)
		}
	}

	meta := Metadata{
		Chunks:            chunks,
		EncryptionEnabled: b.encryption,
		Requires2FA:       b.requires2FA,
		SecretKey:         b.secretKey,
		EmbeddingDim:      embeddingDim,
	}

	return NewWriter(b.cipherImpl).Write(ctx, outPath, meta, payloads)
}

// Writer serializes a frozen Metadata and its ordered payloads to disk.
type Writer struct {
	cipher encryptor
}

// encryptor is satisfied by *cipher.Cipher; kept as an interface here so
// Writer has no direct dependency when encryption is disabled (cipher is nil).
type encryptor interface {
	Encrypt([]byte) ([]byte, error)
}

// NewWriter returns a Writer. c may be nil when the archive is unencrypted.
func NewWriter(c encryptor) *Writer {
	return &Writer{cipher: c}
}

// md5Hex returns the lowercase hex MD5 digest of data, matching the
// distilled spec's footer checksum format unchanged.
func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return fmt.Sprintf("%x", sum)
}

// copySpilledPayload streams a spilled payload from disk into dst and
// removes the temp file afterward, keeping the spill path's lifetime scoped
// to exactly one Write call.
func copySpilledPayload(dst io.Writer, spillPath string) error {
	f, err := os.Open(spillPath)
	if err != nil {
		return fmt.Errorf("archive: %w: open spilled payload: %v", archiveerr.ErrIO, err)
	}
	defer f.Close()
	defer os.Remove(spillPath)

	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("archive: %w: copy spilled payload: %v", archiveerr.ErrIO, err)
	}
	return nil
}

// Write emits HEADER_LEN(8, big-endian) ‖ HEADER ‖ BODY ‖ FOOTER to outPath
// using a temp-file-then-rename strategy, so a failed write never leaves a
// partial archive at the destination path.
func (w *Writer) Write(ctx context.Context, outPath string, meta Metadata, payloads []payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(payloads) != len(meta.Chunks) {
		return fmt.Errorf("archive: %w: %d payloads for %d chunk entries", archiveerr.ErrCorruptArchive, len(payloads), len(meta.Chunks))
	}

	headerBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("archive: %w: marshal header: %v", archiveerr.ErrCodec, err)
	}

	// checksum is computed over the plaintext header JSON, before any
	// encryption is applied to it, per the unchanged checksum rule.
	footerBytes := []byte(md5Hex(headerBytes))

	if meta.EncryptionEnabled {
		if w.cipher == nil {
			return fmt.Errorf("archive: %w: encryptionEnabled but no cipher configured", archiveerr.ErrCipher)
		}
		headerBytes, err = w.cipher.Encrypt(headerBytes)
		if err != nil {
			return err
		}
		footerBytes, err = w.cipher.Encrypt(footerBytes)
		if err != nil {
			return err
		}
	}

	dir := filepath.Dir(outPath)
	tmp, err := os.CreateTemp(dir, ".moonball-build-*")
	if err != nil {
		return fmt.Errorf("archive: %w: %v", archiveerr.ErrIO, err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		tmp.Close()
		if !success {
			os.Remove(tmpPath)
		}
	}()

	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))

	if _, err := tmp.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("archive: %w: %v", archiveerr.ErrIO, err)
	}
	if _, err := tmp.Write(headerBytes); err != nil {
		return fmt.Errorf("archive: %w: %v", archiveerr.ErrIO, err)
	}
	for _, p := range payloads {
		if p.SpillPath != "" {
			if err := copySpilledPayload(tmp, p.SpillPath); err != nil {
				return err
			}
			continue
		}
		if _, err := tmp.Write(p.Bytes); err != nil {
			return fmt.Errorf("archive: %w: %v", archiveerr.ErrIO, err)
		}
	}
	if _, err := tmp.Write(footerBytes); err != nil {
		return fmt.Errorf("archive: %w: %v", archiveerr.ErrIO, err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("archive: %w: %v", archiveerr.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("archive: %w: %v", archiveerr.ErrIO, err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("archive: %w: %v", archiveerr.ErrIO, err)
	}
	success = true
	return nil
}
