package archive

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kenchrcum/moonball/internal/archiveerr"
	"github.com/kenchrcum/moonball/internal/cipher"
	"github.com/kenchrcum/moonball/internal/codec"
	"github.com/kenchrcum/moonball/internal/otp"
)

// maxHeaderLen guards against a corrupted or hostile length prefix claiming
// an implausibly large header.
const maxHeaderLen = 1 << 30 // 1 GiB

// decryptor is satisfied by *cipher.Cipher.
type decryptor interface {
	Decrypt([]byte) ([]byte, error)
}

// Reader parses and extracts a MoonBall archive. Extraction is strictly
// sequential: the body layout is position-dependent with no per-chunk
// offset index, so chunks must be consumed in the order they were written.
type Reader struct {
	cipher decryptor
	levels codec.Levels
}

// NewReader returns a Reader. c may be nil for unencrypted archives.
func NewReader(c decryptor) *Reader {
	return &Reader{cipher: c, levels: codec.DefaultLevels()}
}

// ReadMetadata parses only the header, for callers (like `moonball --search`)
// that need the chunk index without extracting any file contents.
func (r *Reader) ReadMetadata(archivePath string) (Metadata, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return Metadata{}, fmt.Errorf("archive: %w: %v", archiveerr.ErrIO, err)
	}
	defer f.Close()

	meta, _, err := r.readHeader(f)
	return meta, err
}

func (r *Reader) readHeader(f io.Reader) (Metadata, int64, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return Metadata{}, 0, fmt.Errorf("archive: %w: header length: %v", archiveerr.ErrCorruptArchive, err)
	}
	headerLen := binary.BigEndian.Uint64(lenBuf[:])
	if headerLen > maxHeaderLen {
		return Metadata{}, 0, fmt.Errorf("archive: %w: header length %d exceeds maximum", archiveerr.ErrCorruptArchive, headerLen)
	}

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return Metadata{}, 0, fmt.Errorf("archive: %w: truncated header: %v", archiveerr.ErrCorruptArchive, err)
	}

	plainHeader := headerBytes
	if r.cipher != nil {
		decrypted, err := r.cipher.Decrypt(headerBytes)
		if err != nil {
			return Metadata{}, 0, archiveerr.ErrAuthFailure
		}
		plainHeader = decrypted
	}

	var meta Metadata
	if err := json.Unmarshal(plainHeader, &meta); err != nil {
		return Metadata{}, 0, fmt.Errorf("archive: %w: header JSON: %v", archiveerr.ErrCorruptArchive, err)
	}

	return meta, int64(8 + headerLen), nil
}

// Extract parses archivePath, runs the TOTP gate when required, and writes
// every file into outputDir, reassembling each by ascending chunkId.
func (r *Reader) Extract(archivePath, outputDir, totpCode string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("archive: %w: %v", archiveerr.ErrIO, err)
	}
	defer f.Close()

	meta, headerConsumed, err := r.readHeaderFromFile(f)
	if err != nil {
		return err
	}

	if meta.Requires2FA {
		if err := otp.New(meta.SecretKey).Verify(totpCode); err != nil {
			return fmt.Errorf("archive: %w: %w", archiveerr.ErrAuthFailure, err)
		}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("archive: %w: %v", archiveerr.ErrIO, err)
	}

	var openFiles = map[string]*os.File{}
	defer func() {
		for _, of := range openFiles {
			of.Close()
		}
	}()

	for _, cm := range meta.Chunks {
		payload := make([]byte, cm.CompressedSize)
		if _, err := io.ReadFull(f, payload); err != nil {
			return fmt.Errorf("archive: %w: truncated body at %s chunk %d: %v", archiveerr.ErrCorruptArchive, cm.FileName, cm.ChunkID, err)
		}

		// compressedSize records the on-disk length (post-compression,
		// post-encryption per spec.md §3); once decrypted, the compressed
		// payload itself is shorter by the AEAD's salt/nonce/tag overhead.
		// Deriving the expected length from cm rather than the just-read
		// slice keeps Decompress's internal size check live: a tampered
		// compressedSize field now disagrees with the actual compressed
		// length instead of trivially matching itself.
		expectedCompressedSize := int(cm.CompressedSize)
		if meta.EncryptionEnabled {
			if r.cipher == nil {
				return fmt.Errorf("archive: %w", archiveerr.ErrAuthFailure)
			}
			decrypted, err := r.cipher.Decrypt(payload)
			if err != nil {
				return fmt.Errorf("archive: %w", archiveerr.ErrAuthFailure)
			}
			payload = decrypted
			expectedCompressedSize -= cipher.Overhead
		}

		plain, err := codec.Decompress(codec.Algorithm(cm.CompressionAlgo), payload, expectedCompressedSize)
		if err != nil {
			return err
		}
		if int64(len(plain)) != cm.OriginalSize {
			return fmt.Errorf("archive: %w: %s chunk %d size mismatch", archiveerr.ErrCorruptArchive, cm.FileName, cm.ChunkID)
		}

		of, ok := openFiles[cm.FileName]
		if !ok {
			destPath, err := safeExtractPath(outputDir, cm.FileName)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
				return fmt.Errorf("archive: %w: %v", archiveerr.ErrIO, err)
			}
			of, err = os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return fmt.Errorf("archive: %w: %v", archiveerr.ErrIO, err)
			}
			openFiles[cm.FileName] = of
		}
		if _, err := of.Write(plain); err != nil {
			return fmt.Errorf("archive: %w: %v", archiveerr.ErrIO, err)
		}
	}

	_ = headerConsumed // reserved for future range-extraction support

	footer, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("archive: %w: %v", archiveerr.ErrCorruptArchive, err)
	}
	if meta.EncryptionEnabled {
		if r.cipher == nil {
			return fmt.Errorf("archive: %w", archiveerr.ErrAuthFailure)
		}
		decryptedFooter, err := r.cipher.Decrypt(footer)
		if err != nil {
			return fmt.Errorf("archive: %w", archiveerr.ErrAuthFailure)
		}
		footer = decryptedFooter
	}

	headerRaw, err := r.rawHeaderBytes(archivePath)
	if err != nil {
		return err
	}
	expected := md5Hex(headerRaw)
	if string(footer) != expected {
		return fmt.Errorf("archive: %w: checksum mismatch", archiveerr.ErrCorruptArchive)
	}

	return nil
}

func (r *Reader) readHeaderFromFile(f *os.File) (Metadata, int64, error) {
	return r.readHeader(f)
}

// safeExtractPath joins fileName (the caller-supplied path recorded at build
// time, per spec.md §3) onto outputDir and rejects any result that escapes
// outputDir (a fileName built from ".." components), so extracting a hostile
// or corrupt archive can never write outside the requested directory. An
// absolute fileName is nested under outputDir by the join, not rejected.
func safeExtractPath(outputDir, fileName string) (string, error) {
	joined := filepath.Join(outputDir, fileName)
	rel, err := filepath.Rel(filepath.Clean(outputDir), joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive: %w: %q escapes output directory", archiveerr.ErrCorruptArchive, fileName)
	}
	return joined, nil
}

// rawHeaderBytes re-opens the archive and returns the header bytes exactly as
// stored, decrypted when the Reader has a cipher, for checksum comparison —
// checking against these bytes rather than a re-marshal of the parsed struct
// avoids JSON re-marshal nondeterminism entirely.
func (r *Reader) rawHeaderBytes(archivePath string) ([]byte, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("archive: %w: %v", archiveerr.ErrIO, err)
	}
	defer f.Close()

	var lenBuf [8]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("archive: %w: %v", archiveerr.ErrCorruptArchive, err)
	}
	headerLen := binary.BigEndian.Uint64(lenBuf[:])
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, fmt.Errorf("archive: %w: %v", archiveerr.ErrCorruptArchive, err)
	}

	if r.cipher == nil {
		return headerBytes, nil
	}
	decrypted, err := r.cipher.Decrypt(headerBytes)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", archiveerr.ErrAuthFailure)
	}
	return decrypted, nil
}
