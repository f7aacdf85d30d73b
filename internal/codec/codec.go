// Package codec dispatches chunk compression and decompression by algorithm
// tag. It is grounded on the teacher's registry-style dispatch (compare
// internal/crypto/chunked.go's format-by-tag handling) adapted from a
// crypto-format registry to a compression-algorithm registry.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz/lzma"

	"github.com/kenchrcum/moonball/internal/archiveerr"
)

// Algorithm names a chunk compression codec.
type Algorithm string

const (
	Brotli Algorithm = "brotli"
	Lzma   Algorithm = "lzma"
	Zstd   Algorithm = "zstd"
)

// brotliWindow is fixed at 22 (a 4 MiB window, brotli's default size; the
// format allows up to 24) for the gateway's already-chunked payloads.
const brotliWindow = 22

// Levels holds the tunable knob per codec. Builder.WithScheme and the config
// loader populate this from `compression_algorithms.*`.
type Levels struct {
	BrotliQuality int // default 11
	LzmaPreset    int // default 6
	ZstdLevel     int // default 3 (zstd.SpeedDefault)
}

// DefaultLevels matches spec.md's defaults exactly.
func DefaultLevels() Levels {
	return Levels{BrotliQuality: 11, LzmaPreset: 6, ZstdLevel: 3}
}

// Select is the algorithm selector: chunks larger than 1MiB favor brotli's
// better ratio at higher cost; smaller chunks favor zstd's speed. It is pure
// and referentially transparent — the same chunk size always selects the
// same algorithm. Lzma is never chosen by Select but remains fully
// implemented below as a future policy hook, per spec.md.
func Select(chunk []byte) Algorithm {
	if len(chunk) > 1<<20 {
		return Brotli
	}
	return Zstd
}

// Compress encodes data with the named algorithm at the given levels.
func Compress(algo Algorithm, data []byte, lv Levels) ([]byte, error) {
	var buf bytes.Buffer

	switch algo {
	case Brotli:
		w := brotli.NewWriterOptions(&buf, brotli.WriterOptions{Quality: lv.BrotliQuality, LGWin: brotliWindow})
		if _, err := io.CopyBuffer(w, bytes.NewReader(data), make([]byte, 4096)); err != nil {
			return nil, fmt.Errorf("codec: brotli compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("codec: brotli flush: %w", err)
		}
	case Lzma:
		cfg := lzma.Writer2Config{}
		if lv.LzmaPreset > 0 {
			cfg.DictCap = presetDictCap(lv.LzmaPreset)
		}
		w, err := cfg.NewWriter2(&buf)
		if err != nil {
			return nil, fmt.Errorf("codec: lzma writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("codec: lzma compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("codec: lzma flush: %w", err)
		}
	case Zstd:
		level := zstd.EncoderLevelFromZstd(lv.ZstdLevel)
		if lv.ZstdLevel == 0 {
			level = zstd.SpeedDefault
		}
		w, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(level))
		if err != nil {
			return nil, fmt.Errorf("codec: zstd writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			w.Close()
			return nil, fmt.Errorf("codec: zstd compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("codec: zstd flush: %w", err)
		}
	default:
		return nil, fmt.Errorf("codec: %w: %q", archiveerr.ErrCodec, algo)
	}

	return buf.Bytes(), nil
}

// Decompress decodes data compressed with the named algorithm. compressedSize
// is the exact number of input bytes the caller expects this call to
// consume (per I2); a mismatch is reported as ErrCorruptArchive.
func Decompress(algo Algorithm, data []byte, compressedSize int) ([]byte, error) {
	if len(data) != compressedSize {
		return nil, fmt.Errorf("codec: %w: expected %d compressed bytes, got %d", archiveerr.ErrCorruptArchive, compressedSize, len(data))
	}

	var r io.Reader
	switch algo {
	case Brotli:
		r = brotli.NewReader(bytes.NewReader(data))
	case Lzma:
		lr, err := lzma.NewReader2(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("codec: %w: lzma: %v", archiveerr.ErrCorruptArchive, err)
		}
		r = lr
	case Zstd:
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("codec: %w: zstd: %v", archiveerr.ErrCorruptArchive, err)
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("codec: %w: unrecognized algorithm tag %q", archiveerr.ErrCorruptArchive, algo)
	}

	buf := make([]byte, 0, compressedSize*2+64)
	out := bytes.NewBuffer(buf)
	if _, err := io.CopyBuffer(out, r, make([]byte, 4096)); err != nil {
		return nil, fmt.Errorf("codec: %w: %v", archiveerr.ErrCorruptArchive, err)
	}
	return out.Bytes(), nil
}

// presetDictCap maps a gzip-style 1-9 preset onto an LZMA dictionary size,
// mirroring xz's own preset-to-dictionary mapping at a coarser granularity.
func presetDictCap(preset int) int {
	switch {
	case preset <= 1:
		return 1 << 20
	case preset <= 3:
		return 4 << 20
	case preset <= 6:
		return 8 << 20
	case preset <= 8:
		return 32 << 20
	default:
		return 64 << 20
	}
}
