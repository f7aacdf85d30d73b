package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	glob "github.com/ryanuber/go-glob"
	"github.com/sirupsen/logrus"

	"github.com/kenchrcum/moonball/internal/archiveerr"
	"github.com/kenchrcum/moonball/internal/chunk"
	"github.com/kenchrcum/moonball/internal/cipher"
	"github.com/kenchrcum/moonball/internal/codec"
	"github.com/kenchrcum/moonball/internal/debug"
	"github.com/kenchrcum/moonball/internal/embed"
	"github.com/kenchrcum/moonball/internal/otp"
)

// payload is a chunk's final bytes, held either in memory or, once spilled
// past WithMemoryLimit, on disk under SpillPath (Bytes is nil in that case).
type payload struct {
	Bytes     []byte
	SpillPath string
	Size      int64
}

// chunkResult is what a worker pushes onto the result channel: one chunk's
// finished metadata paired with its final (possibly encrypted) payload.
// Payloads and chunk metadata travel only through this channel; the one
// mutex in Builder (bookmu) guards the file-name bookkeeping alone.
type chunkResult struct {
	fileName string
	chunkID  int
	meta     ChunkMetadata
	payload  payload
}

// Builder orchestrates chunk -> select -> compress -> encrypt -> embed and
// accumulates the results into a frozen Metadata + ordered payload list.
type Builder struct {
	workers       int
	levels        codec.Levels
	chunkSize     int
	cipherImpl    *cipher.Cipher
	encryption    bool
	embedder      *embed.Client
	embeddings    bool
	secretKey     string
	requires2FA   bool
	excludeGlob   string
	logger        *logrus.Logger

	spillDir    string
	memoryLimit int64

	ctx    context.Context
	cancel context.CancelFunc

	sem chan struct{}
	wg  sync.WaitGroup

	resultCh chan chunkResult
	accDone  chan map[string]map[int]chunkResult

	bookmu    sync.Mutex
	fileOrder []string
	seenNames map[string]bool

	errOnce sync.Once
	firstErr error
}

// Option configures a Builder.
type Option func(*Builder)

// WithWorkers caps build concurrency. Default runtime.NumCPU().
func WithWorkers(n int) Option { return func(b *Builder) { b.workers = n } }

// WithScheme selects one of the "fast", "balanced", "max" codec-level
// presets referenced by cmd/moonball's --scheme flag.
func WithScheme(scheme string) Option {
	return func(b *Builder) {
		switch scheme {
		case "fast":
			b.levels = codec.Levels{BrotliQuality: 5, LzmaPreset: 1, ZstdLevel: int(zstdFastest)}
		case "max":
			b.levels = codec.Levels{BrotliQuality: 11, LzmaPreset: 9, ZstdLevel: int(zstdBest)}
		default: // "balanced" and unrecognized values fall back to spec defaults
			b.levels = codec.DefaultLevels()
		}
	}
}

// WithLevels sets explicit per-codec levels, overriding WithScheme.
func WithLevels(lv codec.Levels) Option { return func(b *Builder) { b.levels = lv } }

// WithChunkSize overrides chunk.DefaultSize.
func WithChunkSize(size int) Option { return func(b *Builder) { b.chunkSize = size } }

// WithEncryption enables AES-256-GCM encryption of every payload, the
// header, and the footer, keyed by passphrase.
func WithEncryption(passphrase string) Option {
	return func(b *Builder) {
		b.encryption = true
		b.cipherImpl = cipher.New(passphrase)
	}
}

// WithTwoFactorAuth gates extraction on a TOTP code checked against
// secretKey (base32). Pass "" to have one generated.
func WithTwoFactorAuth(secretKey string) Option {
	return func(b *Builder) {
		b.requires2FA = true
		b.secretKey = secretKey
	}
}

// WithEmbeddings enables per-chunk embedding via client. When disabled
// (client nil or not called), no chunk carries an embedding and
// Metadata.EmbeddingDim stays 0 (I6).
func WithEmbeddings(client *embed.Client) Option {
	return func(b *Builder) {
		b.embeddings = true
		b.embedder = client
	}
}

// WithExcludeGlob skips files (by base name) matching pattern when added via
// AddFiles. AddFile itself always adds unconditionally.
func WithExcludeGlob(pattern string) Option { return func(b *Builder) { b.excludeGlob = pattern } }

// WithSpillDir, combined with WithMemoryLimit, spills payloads above the
// high-water mark to temp files instead of holding them in memory. Off by
// default, matching the baseline spec's in-memory behavior.
func WithSpillDir(dir string) Option { return func(b *Builder) { b.spillDir = dir } }

// WithMemoryLimit sets the per-payload spill threshold in bytes.
func WithMemoryLimit(bytes int64) Option { return func(b *Builder) { b.memoryLimit = bytes } }

// WithLogger attaches a structured logger; defaults to logrus.StandardLogger().
func WithLogger(l *logrus.Logger) Option { return func(b *Builder) { b.logger = l } }

// zstd levels on the standard numeric scale; codec.Compress maps them onto
// klauspost's EncoderLevel via zstd.EncoderLevelFromZstd (1 -> SpeedFastest,
// 10 and above -> SpeedBestCompression).
const (
	zstdFastest = 1
	zstdBest    = 10
)

// NewBuilder creates a Builder bound to ctx for the lifetime of the build:
// an embedder timeout or worker failure cancels this context, aborting
// in-flight and future chunk work.
func NewBuilder(ctx context.Context, opts ...Option) *Builder {
	bctx, cancel := context.WithCancel(ctx)

	b := &Builder{
		workers:   runtime.NumCPU(),
		levels:    codec.DefaultLevels(),
		chunkSize: chunk.DefaultSize,
		logger:    logrus.StandardLogger(),
		ctx:       bctx,
		cancel:    cancel,
		resultCh:  make(chan chunkResult, 64),
		accDone:   make(chan map[string]map[int]chunkResult, 1),
		seenNames: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.workers <= 0 {
		b.workers = 1
	}
	b.sem = make(chan struct{}, b.workers)

	if b.requires2FA && b.secretKey == "" {
		secret, err := otp.NewSecret()
		if err == nil {
			b.secretKey = secret
		}
	}

	go b.accumulate()

	return b
}

// accumulate is the single consumer goroutine that owns the result
// accumulator exclusively; ordering is a property of this one goroutine
// draining resultCh, never of producer-side locking.
func (b *Builder) accumulate() {
	acc := make(map[string]map[int]chunkResult)
	for res := range b.resultCh {
		if acc[res.fileName] == nil {
			acc[res.fileName] = make(map[int]chunkResult)
		}
		acc[res.fileName][res.chunkID] = res
	}
	b.accDone <- acc
}

func (b *Builder) setFirstErr(err error) {
	b.errOnce.Do(func() {
		b.firstErr = err
		b.cancel()
	})
}

// AddFile chunks path, runs the per-chunk pipeline for each chunk
// concurrently (bounded by WithWorkers), and pushes results onto the
// accumulator. Duplicate file names across calls return
// ErrDuplicateFileName; a zero-byte file returns ErrEmptyFile.
func (b *Builder) AddFile(path string) error {
	if err := b.ctx.Err(); err != nil {
		return err
	}

	// fileName is the caller-supplied path verbatim (spec.md §3's literal
	// definition), not its basename: "a/same.txt" and "b/same.txt" are
	// distinct files and must not collide in the duplicate-name check below,
	// even though "a/same.txt" added twice still must.
	fileName := path

	b.bookmu.Lock()
	if b.seenNames[fileName] {
		b.bookmu.Unlock()
		return fmt.Errorf("archive: %w: %q", archiveerr.ErrDuplicateFileName, fileName)
	}
	b.seenNames[fileName] = true
	b.fileOrder = append(b.fileOrder, fileName)
	b.bookmu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive: %w: %v", archiveerr.ErrIO, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("archive: %w: %v", archiveerr.ErrIO, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("archive: %w: %q", archiveerr.ErrEmptyFile, fileName)
	}

	chunks, err := chunk.New(b.chunkSize).Split(fileName, f)
	if err != nil {
		return err
	}

	for _, c := range chunks {
		c := c
		b.wg.Add(1)
		select {
		case b.sem <- struct{}{}:
		case <-b.ctx.Done():
			b.wg.Done()
			return b.ctx.Err()
		}

		go func() {
			defer b.wg.Done()
			defer func() { <-b.sem }()
			b.processChunk(c)
		}()
	}

	return nil
}

// AddFiles is a convenience wrapper over AddFile that filters by
// WithExcludeGlob, grounded on the teacher's use of ryanuber/go-glob for
// path-pattern matching.
func (b *Builder) AddFiles(paths []string) error {
	for _, p := range paths {
		if b.excludeGlob != "" && glob.Glob(b.excludeGlob, filepath.Base(p)) {
			continue
		}
		if err := b.AddFile(p); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) processChunk(c chunk.Chunk) {
	algo := codec.Select(c.Data)

	if debug.Enabled() && b.logger != nil {
		b.logger.WithFields(logrus.Fields{
			"fileName": c.FileName,
			"chunkId":  c.ID,
			"bytes":    len(c.Data),
			"algo":     algo,
		}).Debug("processing chunk")
	}

	compressed, err := codec.Compress(algo, c.Data, b.levels)
	if err != nil {
		b.setFirstErr(err)
		return
	}

	finalBytes := compressed
	if b.encryption {
		finalBytes, err = b.cipherImpl.Encrypt(compressed)
		if err != nil {
			b.setFirstErr(err)
			return
		}
	}

	var vec []float32
	if b.embeddings && b.embedder != nil {
		vec, err = b.embedder.Embed(b.ctx, c.Data)
		if err != nil {
			b.setFirstErr(err)
			return
		}
	}

	p, err := b.toPayload(c.FileName, c.ID, finalBytes)
	if err != nil {
		b.setFirstErr(err)
		return
	}

	meta := ChunkMetadata{
		FileName:        c.FileName,
		ChunkID:         c.ID,
		OriginalSize:    int64(len(c.Data)),
		CompressedSize:  p.Size,
		CompressionAlgo: string(algo),
		Embedding:       vec,
	}

	select {
	case b.resultCh <- chunkResult{fileName: c.FileName, chunkID: c.ID, meta: meta, payload: p}:
	case <-b.ctx.Done():
	}
}

// toPayload holds finalBytes in memory unless WithSpillDir and
// WithMemoryLimit are both set and finalBytes exceeds the limit, in which
// case it is written to a temp file and dropped from memory — the writer
// streams spilled payloads from disk in body order and removes the temp
// files once written (writer.go).
func (b *Builder) toPayload(fileName string, chunkID int, finalBytes []byte) (payload, error) {
	if b.spillDir == "" || b.memoryLimit <= 0 || int64(len(finalBytes)) <= b.memoryLimit {
		return payload{Bytes: finalBytes, Size: int64(len(finalBytes))}, nil
	}

	f, err := os.CreateTemp(b.spillDir, fmt.Sprintf("moonball-spill-%s-%d-*", filepath.Base(fileName), chunkID))
	if err != nil {
		return payload{}, fmt.Errorf("archive: %w: spill: %v", archiveerr.ErrIO, err)
	}
	defer f.Close()

	if _, err := f.Write(finalBytes); err != nil {
		return payload{}, fmt.Errorf("archive: %w: spill write: %v", archiveerr.ErrIO, err)
	}

	b.logger.WithFields(logrus.Fields{"file": fileName, "chunk": chunkID, "path": f.Name()}).Debug("spilled chunk payload to disk")
	return payload{SpillPath: f.Name(), Size: int64(len(finalBytes))}, nil
}

// Close cancels the build context, stopping in-flight chunk workers; the
// builder holds no other resources across AddFile calls. It always returns
// nil and satisfies io.Closer.
func (b *Builder) Close() error {
	b.cancel()
	return nil
}

var _ io.Closer = (*Builder)(nil)
