// Command moonball is the MoonBall archiver CLI: build an archive from a set
// of input files, extract one back to disk, or run a semantic search query
// against an existing archive's embeddings. Flag parsing and the long/short
// alias-to-same-variable pattern are grounded on cmd/loadtest/main.go.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenchrcum/moonball/internal/archive"
	"github.com/kenchrcum/moonball/internal/archiveerr"
	"github.com/kenchrcum/moonball/internal/audit"
	"github.com/kenchrcum/moonball/internal/cipher"
	"github.com/kenchrcum/moonball/internal/codec"
	"github.com/kenchrcum/moonball/internal/config"
	"github.com/kenchrcum/moonball/internal/embed"
	"github.com/kenchrcum/moonball/internal/logging"
	"github.com/kenchrcum/moonball/internal/metrics"
	"github.com/kenchrcum/moonball/internal/search"
	"github.com/kenchrcum/moonball/internal/server"
)

// Exit codes, per SPEC_FULL.md §6.2.
const (
	exitOK              = 0
	exitUsage           = 2
	exitAuthFailure     = 3
	exitCorruptArchive  = 4
	exitIO              = 5
	exitEmbedderFailure = 6
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) > 0 && args[0] == "serve" {
		return doServe(args[1:])
	}

	fs := flag.NewFlagSet("moonball", flag.ContinueOnError)

	var addPaths stringList
	fs.Var(&addPaths, "add", "file to archive (repeatable)")
	fs.Var(&addPaths, "a", "shorthand for --add")

	extractPath := fs.String("extract", "", "archive to extract")
	fs.StringVar(extractPath, "e", "", "shorthand for --extract")

	output := fs.String("output", "", "output archive path (build) or directory (extract)")
	fs.StringVar(output, "o", "", "shorthand for --output")

	scheme := fs.String("scheme", "balanced", "codec level preset: fast|balanced|max")
	fs.StringVar(scheme, "s", "balanced", "shorthand for --scheme")

	extension := fs.String("extension", "mnbl", "output extension: mnbl|\U0001F315")
	fs.StringVar(extension, "x", "mnbl", "shorthand for --extension")

	searchQuery := fs.String("search", "", "semantic query against --extract's archive")
	fs.StringVar(searchQuery, "S", "", "shorthand for --search")

	otpCode := fs.String("otp", "", "TOTP code for a gated extraction")
	cfgPath := fs.String("config", "", "config file path")
	fs.StringVar(cfgPath, "c", "", "shorthand for --config")

	gui := fs.Bool("gui", false, "launch GUI")
	fs.BoolVar(gui, "g", false, "shorthand for --gui")

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if *gui {
		fmt.Fprintln(os.Stderr, "moonball: --gui is not implemented in this build")
		return exitOK
	}

	cfg := &config.Config{}
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "moonball: %v\n", err)
			return exitUsage
		}
		cfg = loaded
	}

	logger := logging.New(&cfg.Logging)
	m := metrics.NewMetrics()
	auditLogger := audit.NewLogger(1000, auditSink(cfg))
	defer auditLogger.Close()

	switch {
	case len(addPaths) > 0:
		return doBuild(logger, m, auditLogger, cfg, addPaths, *output, *scheme, *extension)
	case *extractPath != "" && *searchQuery != "":
		return doSearch(logger, m, auditLogger, cfg, *extractPath, *searchQuery)
	case *extractPath != "":
		return doExtract(logger, m, auditLogger, cfg, *extractPath, *output, *otpCode)
	default:
		fmt.Fprintln(os.Stderr, "moonball: one of --add, --extract, or --extract with --search is required")
		return exitUsage
	}
}

// stringList accumulates repeated --add/-a flag values.
type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func doBuild(logger *logrus.Logger, m *metrics.Metrics, al audit.Logger, cfg *config.Config, paths []string, output, scheme, extension string) int {
	start := time.Now()

	if output == "" {
		output = "archive." + extension
	}

	opts := []archive.Option{
		archive.WithScheme(scheme),
		archive.WithLogger(logger),
	}
	if cfg.ChunkSize > 0 {
		opts = append(opts, archive.WithChunkSize(cfg.ChunkSize))
	}
	if cfg.CompressionAlgorithms != (config.CompressionAlgorithms{}) || cfg.CompressionLevel != 0 {
		opts = append(opts, archive.WithLevels(codec.Levels{
			BrotliQuality: cfg.BrotliLevel(),
			LzmaPreset:    cfg.LzmaPreset(),
			ZstdLevel:     cfg.ZstdLevel(),
		}))
	}

	var encryptionOn bool
	if cfg.Encryption.PassphraseEnv != "" {
		passphrase, err := cfg.Passphrase()
		if err != nil {
			fmt.Fprintf(os.Stderr, "moonball: %v\n", err)
			return exitUsage
		}
		opts = append(opts, archive.WithEncryption(passphrase))
		encryptionOn = true
	}

	if cfg.TwoFactorAuthentication.Enabled {
		opts = append(opts, archive.WithTwoFactorAuth(""))
	}

	var embedder *embed.Client
	if cfg.SemanticSearch.Threshold != 0 {
		embedder = embed.NewDefault()
		opts = append(opts, archive.WithEmbeddings(embedder))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := archive.NewBuilder(ctx, opts...)
	defer b.Close()

	if err := b.AddFiles(paths); err != nil {
		logger.WithError(err).Error("failed to add files to archive")
		al.LogBuild(output, 0, false, err, time.Since(start))
		return classifyExit(err)
	}

	if err := b.Save(ctx, output); err != nil {
		logger.WithError(err).Error("failed to save archive")
		al.LogBuild(output, 0, false, err, time.Since(start))
		return classifyExit(err)
	}

	m.RecordArchiveBuild(time.Since(start))
	al.LogBuild(output, len(paths), true, nil, time.Since(start))
	logger.WithFields(logging.OperationFields("build", output, start)).WithField("encrypted", encryptionOn).Info("archive built")
	fmt.Printf("moonball: built %s from %d file(s)\n", output, len(paths))
	return exitOK
}

func doExtract(logger *logrus.Logger, m *metrics.Metrics, al audit.Logger, cfg *config.Config, archivePath, outputDir, otpCode string) int {
	start := time.Now()
	if outputDir == "" {
		outputDir = "."
	}

	r := archive.NewReader(readerCipher(cfg))
	if err := r.Extract(archivePath, outputDir, otpCode); err != nil {
		logger.WithError(err).Error("failed to extract archive")
		al.LogExtract(archivePath, 0, false, err, time.Since(start))
		if isAuthFailure(err) {
			al.LogAuthFailure(archivePath, err)
		}
		fmt.Fprintf(os.Stderr, "moonball: %v\n", err)
		return classifyExit(err)
	}

	m.RecordArchiveExtract(time.Since(start))
	al.LogExtract(archivePath, 0, true, nil, time.Since(start))
	logger.WithFields(logging.OperationFields("extract", archivePath, start)).Info("archive extracted")
	fmt.Printf("moonball: extracted %s into %s\n", archivePath, outputDir)
	return exitOK
}

func doSearch(logger *logrus.Logger, m *metrics.Metrics, al audit.Logger, cfg *config.Config, archivePath, query string) int {
	start := time.Now()

	r := archive.NewReader(readerCipher(cfg))
	meta, err := r.ReadMetadata(archivePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "moonball: %v\n", err)
		return classifyExit(err)
	}

	embedder := embed.NewDefault()
	results, err := search.Search(context.Background(), &meta, embedder, query, 10, cfg.SemanticSearch.Threshold)
	m.RecordSearch(time.Since(start), err)
	al.LogSearch(archivePath, query, len(results), err == nil, err, time.Since(start))
	if err != nil {
		logger.WithError(err).Error("search failed")
		fmt.Fprintf(os.Stderr, "moonball: %v\n", err)
		return classifyExit(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)
	return exitOK
}

// doServe runs `moonball serve`: a long-running process exposing health/
// readiness/liveness probes, Prometheus metrics, and a semantic-search
// endpoint over a single already-built archive (SPEC_FULL.md's ambient-stack
// expansion, not part of spec.md's original CLI table).
func doServe(args []string) int {
	fs := flag.NewFlagSet("moonball serve", flag.ContinueOnError)

	archivePath := fs.String("archive", "", "archive to serve search queries against")
	fs.StringVar(archivePath, "A", "", "shorthand for --archive")

	listenAddr := fs.String("listen", ":8080", "address to listen on")
	fs.StringVar(listenAddr, "l", ":8080", "shorthand for --listen")

	cfgPath := fs.String("config", "", "config file path")
	fs.StringVar(cfgPath, "c", "", "shorthand for --config")

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if *archivePath == "" {
		fmt.Fprintln(os.Stderr, "moonball serve: --archive is required")
		return exitUsage
	}

	cfg := &config.Config{}
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "moonball: %v\n", err)
			return exitUsage
		}
		cfg = loaded
	}

	logger := logging.New(&cfg.Logging)
	m := metrics.NewMetrics()

	var watcher *config.Watcher
	if *cfgPath != "" {
		w, err := config.NewWatcher(*cfgPath, logger, nil)
		if err != nil {
			logger.WithError(err).Error("failed to watch config file")
			return exitIO
		}
		defer w.Close()
		watcher = w
	}

	var embedder *embed.Client
	if cfg.SemanticSearch.Threshold != 0 {
		embedder = embed.NewDefault()
	}

	srv := server.New(*archivePath, readerCipher(cfg), embedder, logger, m, watcher)

	httpServer := &http.Server{Addr: *listenAddr, Handler: srv.Router()}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.ListenAndServe() }()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("moonball serve: listener failed")
			return exitIO
		}
	case <-shutdown:
		logger.Info("moonball serve: shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("moonball serve: graceful shutdown failed")
			return exitIO
		}
	}

	return exitOK
}

// auditSink builds the real audit.Sink config.Audit names, if any. A file
// path takes precedence over an HTTP endpoint when both are set; an unset
// Audit leaves the logger on its stdout default (nil writer). The HTTP
// destination is wrapped in a BatchSink: one slow or unreachable audit
// collector must never stall a build/extract/search call, so deliveries are
// buffered and retried off the caller's goroutine. A file destination is
// local and cheap to append to, so it is used unbatched.
func auditSink(cfg *config.Config) audit.EventWriter {
	switch {
	case cfg.Audit.FilePath != "":
		return audit.NewFileSink(cfg.Audit.FilePath)
	case cfg.Audit.HTTPEndpoint != "":
		return audit.NewBatchSink(audit.NewHTTPSink(cfg.Audit.HTTPEndpoint, nil), 50, 5*time.Second, 3, time.Second)
	default:
		return nil
	}
}

// readerCipher returns the configured decryptor, or a nil interface (never a
// typed nil *cipher.Cipher) when no passphrase is configured, so Reader and
// Server treat the archive as unencrypted.
func readerCipher(cfg *config.Config) interface{ Decrypt([]byte) ([]byte, error) } {
	if cfg.Encryption.PassphraseEnv == "" {
		return nil
	}
	passphrase, err := cfg.Passphrase()
	if err != nil {
		return nil
	}
	return cipher.New(passphrase)
}

func isAuthFailure(err error) bool {
	return errors.Is(err, archiveerr.ErrAuthFailure)
}

func classifyExit(err error) int {
	switch {
	case errors.Is(err, archiveerr.ErrUsage), errors.Is(err, archiveerr.ErrConfig), errors.Is(err, archiveerr.ErrDuplicateFileName), errors.Is(err, archiveerr.ErrEmptyFile):
		return exitUsage
	case errors.Is(err, archiveerr.ErrAuthFailure), errors.Is(err, archiveerr.ErrOTPMissing), errors.Is(err, archiveerr.ErrOTPInvalid), errors.Is(err, archiveerr.ErrDecryptionFailed):
		return exitAuthFailure
	case errors.Is(err, archiveerr.ErrCorruptArchive):
		return exitCorruptArchive
	case errors.Is(err, archiveerr.ErrIO):
		return exitIO
	case errors.Is(err, archiveerr.ErrEmbedderUnavailable), errors.Is(err, archiveerr.ErrEmbedderFailed), errors.Is(err, archiveerr.ErrEmbedderMalformed), errors.Is(err, archiveerr.ErrEmbedderTimeout), errors.Is(err, archiveerr.ErrEmbeddingsAbsent):
		return exitEmbedderFailure
	default:
		return exitIO
	}
}
