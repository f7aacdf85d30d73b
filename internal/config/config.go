// Package config loads and validates MoonBall's YAML configuration file and,
// for the optional `moonball serve` mode, watches it for changes.
package config

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/kenchrcum/moonball/internal/archiveerr"
)

// CompressionAlgorithms holds the per-codec level overrides.
type CompressionAlgorithms struct {
	Brotli struct {
		Level int `yaml:"level"`
	} `yaml:"brotli"`
	Lzma struct {
		Preset int `yaml:"preset"`
	} `yaml:"lzma"`
	Zstd struct {
		Level int `yaml:"level"`
	} `yaml:"zstd"`
}

// Encryption holds the passphrase-env indirection (§9: never a compile-time
// constant, never the passphrase itself in the config file).
type Encryption struct {
	Algorithm     string `yaml:"algorithm"`
	PassphraseEnv string `yaml:"passphrase_env"`
}

// TwoFactorAuthentication mirrors the TOTP gate's tunables.
type TwoFactorAuthentication struct {
	Enabled   bool   `yaml:"enabled"`
	Issuer    string `yaml:"issuer"`
	Algorithm string `yaml:"algorithm"`
	Period    int    `yaml:"period"`
}

// SemanticSearch holds the minimum cosine score a search result must reach
// (used by `moonball search` and `moonball serve`).
type SemanticSearch struct {
	Threshold float64 `yaml:"threshold"`
}

// Logging mirrors internal/logging's lumberjack-backed rotation settings.
type Logging struct {
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	BackupCount int   `yaml:"backup_count"`
	Level      string `yaml:"level"`
}

// Audit selects where audit events land. At most one of FilePath/HTTPEndpoint
// should be set; an unset Audit leaves the caller's internal/audit.Logger on
// its stdout default.
type Audit struct {
	FilePath    string `yaml:"file_path"`
	HTTPEndpoint string `yaml:"http_endpoint"`
}

// Config is the parsed YAML configuration file. CompressionLevel is the
// legacy top-level key: it only applies to a codec whose per-codec key
// (CompressionAlgorithms.*) is unset, per spec.md's precedence rule.
type Config struct {
	ChunkSize             int                     `yaml:"chunk_size"`
	CompressionLevel      int                     `yaml:"compression_level"`
	CompressionAlgorithms CompressionAlgorithms    `yaml:"compression_algorithms"`
	Encryption            Encryption              `yaml:"encryption"`
	TwoFactorAuthentication TwoFactorAuthentication `yaml:"two_factor_authentication"`
	SemanticSearch        SemanticSearch          `yaml:"semantic_search"`
	ParallelThreads       int                     `yaml:"parallel_threads"`
	ModelDownloadPath     string                  `yaml:"model_download_path"`
	Logging               Logging                 `yaml:"logging"`
	Audit                 Audit                   `yaml:"audit"`
}

// Load reads and parses the YAML file at path. Malformed YAML surfaces as
// ErrConfig; a missing file also surfaces as ErrConfig (config is fatal at
// startup only, never mid-build, per §6.4).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w: %v", archiveerr.ErrConfig, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w: %v", archiveerr.ErrConfig, err)
	}

	return &cfg, nil
}

// Passphrase resolves the encryption passphrase from the environment
// variable named by Encryption.PassphraseEnv. It is never read from the
// config file's own bytes.
func (c *Config) Passphrase() (string, error) {
	if c.Encryption.PassphraseEnv == "" {
		return "", fmt.Errorf("config: %w: encryption.passphrase_env not set", archiveerr.ErrConfig)
	}
	v := os.Getenv(c.Encryption.PassphraseEnv)
	if v == "" {
		return "", fmt.Errorf("config: %w: environment variable %q is empty", archiveerr.ErrConfig, c.Encryption.PassphraseEnv)
	}
	return v, nil
}

// BrotliLevel resolves the effective brotli quality, applying the legacy
// CompressionLevel only when the per-codec key is unset (0).
func (c *Config) BrotliLevel() int {
	if c.CompressionAlgorithms.Brotli.Level != 0 {
		return c.CompressionAlgorithms.Brotli.Level
	}
	return c.CompressionLevel
}

// LzmaPreset resolves the effective LZMA preset, applying the legacy
// CompressionLevel only when the per-codec key is unset (0).
func (c *Config) LzmaPreset() int {
	if c.CompressionAlgorithms.Lzma.Preset != 0 {
		return c.CompressionAlgorithms.Lzma.Preset
	}
	return c.CompressionLevel
}

// ZstdLevel resolves the effective zstd level, applying the legacy
// CompressionLevel only when the per-codec key is unset (0).
func (c *Config) ZstdLevel() int {
	if c.CompressionAlgorithms.Zstd.Level != 0 {
		return c.CompressionAlgorithms.Zstd.Level
	}
	return c.CompressionLevel
}

// Watcher reloads Config from path whenever the file changes on disk, for
// `moonball serve`'s long-running process. A failed reload is logged and the
// previous Config is kept in place rather than torn down mid-serve.
type Watcher struct {
	path    string
	logger  *logrus.Logger
	watcher *fsnotify.Watcher
	current *Config
	onReload func(*Config)
}

// NewWatcher loads path once and starts watching the file itself for writes.
func NewWatcher(path string, logger *logrus.Logger, onReload func(*Config)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: %w: %v", archiveerr.ErrConfig, err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: %w: %v", archiveerr.ErrConfig, err)
	}

	w := &Watcher{path: path, logger: logger, watcher: fw, current: cfg, onReload: onReload}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.WithError(err).WithField("path", w.path).Warn("config reload failed, keeping previous configuration")
				continue
			}
			w.current = cfg
			if w.onReload != nil {
				w.onReload(cfg)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("config watcher error")
		}
	}
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() *Config { return w.current }

// Close stops watching the configuration file.
func (w *Watcher) Close() error { return w.watcher.Close() }
