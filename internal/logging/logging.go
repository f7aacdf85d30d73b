// Package logging configures MoonBall's structured logger. It generalizes
// the teacher's per-HTTP-request logrus.Fields pattern
// (internal/middleware/logging.go) to build/extract/search operations, and
// adds lumberjack-backed file rotation driven by the config file's
// logging.* keys.
package logging

import (
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kenchrcum/moonball/internal/config"
)

// New builds a logrus.Logger. When cfg.Logging.FilePath is set, output is
// written through a lumberjack rotator; otherwise logs go to stderr
// (logrus's default), appropriate for interactive CLI use.
func New(cfg *config.Logging) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	if cfg.FilePath != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		backups := cfg.BackupCount
		if backups < 0 {
			backups = 0
		}
		logger.SetOutput(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxSize,
			MaxBackups: backups,
			Compress:   true,
		})
	}

	return logger
}

// OperationFields builds the logrus.Fields shared by build/extract/search
// log lines, mirroring the per-HTTP-request field set the teacher's
// middleware attaches to every request.
func OperationFields(operation, archivePath string, start time.Time) logrus.Fields {
	return logrus.Fields{
		"operation":   operation,
		"archive":     archivePath,
		"duration_ms": time.Since(start).Milliseconds(),
	}
}
