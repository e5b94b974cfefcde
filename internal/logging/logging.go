// Package logging initializes the structured logger shared by all commands.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/crc-mirror/crc-mirror/internal/config"
)

// Init builds a logrus logger from the configuration. When a log file is
// configured, output goes through a lumberjack rotator as JSON; otherwise
// logs go to stderr in text form.
func Init(cfg *config.Config) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	if cfg.Verbose && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}

	logger := logrus.New()
	logger.SetLevel(level)

	output, outErr := buildOutput(cfg)
	logger.SetOutput(output)

	if cfg.LogFile != "" && outErr == nil {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	if outErr != nil {
		logger.WithField("path", cfg.LogFile).Warn(outErr.Error())
	}

	return logger, nil
}

// buildOutput creates the log writer; on failure it degrades to stderr and
// returns the error so the caller can log it.
func buildOutput(cfg *config.Config) (io.Writer, error) {
	if cfg.LogFile == "" {
		return os.Stderr, nil
	}

	dir := filepath.Dir(cfg.LogFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return os.Stderr, fmt.Errorf("failed to create log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
		LocalTime:  true,
	}

	return rotator, nil
}

// BuildFields returns the base log fields identifying one build tuple.
func BuildFields(buildID, logicalVersion, platform string) logrus.Fields {
	return logrus.Fields{
		"build_id":        buildID,
		"logical_version": logicalVersion,
		"platform":        platform,
	}
}
