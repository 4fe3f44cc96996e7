// File: logging/logging.go
// Package logging builds the process-wide zap logger.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Components receive a *zap.Logger and scope it with With; nothing in
// the engine reaches for a global logger. File output rotates through
// lumberjack when configured.

package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls logger construction.
type Config struct {
	// Level is one of debug, info, warn, error. Default info.
	Level string `mapstructure:"level"`
	// Format is console or json. Default console.
	Format string `mapstructure:"format"`
	// File enables an additional rotating file sink when non-empty.
	File string `mapstructure:"file"`
	// Rotate bounds the file sink.
	Rotate RotateConfig `mapstructure:"rotate"`
}

// RotateConfig maps onto lumberjack.
type RotateConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

func (c *Config) setDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "console"
	}
	if c.Rotate.MaxSizeMB <= 0 {
		c.Rotate.MaxSizeMB = 100
	}
	if c.Rotate.MaxBackups <= 0 {
		c.Rotate.MaxBackups = 5
	}
	if c.Rotate.MaxAgeDays <= 0 {
		c.Rotate.MaxAgeDays = 14
	}
}

// New constructs a logger from config.
func New(cfg Config) (*zap.Logger, error) {
	cfg.setDefaults()

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	encoder, err := buildEncoder(cfg)
	if err != nil {
		return nil, err
	}
	writer := buildWriter(cfg)

	core := zapcore.NewCore(encoder, writer, level)
	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// NewNop returns a logger that discards everything, for tests and
// optional components.
func NewNop() *zap.Logger {
	return zap.NewNop()
}

func buildEncoder(cfg Config) (zapcore.Encoder, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	switch cfg.Format {
	case "json":
		return zapcore.NewJSONEncoder(encCfg), nil
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

func buildWriter(cfg Config) zapcore.WriteSyncer {
	stderr := zapcore.Lock(os.Stderr)
	if cfg.File == "" {
		return stderr
	}
	file := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.Rotate.MaxSizeMB,
		MaxBackups: cfg.Rotate.MaxBackups,
		MaxAge:     cfg.Rotate.MaxAgeDays,
		Compress:   cfg.Rotate.Compress,
	})
	return zapcore.NewMultiWriteSyncer(stderr, file)
}
