// Package logger builds the service logger: a zap core exposed through the
// log/slog API so packages depend only on *slog.Logger.
package logger

import (
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// Format selects the encoder.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// Config configures the logger.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string

	// Format is json or console. Empty means json in production, console otherwise.
	Format Format

	// Env is the application environment ("production", "development", ...).
	Env string

	// Service is attached to every entry.
	Service string
}

// Logger owns the zap logger behind an slog front-end.
type Logger struct {
	*slog.Logger
	zap *zap.Logger
}

// New creates a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	format := cfg.Format
	if format == "" {
		format = FormatConsole
		if cfg.Env == "production" {
			format = FormatJSON
		}
	}

	var zcfg zap.Config
	switch format {
	case FormatJSON:
		zcfg = zap.NewProductionConfig()
	case FormatConsole:
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zl, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	if cfg.Service != "" {
		zl = zl.With(zap.String("service", cfg.Service))
	}

	return &Logger{
		Logger: slog.New(zapslog.NewHandler(zl.Core())),
		zap:    zl,
	}, nil
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// ParseLevel converts a textual level into a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(zapslog.NewHandler(zapcore.NewNopCore()))
}

// NewTest returns a logger writing through t.Log.
func NewTest(t zaptest.TestingT) *slog.Logger {
	return slog.New(zapslog.NewHandler(zaptest.NewLogger(t).Core()))
}
