package log

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

type Config struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`   // debug, info, warn, error
	Format string `envconfig:"LOG_FORMAT" default:"json" yaml:"format"` // json, console
	Trace  bool   `envconfig:"LOG_TRACE" default:"true" yaml:"trace"`   // stamp trace ids from context
}

func New(cfg Config) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler

	if cfg.Format == "console" {
		// Pretty Print for Local Development
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	} else {
		// JSON for Production (Machine Readable)
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	if cfg.Trace {
		handler = NewTraceHandler(handler)
	}

	return slog.New(handler)
}
