package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/obsidianstack/trapbridge/internal/config"
	"github.com/obsidianstack/trapbridge/pkg/types"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ParseLevel maps a configured level name to a slog.Level.
// "warning" is accepted as an alias of "warn".
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
}

// New builds the daemon logger. Records go to stdout, or to a rotating file
// when cfg.LogFile is set. The returned LevelVar changes the level of the
// running logger; the Closer releases the log file.
func New(cfg config.DaemonConfig) (*slog.Logger, *slog.LevelVar, io.Closer, error) {
	lvl, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}
	level := new(slog.LevelVar)
	level.Set(lvl)

	var (
		w      io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if cfg.LogFile != "" {
		lj, err := rotating(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays)
		if err != nil {
			return nil, nil, nil, err
		}
		w, closer = lj, lj
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch cfg.LogFormat {
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h), level, closer, nil
}

// NewEventsLog returns a JSON logger that appends one line per delivered
// event to path, rotated with the daemon defaults.
func NewEventsLog(path string) (*slog.Logger, io.Closer, error) {
	lj, err := rotating(path, config.DefaultLogMaxSizeMB, config.DefaultLogMaxBackups, config.DefaultLogMaxAgeDays)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(slog.NewJSONHandler(lj, nil)), lj, nil
}

// LogDelivered writes ev to an events log.
func LogDelivered(l *slog.Logger, ev *types.AlertEvent) {
	l.Info("event delivered",
		"id", ev.ID,
		"rule", ev.Rule,
		"name", ev.Name,
		"output", ev.Output,
		"status", int(ev.Severity),
		"handlers", ev.Handlers,
		"created_at", ev.CreatedAt,
	)
}

func rotating(path string, maxSizeMB, maxBackups, maxAgeDays int) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logging: create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}, nil
}
