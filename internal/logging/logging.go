// Package logging provides the slog-backed engine.Logger and the log file
// tail behind requestLogs.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the log file written under tmpDir.
const FileName = "ai-pair.log"

// ParseLevel maps a config log level to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// Logger adapts a *slog.Logger to the four-method engine.Logger contract.
type Logger struct {
	slog *slog.Logger
}

// New wraps l. A nil l uses slog.Default.
func New(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{slog: l}
}

// NewText writes text records at level to w.
func NewText(w io.Writer, level slog.Level) *Logger {
	return New(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func (l *Logger) Debug(msg string) { l.slog.Debug(msg) }
func (l *Logger) Info(msg string)  { l.slog.Info(msg) }
func (l *Logger) Warn(msg string)  { l.slog.Warn(msg) }
func (l *Logger) Error(msg string) { l.slog.Error(msg) }

// Slog returns the underlying logger for packages that log structured
// attributes directly.
func (l *Logger) Slog() *slog.Logger { return l.slog }

// With returns a Logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

// Enabled reports whether level is logged.
func (l *Logger) Enabled(level slog.Level) bool {
	return l.slog.Enabled(context.Background(), level)
}

// Setup creates the process logger: text records at level go to console
// and to tmpDir/ai-pair.log. The returned closer closes the file.
func Setup(tmpDir, level string, console io.Writer) (*Logger, io.Closer, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create tmp dir: %w", err)
	}
	f, err := os.OpenFile(Path(tmpDir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	var w io.Writer = f
	if console != nil {
		w = io.MultiWriter(console, f)
	}
	return NewText(w, lvl), f, nil
}

// Path returns the log file location for tmpDir.
func Path(tmpDir string) string {
	return filepath.Join(tmpDir, FileName)
}
