// Package usage records per-request token usage to a JSONL log in the data
// directory so spend can be inspected after the fact.
package usage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogEntry is one recorded model request.
type LogEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
}

// Logger appends usage entries to a JSONL file.
type Logger struct {
	mu   sync.Mutex
	path string
}

// NewLogger creates a logger writing to the given path. The parent directory
// is created on first write.
func NewLogger(path string) *Logger {
	return &Logger{path: path}
}

var (
	defaultLogger     *Logger
	defaultLoggerOnce sync.Once
)

// DefaultLogger returns the process-wide usage logger, writing to
// usage.jsonl in the data directory. Logging is best-effort: if the data
// directory cannot be resolved, entries are dropped silently.
func DefaultLogger() *Logger {
	defaultLoggerOnce.Do(func() {
		dir, err := DataDir()
		if err != nil {
			defaultLogger = &Logger{}
			return
		}
		defaultLogger = NewLogger(filepath.Join(dir, "usage.jsonl"))
	})
	return defaultLogger
}

// DataDir returns the XDG data directory for roundtable.
// Uses $XDG_DATA_HOME if set, otherwise ~/.local/share.
func DataDir() (string, error) {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "roundtable"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".local", "share", "roundtable"), nil
}

// Log appends an entry. A logger without a path drops entries.
func (l *Logger) Log(entry LogEntry) error {
	if l == nil || l.path == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}
