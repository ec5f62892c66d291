// Package logging routes the process log to a per-session file under
// ~/.planpilot/logs/ so the interactive console output stays clean. When the
// log file cannot be created it falls back to stderr.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Session owns the log file for one process lifetime.
type Session struct {
	path string
	file *os.File
}

// Start opens a session log file in dir (empty selects ~/.planpilot/logs)
// and installs it as the slog default. Start never fails: when the file
// cannot be created the default handler writes to stderr instead.
func Start(dir string) *Session {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fallback(err)
		}
		dir = filepath.Join(homeDir, ".planpilot", "logs")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fallback(err)
	}

	name := fmt.Sprintf("%s-%s.log", time.Now().Format("20060102-150405"), uuid.New().String()[:8])
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fallback(err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(file, nil)))
	return &Session{path: path, file: file}
}

func fallback(err error) *Session {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	slog.Warn("file logging unavailable, using stderr", "error", err)
	return &Session{}
}

// Path returns the log file location, empty in fallback mode.
func (s *Session) Path() string {
	return s.path
}

// Close closes the log file if one was opened.
func (s *Session) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
