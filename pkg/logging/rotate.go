package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const defaultKeepDays = 30

// RotatingWriter appends to <dir>/<name>.log and, when the calendar day
// changes between writes, renames the previous file to
// <name>.log.YYYY-MM-DD before opening a fresh one. Files older than
// keepDays are pruned on rotation.
type RotatingWriter struct {
	dir      string
	name     string
	keepDays int

	mu   sync.Mutex
	file *os.File
	day  string

	// now is overridable for tests.
	now func() time.Time
}

// NewRotatingWriter opens the current log file, creating dir if needed.
func NewRotatingWriter(dir, name string, keepDays int) (*RotatingWriter, error) {
	if keepDays <= 0 {
		keepDays = defaultKeepDays
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	w := &RotatingWriter{dir: dir, name: name, keepDays: keepDays, now: time.Now}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// Path returns the active log file path.
func (w *RotatingWriter) Path() string {
	return filepath.Join(w.dir, w.name+".log")
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.Path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	w.file = f
	w.day = w.now().Format("2006-01-02")
	return nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	today := w.now().Format("2006-01-02")
	if today != w.day {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	return w.file.Write(p)
}

// rotate closes the current file, stamps it with the day it covered and
// reopens. Caller holds the lock.
func (w *RotatingWriter) rotate() error {
	prevDay := w.day
	if err := w.file.Close(); err != nil {
		return err
	}
	dated := w.Path() + "." + prevDay
	if err := os.Rename(w.Path(), dated); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := w.open(); err != nil {
		return err
	}
	w.prune()
	return nil
}

// prune removes dated files past the retention window. Best effort.
func (w *RotatingWriter) prune() {
	cutoff := w.now().AddDate(0, 0, -w.keepDays)
	prefix := w.name + ".log."
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		day, err := time.Parse("2006-01-02", strings.TrimPrefix(e.Name(), prefix))
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			_ = os.Remove(filepath.Join(w.dir, e.Name()))
		}
	}
}

// Sync flushes the active file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

// Close closes the active file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
