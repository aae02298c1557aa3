// Package log is the process-wide debug log of treesync. Output is held in
// memory until SetFile picks a destination or turns logging off.
package log

import (
	"log"
	"os"
	"sync"
)

const backlogLimit = 1 << 20

type backlogWriter struct {
	mu      sync.Mutex
	dst     *os.File
	backlog []byte
	off     bool
}

var (
	out = &backlogWriter{}
	std = log.New(out, "", log.LstdFlags|log.Lmicroseconds)
)

func (w *backlogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.off:
		return len(p), nil
	case w.dst != nil:
		n, err := w.dst.Write(p)
		_ = w.dst.Sync()
		return n, err
	}

	// oldest bytes go first once the backlog is full
	w.backlog = append(w.backlog, p...)
	if extra := len(w.backlog) - backlogLimit; extra > 0 {
		w.backlog = append(w.backlog[:0], w.backlog[extra:]...)
	}
	return len(p), nil
}

// attach replaces the destination. A nil f turns logging off; otherwise the
// backlog is written to f first. Callers hold mu.
func (w *backlogWriter) attach(f *os.File) {
	if w.dst != nil {
		_ = w.dst.Close()
	}
	w.dst, w.off = f, f == nil
	if f != nil && len(w.backlog) > 0 {
		_, _ = f.Write(w.backlog)
		_ = f.Sync()
	}
	w.backlog = nil
}

// SetFile appends all output, including what was logged so far, to path.
// An empty path, or one that cannot be opened, turns logging off.
func SetFile(path string) error {
	var (
		f   *os.File
		err error
	)
	if path != "" {
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec
	}

	out.mu.Lock()
	defer out.mu.Unlock()
	out.attach(f)
	return err
}

func Printf(format string, args ...any) {
	std.Printf(format, args...)
}

// Warnf logs with a "warn: " prefix.
func Warnf(format string, args ...any) {
	std.Printf("warn: "+format, args...)
}

func Println(v ...any) {
	std.Println(v...)
}

// Close releases the log file. Later output is buffered again.
func Close() error {
	out.mu.Lock()
	defer out.mu.Unlock()

	if out.dst == nil {
		return nil
	}
	err := out.dst.Close()
	out.dst = nil
	return err
}
