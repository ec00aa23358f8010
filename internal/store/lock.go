package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/claudemeter/claudemeter/internal/logging"
)

var lockLog = logging.ForComponent(logging.CompStore)

// ErrLocked means another invocation currently holds the per-key lock.
// Two simultaneous captures for the same workspace would race keystrokes and
// screen state in one tmux session, so the second caller fails fast instead.
var ErrLocked = errors.New("session key is locked by another invocation")

// Lock is a per-key advisory lock backed by an exclusively created pid file.
type Lock struct {
	path string
}

// AcquireLock takes the advisory lock for key. A lock held by a dead process,
// or older than staleAfter (a crashed invocation that never cleaned up), is
// broken and re-acquired.
func AcquireLock(dir, key string, staleAfter time.Duration) (*Lock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("lock: mkdir: %w", err)
	}
	path := filepath.Join(dir, key+".lock")

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("lock: create: %w", err)
		}

		if !lockIsStale(path, staleAfter) {
			return nil, ErrLocked
		}
		lockLog.Debug("breaking_stale_lock", slog.String("path", path))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("lock: break stale: %w", err)
		}
	}
	return nil, ErrLocked
}

// lockIsStale reports whether the holder of the lock file is gone: either its
// pid no longer refers to a live process, or the file exceeds staleAfter.
func lockIsStale(path string, staleAfter time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		// Already gone: treat as stale so the retry re-creates it.
		return true
	}
	if staleAfter > 0 && time.Since(info.ModTime()) > staleAfter {
		return true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return true
	}
	// Signal 0 probes existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) != nil
}

// Release removes the lock file. Safe to call once.
func (l *Lock) Release() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		lockLog.Debug("lock_release_failed", slog.String("path", l.path), slog.String("error", err.Error()))
	}
}
