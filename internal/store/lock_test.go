package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireLockAndRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir, "abcd1234", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	// Second acquisition of the same key must fail fast.
	if _, err := AcquireLock(dir, "abcd1234", time.Minute); !errors.Is(err, ErrLocked) {
		t.Fatalf("second AcquireLock = %v, want ErrLocked", err)
	}

	// A different key is independent.
	other, err := AcquireLock(dir, "ffff0000", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock other key: %v", err)
	}
	other.Release()

	lock.Release()
	relock, err := AcquireLock(dir, "abcd1234", time.Minute)
	if err != nil {
		t.Errorf("AcquireLock after Release: %v", err)
	} else {
		relock.Release()
	}
}

// A lock held by a pid that no longer exists is broken and re-acquired.
func TestAcquireLockBreaksDeadPid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abcd1234.lock")

	// Pids are allocated well below this on any test machine.
	if err := os.WriteFile(path, []byte("999999999\n"), 0600); err != nil {
		t.Fatalf("seed lock file: %v", err)
	}

	lock, err := AcquireLock(dir, "abcd1234", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock over dead pid = %v, want success", err)
	}
	lock.Release()
}

// A live-pid lock older than staleAfter means the holder hung; it is broken.
func TestAcquireLockBreaksOldLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abcd1234.lock")

	// Our own pid is definitely alive, so only the age check can break it.
	if err := os.WriteFile(path, []byte("1\n"), 0600); err != nil {
		t.Fatalf("seed lock file: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	lock, err := AcquireLock(dir, "abcd1234", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock over aged lock = %v, want success", err)
	}
	lock.Release()
}

func TestAcquireLockFreshLivePid(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir, "abcd1234", time.Hour)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer lock.Release()

	// Held by this live process and well within staleAfter: must stay locked.
	if _, err := AcquireLock(dir, "abcd1234", time.Hour); !errors.Is(err, ErrLocked) {
		t.Fatalf("AcquireLock = %v, want ErrLocked", err)
	}
}
