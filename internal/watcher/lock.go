package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/JoeyEamigh/ccengram/internal/store"
)

// ProjectHash is the stable key under which a project's single-writer
// watcher lock is stored (spec.md §3 WatcherLock, §4.K "a stable hash of
// the absolute project path").
func ProjectHash(projectPath string) string {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		abs = projectPath
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])
}

// processAlive reports whether pid names a live process, grounded on
// internal/daemon's pidfile.processExists (FindProcess always succeeds on
// Unix, so liveness requires sending signal 0).
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// AcquireLock claims the single-writer slot for projectPath under the
// calling process's PID, reclaiming a stale lock left by a dead process
// (spec.md §4.K, §8 "Watcher singleton").
func AcquireLock(ctx context.Context, db store.Store, projectPath string) (bool, string, error) {
	hash := ProjectHash(projectPath)
	now := time.Now()
	ok, err := db.AcquireWatcherLock(ctx, &store.WatcherLock{
		ProjectHash:  hash,
		PID:          os.Getpid(),
		ProjectPath:  projectPath,
		StartedAt:    now,
		LastActivity: now,
	}, processAlive)
	return ok, hash, err
}

// ReleaseLock deletes the lock record for projectHash.
func ReleaseLock(ctx context.Context, db store.Store, projectHash string) error {
	return db.ReleaseWatcherLock(ctx, projectHash)
}
