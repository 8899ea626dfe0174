package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	app "github.com/etitcombe/tweeter"
	"github.com/etitcombe/tweeter/rand"
)

// ErrLockTimeout is returned (wrapped in an *app.StorageError) when a record
// lock could not be acquired in time.
var ErrLockTimeout = errors.New("lock timeout")

// LockConfig controls how long a writer waits for a record lock and when an
// abandoned lock file may be broken.
type LockConfig struct {
	Timeout    time.Duration
	StaleAfter time.Duration
	Retry      time.Duration
}

const (
	defaultLockTimeout    = 5 * time.Second
	defaultLockStaleAfter = 30 * time.Second
	defaultLockRetry      = 10 * time.Millisecond
)

func (c LockConfig) withDefaults() LockConfig {
	if c.Timeout <= 0 {
		c.Timeout = defaultLockTimeout
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaultLockStaleAfter
	}
	if c.Retry <= 0 {
		c.Retry = defaultLockRetry
	}
	return c
}

// processLocks serializes goroutines of this process per record path. The
// lock file serializes separate processes sharing the data directory.
var processLocks sync.Map

func processLock(path string) *sync.Mutex {
	if l, ok := processLocks.Load(path); ok {
		return l.(*sync.Mutex)
	}
	l, _ := processLocks.LoadOrStore(path, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// withFileLock runs fn while holding the exclusive lock for path. The lock is
// released on every return path, including a panic in fn.
func withFileLock(ctx context.Context, cfg LockConfig, path string, fn func() error) error {
	cfg = cfg.withDefaults()
	lockPath := path + ".lock"

	mu := processLock(path)
	mu.Lock()
	defer mu.Unlock()

	token, err := lockToken()
	if err != nil {
		return &app.StorageError{Op: "lock " + path, Err: err}
	}

	deadline := time.Now().Add(cfg.Timeout)
	for {
		err := acquireLockFile(lockPath, token)
		if err == nil {
			defer releaseLockFile(lockPath, token)
			return fn()
		}
		if !errors.Is(err, fs.ErrExist) {
			return &app.StorageError{Op: "lock " + path, Err: err}
		}
		if stale(lockPath, cfg.StaleAfter) {
			breakLockFile(lockPath, cfg.StaleAfter)
			continue
		}
		if time.Now().After(deadline) {
			return &app.StorageError{Op: "lock " + path, Err: fmt.Errorf("%w after %s", ErrLockTimeout, cfg.Timeout)}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Retry):
		}
	}
}

// lockToken identifies one acquisition, so a holder only ever removes its
// own lock file.
func lockToken() (string, error) {
	nonce, err := rand.Hex(8)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(os.Getpid()) + "-" + nonce, nil
}

func acquireLockFile(lockPath, token string) error {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(token + "\n")
	if err := errors.Join(werr, f.Close()); err != nil {
		os.Remove(lockPath)
		return fmt.Errorf("write lock file: %w", err)
	}
	return nil
}

// releaseLockFile removes the lock file unless it was broken and taken over
// by another holder in the meantime.
func releaseLockFile(lockPath, token string) {
	data, err := os.ReadFile(lockPath)
	if err != nil || strings.TrimSpace(string(data)) != token {
		return
	}
	os.Remove(lockPath)
}

// breakLockFile moves a stale lock file aside before deleting it. Only one
// contender can win the rename. If the lock was replaced by a fresh one
// after the staleness check, that fresh lock is put back.
func breakLockFile(lockPath string, staleAfter time.Duration) {
	suffix, err := rand.Hex(4)
	if err != nil {
		return
	}
	aside := lockPath + ".stale-" + suffix
	if err := os.Rename(lockPath, aside); err != nil {
		return
	}
	if !stale(aside, staleAfter) {
		_ = os.Link(aside, lockPath)
	}
	os.Remove(aside)
}

func stale(lockPath string, after time.Duration) bool {
	fi, err := os.Stat(lockPath)
	if err != nil {
		return false
	}
	return time.Since(fi.ModTime()) > after
}
