// Package lock keeps two archive runs on one host from writing to the same
// destination at once.
package lock

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

var ErrLocked = errors.New("destination is locked by another run")

// LocalLocker is an O_EXCL lock file. A file older than TTL is treated as
// left behind by a crashed run and taken over.
type LocalLocker struct {
	path string
	ttl  time.Duration
	file *os.File
	mu   sync.Mutex
	held bool
}

type LocalOptions struct {
	Dir string
	// Name is usually the destination, e.g. s3://cold/app. It is hashed into
	// the lock file name.
	Name string
	TTL  time.Duration
}

func NewLocal(opts LocalOptions) (*LocalLocker, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("lock dir is required")
	}
	if strings.TrimSpace(opts.Name) == "" {
		return nil, fmt.Errorf("lock name is required")
	}
	return &LocalLocker{path: filepath.Join(opts.Dir, FileName(opts.Name)), ttl: opts.TTL}, nil
}

// FileName derives a stable file name for a destination.
func FileName(name string) string {
	sum := blake3.Sum256([]byte(name))
	return "objarchiver-" + hex.EncodeToString(sum[:8]) + ".lock"
}

func (l *LocalLocker) Path() string {
	return l.path
}

func (l *LocalLocker) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return fmt.Errorf("lock already held by this process")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}

	tryAcquire := func() (*os.File, error) {
		return os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0640)
	}

	file, err := tryAcquire()
	if err != nil {
		if !os.IsExist(err) {
			return fmt.Errorf("create lock file: %w", err)
		}
		if l.ttl <= 0 {
			return fmt.Errorf("%w: %s%s", ErrLocked, l.path, holder(l.path))
		}
		info, statErr := os.Stat(l.path)
		if statErr != nil {
			return fmt.Errorf("lock file exists and stat failed: %w", statErr)
		}
		if time.Since(info.ModTime()) < l.ttl {
			return fmt.Errorf("%w: %s%s", ErrLocked, l.path, holder(l.path))
		}
		if removeErr := os.Remove(l.path); removeErr != nil {
			return fmt.Errorf("stale lock file exists, remove failed: %w", removeErr)
		}
		file, err = tryAcquire()
		if err != nil {
			if os.IsExist(err) {
				return fmt.Errorf("%w: %s", ErrLocked, l.path)
			}
			return fmt.Errorf("retry acquire after stale remove: %w", err)
		}
	}

	if _, err := file.WriteString(strconv.Itoa(os.Getpid()) + "\n"); err != nil {
		_ = file.Close()
		_ = os.Remove(l.path)
		return fmt.Errorf("write lock file: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(l.path)
		return fmt.Errorf("sync lock file: %w", err)
	}

	l.file = file
	l.held = true
	return nil
}

func (l *LocalLocker) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	var errs []error
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			errs = append(errs, err)
		}
		l.file = nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	l.held = false
	if len(errs) > 0 {
		return fmt.Errorf("release lock: %w", errors.Join(errs...))
	}
	return nil
}

func holder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	pid := strings.TrimSpace(string(data))
	if pid == "" {
		return ""
	}
	return " (pid " + pid + ")"
}
