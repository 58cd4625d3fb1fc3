package registry

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrLockTimeout is returned when lock acquisition exhausts its retry budget.
var ErrLockTimeout = errors.New("registry lock retries exhausted")

const (
	// defaultStaleAfter is how old a lock file may be before any caller is
	// allowed to break it. A crashed writer leaves its lock behind; without
	// staleness recovery every future instance would wedge forever.
	defaultStaleAfter = 30 * time.Second
	// defaultRetryInterval is the wait between acquisition attempts.
	defaultRetryInterval = 100 * time.Millisecond
	// defaultMaxRetries bounds acquisition at roughly five seconds.
	defaultMaxRetries = 50
)

// FileLock serializes cross-process access to the registry via a sentinel
// file created with O_EXCL. The file body holds the acquirer's pid so
// contending instances can tell a live writer from a dead one.
//
// Sentinel locking is used instead of a native advisory lock because the
// data directory may live on a network or container-mounted volume where
// flock semantics are unreliable.
type FileLock struct {
	path          string
	staleAfter    time.Duration
	retryInterval time.Duration
	maxRetries    uint64

	// alive is injectable so tests can simulate dead lock owners.
	alive func(pid int) bool
}

// NewFileLock creates a lock around the given sentinel path with default
// staleness and retry policy.
func NewFileLock(path string) *FileLock {
	return &FileLock{
		path:          path,
		staleAfter:    defaultStaleAfter,
		retryInterval: defaultRetryInterval,
		maxRetries:    defaultMaxRetries,
		alive:         pidAlive,
	}
}

// Acquire takes the lock, retrying at a fixed interval up to the retry
// budget. Stale locks (older than the staleness threshold, or owned by a
// dead pid) are broken and re-acquired. Returns ErrLockTimeout when a live
// writer holds the lock for the whole budget.
func (l *FileLock) Acquire() error {
	op := func() error {
		if err := l.tryAcquire(); err != nil {
			return err
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(l.retryInterval), l.maxRetries)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("acquire %s: %w", l.path, ErrLockTimeout)
	}
	return nil
}

// Release removes the sentinel. Releasing a lock that is already gone is
// not an error.
func (l *FileLock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release %s: %w", l.path, err)
	}
	return nil
}

// tryAcquire attempts a single exclusive create. On contention it inspects
// the existing lock and breaks it when stale.
func (l *FileLock) tryAcquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err == nil {
		_, werr := fmt.Fprintf(f, "%d", os.Getpid())
		cerr := f.Close()
		if werr != nil || cerr != nil {
			// A lock file we cannot write is unusable; back out.
			_ = os.Remove(l.path)
			return fmt.Errorf("write lock %s: pid not recorded", l.path)
		}
		return nil
	}
	if !os.IsExist(err) {
		return fmt.Errorf("create lock %s: %w", l.path, err)
	}

	if l.isStale() {
		if rerr := os.Remove(l.path); rerr != nil && !os.IsNotExist(rerr) {
			return fmt.Errorf("break stale lock %s: %w", l.path, rerr)
		}
		log.Printf("[registry] broke stale lock %s", l.path)
		return fmt.Errorf("stale lock %s broken, retrying", l.path)
	}

	return fmt.Errorf("lock %s held by live writer", l.path)
}

// isStale reports whether the current lock file may be broken: it is older
// than the staleness threshold, its owner pid is dead, or its contents are
// unreadable garbage.
func (l *FileLock) isStale() bool {
	info, err := os.Stat(l.path)
	if err != nil {
		// Lock vanished between create attempt and stat; next retry wins it.
		return false
	}
	if time.Since(info.ModTime()) > l.staleAfter {
		return true
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return false
	}
	ownerPID, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		// Unparseable owner. An empty file can be a writer between create
		// and write; age alone decides that case above.
		return false
	}
	return !l.alive(ownerPID)
}

// pidAlive checks process existence with signal 0.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
