package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// ErrNotAcquired is returned when a lock could not be taken within the wait window
var ErrNotAcquired = errors.New("lock not acquired")

// Release gives a held lock back. It is safe to call more than once.
type Release func(ctx context.Context) error

// Locker serializes work on a named resource
type Locker interface {
	// Acquire blocks until the lock is held, ctx is done, or the wait window passes
	Acquire(ctx context.Context, name string) (Release, error)

	// Ping checks the backing store
	Ping(ctx context.Context) error

	// Close releases backend resources
	Close() error
}

// Driver names accepted by config
const (
	DriverLocal = "local"
	DriverRedis = "redis"
	DriverNone  = "none"
)

// ValidDriver reports whether name is a known lock driver
func ValidDriver(name string) bool {
	switch strings.ToLower(name) {
	case DriverLocal, DriverRedis, DriverNone:
		return true
	}
	return false
}

// LocalLocker serializes callers within one process
type LocalLocker struct {
	wait  time.Duration
	slots *xsync.Map[string, chan struct{}]
}

// NewLocalLocker creates an in-process locker. A zero wait blocks until ctx is done.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		wait:  wait,
		slots: xsync.NewMap[string, chan struct{}](),
	}
}

// Acquire takes the named slot
func (l *LocalLocker) Acquire(ctx context.Context, name string) (Release, error) {
	slot, _ := l.slots.LoadOrStore(name, make(chan struct{}, 1))

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, name, ctx.Err())
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-slot })
		return nil
	}, nil
}

// Ping always succeeds
func (l *LocalLocker) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (l *LocalLocker) Close() error {
	return nil
}

// NoopLocker never blocks. Concurrent runs may race and the last writer wins.
type NoopLocker struct{}

// Acquire returns immediately
func (NoopLocker) Acquire(ctx context.Context, name string) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

// Ping always succeeds
func (NoopLocker) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (NoopLocker) Close() error {
	return nil
}
