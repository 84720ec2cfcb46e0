package memory

import (
	"context"
	"sync"

	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
)

// UserLocker serializes mutations per user inside one process.
type UserLocker struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sem     chan struct{}
	waiters int
}

// NewUserLocker creates a process-local locker.
func NewUserLocker() *UserLocker {
	return &UserLocker{locks: make(map[string]*userLock)}
}

// Acquire implements progress.UserLocker.
func (l *UserLocker) Acquire(ctx context.Context, userID string) (progress.ReleaseFunc, error) {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{sem: make(chan struct{}, 1)}
		l.locks[userID] = ul
	}
	ul.waiters++
	l.mu.Unlock()

	select {
	case ul.sem <- struct{}{}:
	case <-ctx.Done():
		l.leave(userID, ul)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-ul.sem
			l.leave(userID, ul)
		})
		return nil
	}, nil
}

// leave drops the entry once nobody holds or waits for it.
func (l *UserLocker) leave(userID string, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ul.waiters--
	if ul.waiters == 0 {
		delete(l.locks, userID)
	}
}
