package usecase

import (
	"context"
	"sync"
)

// sessionLocks hands out one lock per session id so turns within a session
// run one at a time. Entries are dropped once nobody holds or waits on them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is a one-slot channel so waiters can give up when their
// context ends.
type sessionLock struct {
	slot chan struct{}
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// lock blocks until the session is free or ctx is done. On success the
// returned func releases the session.
func (l *sessionLocks) lock(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{slot: make(chan struct{}, 1)}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		l.release(id, sl)
		return nil, err
	}
	select {
	case sl.slot <- struct{}{}:
		return func() {
			<-sl.slot
			l.release(id, sl)
		}, nil
	case <-ctx.Done():
		l.release(id, sl)
		return nil, ctx.Err()
	}
}

func (l *sessionLocks) release(id string, sl *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
