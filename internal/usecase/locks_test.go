package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionLocks_SameKeySerializes(t *testing.T) {
	l := newSessionLocks()
	ctx := context.Background()
	unlock, err := l.lock(ctx, "s1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		u, err := l.lock(ctx, "s1")
		if err != nil {
			return
		}
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first is held")
	case <-time.After(30 * time.Millisecond):
	}
	unlock()
	<-acquired
	require.Eventually(t, func() bool { return l.size() == 0 }, time.Second, time.Millisecond)
}

func TestSessionLocks_DifferentKeysIndependent(t *testing.T) {
	l := newSessionLocks()
	unlockA, err := l.lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		u, err := l.lock(context.Background(), "b")
		if err == nil {
			u()
		}
	}()
	wg.Wait()
	require.Equal(t, 1, l.size())
}

func TestSessionLocks_WaiterGivesUpWhenContextEnds(t *testing.T) {
	l := newSessionLocks()
	unlock, err := l.lock(context.Background(), "s1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	u, err := l.lock(ctx, "s1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Nil(t, u)
	require.Equal(t, 1, l.size())

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err = l.lock(cancelled, "s1")
	require.ErrorIs(t, err, context.Canceled)

	unlock()
	require.Zero(t, l.size())

	unlock, err = l.lock(context.Background(), "s1")
	require.NoError(t, err)
	unlock()
	require.Zero(t, l.size())
}
