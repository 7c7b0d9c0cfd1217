package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/punchamoorthee/cardledger/internal/domain"
)

// Locker hands out exclusive per-account locks. Every operation that mutates
// an account goes through the same Locker.
//
// Locks for several accounts are always taken in ascending id order, which
// rules out circular waits. Each lock is a weighted semaphore, which grants
// waiters in FIFO order, so a waiter cannot be overtaken indefinitely.
type Locker struct {
	timeout time.Duration

	mu    sync.Mutex
	locks map[int64]*accountLock
}

type accountLock struct {
	sem  *semaphore.Weighted
	refs int
}

func NewLocker(timeout time.Duration) *Locker {
	return &Locker{timeout: timeout, locks: make(map[int64]*accountLock)}
}

// Lock acquires the locks for ids and returns the function releasing them.
// If the locks are not obtained within the configured timeout, or ctx ends
// first, nothing is held and a KindBusy error is returned.
func (l *Locker) Lock(ctx context.Context, ids ...int64) (func(), error) {
	ordered := uniqueSorted(ids)

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	held := make([]int64, 0, len(ordered))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}

	for _, id := range ordered {
		lk := l.ref(id)
		if err := lk.sem.Acquire(ctx, 1); err != nil {
			l.unref(id)
			release()
			return nil, &domain.Error{Kind: domain.KindBusy, AccountID: id, Reason: "lock wait timed out", Err: err}
		}
		held = append(held, id)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *Locker) ref(id int64) *accountLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &accountLock{sem: semaphore.NewWeighted(1)}
		l.locks[id] = lk
	}
	lk.refs++
	return lk
}

func (l *Locker) unref(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk := l.locks[id]
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *Locker) release(id int64) {
	l.mu.Lock()
	lk := l.locks[id]
	l.mu.Unlock()
	lk.sem.Release(1)
	l.unref(id)
}

func uniqueSorted(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
