// Package lock serializes work per key, such as concurrent CRM pushes for
// the same external id.
//
//	unlock, err := locker.Lock(ctx, "product:"+id)
//	if err != nil { ... }
//	defer unlock()
//
// Redis backs the lock across processes when REDIS_ADDR is set; Local keeps
// it within one process otherwise.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrTimeout is returned when a distributed lock could not be acquired in
// time.
var ErrTimeout = errors.New("lock: timed out waiting for lock")

// Locker acquires a lock on key. The returned func releases it and is safe
// to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Local is an in-process keyed mutex. The zero value is ready to use.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local { return &Local{} }

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.slots == nil {
		l.slots = map[string]*slot{}
	}
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

func (l *Local) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// held reports how many keys are locked or waited on.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
