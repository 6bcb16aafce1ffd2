// Package dialog serializes work on a dialog across goroutines.
package dialog

import (
	"context"
	"fmt"
	"sync"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

// Mutexes hands out one FIFO lock per dialog id. Locks for different ids
// never block each other.
//
// Each id keeps the channel closed by its most recent holder. A new locker
// swaps in its own channel and waits for the previous one to close, so
// waiters are served in arrival order. Entries are kept for the life of the
// process.
type Mutexes struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func NewMutexes() *Mutexes {
	return &Mutexes{tails: map[string]chan struct{}{}}
}

// enqueue appends a new holder slot for id and returns the slot to wait on
// (nil when the queue was empty) and the slot to close on release.
func (m *Mutexes) enqueue(id string) (prev, done chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev = m.tails[id]
	done = make(chan struct{})
	m.tails[id] = done
	return prev, done
}

func releaser(done chan struct{}) func() {
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// Lock waits until the dialog id is free and returns its release function.
// Release is idempotent. If ctx ends while waiting, Lock returns an error
// wrapping schema.ErrAborted and the caller's place in the queue is handed
// on to the next waiter.
func (m *Mutexes) Lock(ctx context.Context, id string) (func(), error) {
	prev, done := m.enqueue(id)
	if prev == nil {
		return releaser(done), nil
	}

	select {
	case <-prev:
		return releaser(done), nil
	case <-ctx.Done():
		go func() {
			<-prev
			close(done)
		}()
		return nil, fmt.Errorf("lock dialog %s: %w: %w", id, schema.ErrAborted, context.Cause(ctx))
	}
}

// TryLock acquires the dialog id only if nobody holds or awaits it.
func (m *Mutexes) TryLock(id string) (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tail, ok := m.tails[id]; ok {
		select {
		case <-tail:
		default:
			return nil, false
		}
	}
	done := make(chan struct{})
	m.tails[id] = done
	return releaser(done), true
}

// RunWithLock runs fn while holding the lock of dialog id.
func (m *Mutexes) RunWithLock(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	release, err := m.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}
