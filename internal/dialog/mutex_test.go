package dialog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

func TestLock_SameIDSerialized(t *testing.T) {
	m := NewMutexes()
	var active, maxActive int32

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			return m.RunWithLock(context.Background(), "d1", func(context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					cur := atomic.LoadInt32(&maxActive)
					if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("RunWithLock: %v", err)
	}
	if maxActive != 1 {
		t.Errorf("expected at most 1 concurrent holder, saw %d", maxActive)
	}
}

func TestLock_FIFOOrder(t *testing.T) {
	m := NewMutexes()
	release, err := m.Lock(context.Background(), "d1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		ready := make(chan struct{})
		go func(i int) {
			defer wg.Done()
			close(ready)
			_ = m.RunWithLock(context.Background(), "d1", func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		<-ready
		// Let the goroutine reach the queue before starting the next one.
		time.Sleep(10 * time.Millisecond)
	}

	release()
	wg.Wait()
	for i, got := range order {
		if got != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestLock_DifferentIDsIndependent(t *testing.T) {
	m := NewMutexes()
	release, err := m.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock a: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := m.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("lock on a different id should not block: %v", err)
	}
	releaseB()
}

func TestLock_CancelWhileWaiting(t *testing.T) {
	m := NewMutexes()
	release, _ := m.Lock(context.Background(), "d1")

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := m.Lock(ctx, "d1")
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-errc
	if !errors.Is(err, schema.ErrAborted) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected aborted error, got %v", err)
	}

	// The cancelled waiter must not wedge the queue.
	release()
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	release2, err := m.Lock(ctx2, "d1")
	if err != nil {
		t.Fatalf("lock after cancelled waiter: %v", err)
	}
	release2()
}

func TestTryLock(t *testing.T) {
	m := NewMutexes()
	release, ok := m.TryLock("d1")
	if !ok {
		t.Fatal("TryLock on free id should succeed")
	}
	if _, ok := m.TryLock("d1"); ok {
		t.Fatal("TryLock on held id should fail")
	}
	release()
	release() // idempotent
	release2, ok := m.TryLock("d1")
	if !ok {
		t.Fatal("TryLock after release should succeed")
	}
	release2()
}
