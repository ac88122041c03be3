package serialpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatchPreservesOrderPerKey(t *testing.T) {
	var mu sync.Mutex
	var got []int

	done := make(chan struct{})
	var total int32

	p := New(func(key string, events []int) {
		mu.Lock()
		got = append(got, events...)
		mu.Unlock()
		if atomic.AddInt32(&total, int32(len(events))) >= 100 {
			close(done)
		}
	})

	for i := 0; i < 100; i++ {
		p.Dispatch("holder-1", i)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for all events to be handled")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("events out of order at %d: got %d want %d", i, v, i)
		}
	}
}

func TestHandlerNeverReentersSameKey(t *testing.T) {
	var active int32
	var reentered int32
	var wg sync.WaitGroup

	p := New(func(key string, events []int) {
		if atomic.AddInt32(&active, 1) > 1 {
			atomic.StoreInt32(&reentered, 1)
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&active, -1)
		wg.Add(-len(events))
	})

	wg.Add(50)
	for i := 0; i < 50; i++ {
		p.Dispatch("shared", i)
	}
	wg.Wait()

	if atomic.LoadInt32(&reentered) != 0 {
		t.Fatal("handler was re-entered for the same key")
	}
}

func TestDistinctKeysRunConcurrently(t *testing.T) {
	const keys = 8
	var wg sync.WaitGroup
	wg.Add(keys)

	start := make(chan struct{})
	var concurrent int32
	var maxConcurrent int32

	p := New(func(key string, events []struct{}) {
		<-start
		n := atomic.AddInt32(&concurrent, 1)
		for {
			old := atomic.LoadInt32(&maxConcurrent)
			if n <= old || atomic.CompareAndSwapInt32(&maxConcurrent, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
		wg.Done()
	})

	for i := 0; i < keys; i++ {
		p.Dispatch(string(rune('a'+i)), struct{}{})
	}
	close(start)
	wg.Wait()

	if atomic.LoadInt32(&maxConcurrent) < 2 {
		t.Fatal("expected distinct keys to run concurrently")
	}
}

func TestForgetAllowsFreshSlot(t *testing.T) {
	var calls int32
	p := New(func(key string, events []int) {
		atomic.AddInt32(&calls, 1)
	})

	p.Dispatch("k", 1)
	time.Sleep(10 * time.Millisecond)
	p.Forget("k")
	p.Dispatch("k", 2)
	time.Sleep(10 * time.Millisecond)

	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 handler invocations, got %d", calls)
	}
}
