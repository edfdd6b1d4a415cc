package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryCache_LockExcludes(t *testing.T) {
	c := NewMemoryCache(0)
	ctx := context.Background()

	release, err := c.Lock(ctx, []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := c.Lock(waitCtx, []string{"b"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	release()
	release()

	again, err := c.Lock(ctx, []string{"b"})
	if err != nil {
		t.Fatalf("expected lock after release, got %v", err)
	}
	again()
}

func TestMemoryCache_FailedLockReleasesPartialSet(t *testing.T) {
	c := NewMemoryCache(0)
	ctx := context.Background()

	holdB, _ := c.Lock(ctx, []string{"b"})
	defer holdB()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := c.Lock(waitCtx, []string{"a", "b"}); err == nil {
		t.Fatal("expected lock to fail while b is held")
	}

	// "a" was taken first and must have been given back.
	shortCtx, cancel2 := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel2()
	release, err := c.Lock(shortCtx, []string{"a"})
	if err != nil {
		t.Fatalf("expected a to be free, got %v", err)
	}
	release()
}

func TestMemoryCache_OverlappingSetsDoNotDeadlock(t *testing.T) {
	c := NewMemoryCache(0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var done atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		ids := []string{"x", "y", "z"}
		if i%2 == 0 {
			ids = []string{"z", "y", "x", "x"}
		}
		wg.Add(1)
		go func(ids []string) {
			defer wg.Done()
			release, err := c.Lock(ctx, ids)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			done.Add(1)
			release()
		}(ids)
	}
	wg.Wait()

	if done.Load() != 100 {
		t.Errorf("expected 100 lock rounds, got %d", done.Load())
	}

	c.mu.Lock()
	idle := len(c.slots)
	c.mu.Unlock()
	if idle != 0 {
		t.Errorf("expected idle slots to be dropped, got %d", idle)
	}
}

func TestMemoryCache_Idempotency(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ok, _ := c.SetIdempotency(ctx, "k")
	if !ok {
		t.Fatal("expected first set to succeed")
	}
	ok, _ = c.SetIdempotency(ctx, "k")
	if ok {
		t.Fatal("expected second set to fail")
	}

	now = now.Add(2 * time.Minute)
	ok, _ = c.SetIdempotency(ctx, "k")
	if !ok {
		t.Fatal("expected expired key to be reusable")
	}

	c.ReleaseIdempotency(ctx, "k")
	ok, _ = c.SetIdempotency(ctx, "k")
	if !ok {
		t.Fatal("expected released key to be reusable")
	}
}
