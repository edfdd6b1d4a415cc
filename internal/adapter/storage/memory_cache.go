package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// lockSlot is a one-token semaphore; refs counts holders and waiters so idle
// slots can be dropped.
type lockSlot struct {
	token chan struct{}
	refs  int
}

// MemoryCache is the single-instance CacheRepository: per-product locks with
// a bounded wait plus an idempotency key set.
type MemoryCache struct {
	mu    sync.Mutex
	slots map[string]*lockSlot

	idemMu sync.Mutex
	keys   map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

func NewMemoryCache(idempotencyTTL time.Duration) *MemoryCache {
	if idempotencyTTL <= 0 {
		idempotencyTTL = idempotencyKeyTTL
	}
	return &MemoryCache{
		slots: make(map[string]*lockSlot),
		keys:  make(map[string]time.Time),
		ttl:   idempotencyTTL,
		now:   time.Now,
	}
}

func (c *MemoryCache) Lock(ctx context.Context, productIDs []string) (func(), error) {
	ids := sortedUnique(productIDs)
	held := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := c.acquire(ctx, id); err != nil {
			c.releaseAll(held)
			return nil, fmt.Errorf("lock product %s: %w", id, err)
		}
		held = append(held, id)
	}

	var once sync.Once
	return func() { once.Do(func() { c.releaseAll(held) }) }, nil
}

func (c *MemoryCache) acquire(ctx context.Context, id string) error {
	c.mu.Lock()
	slot, ok := c.slots[id]
	if !ok {
		slot = &lockSlot{token: make(chan struct{}, 1)}
		c.slots[id] = slot
	}
	slot.refs++
	c.mu.Unlock()

	select {
	case slot.token <- struct{}{}:
		return nil
	case <-ctx.Done():
		c.unref(id, slot)
		return ctx.Err()
	}
}

// releaseAll unlocks in reverse acquisition order.
func (c *MemoryCache) releaseAll(ids []string) {
	for i := len(ids) - 1; i >= 0; i-- {
		c.mu.Lock()
		slot := c.slots[ids[i]]
		c.mu.Unlock()

		<-slot.token
		c.unref(ids[i], slot)
	}
}

func (c *MemoryCache) unref(id string, slot *lockSlot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(c.slots, id)
	}
}

func (c *MemoryCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	c.idemMu.Lock()
	defer c.idemMu.Unlock()

	now := c.now()
	if expires, ok := c.keys[key]; ok && now.Before(expires) {
		return false, nil
	}
	c.keys[key] = now.Add(c.ttl)

	// Sweep lazily so the map does not grow without bound.
	if len(c.keys)%1024 == 0 {
		for k, exp := range c.keys {
			if !now.Before(exp) {
				delete(c.keys, k)
			}
		}
	}
	return true, nil
}

func (c *MemoryCache) ReleaseIdempotency(ctx context.Context, key string) error {
	c.idemMu.Lock()
	defer c.idemMu.Unlock()
	delete(c.keys, key)
	return nil
}

func sortedUnique(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
