package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// mockStore wraps the in-memory store and lets tests inject apply failures.
// The on* hooks run before the wrapped read; set them before any concurrent use.
type mockStore struct {
	*storage.MemoryAdapter
	applyErr   error
	applyCalls atomic.Int32

	onGet  func(id string)
	onList func()
	onNet  func()
}

func newMockStore() *mockStore {
	return &mockStore{MemoryAdapter: storage.NewMemoryAdapter()}
}

func (m *mockStore) ApplyTransaction(ctx context.Context, txn domain.Transaction, changes []domain.StockChange) error {
	m.applyCalls.Add(1)
	if m.applyErr != nil {
		return m.applyErr
	}
	return m.MemoryAdapter.ApplyTransaction(ctx, txn, changes)
}

func (m *mockStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if m.onGet != nil {
		m.onGet(id)
	}
	return m.MemoryAdapter.GetProduct(ctx, id)
}

func (m *mockStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if m.onList != nil {
		m.onList()
	}
	return m.MemoryAdapter.ListProducts(ctx)
}

func (m *mockStore) NetMovements(ctx context.Context) (map[string]int, error) {
	if m.onNet != nil {
		m.onNet()
	}
	return m.MemoryAdapter.NetMovements(ctx)
}

// mockCache records lock calls and idempotency keys.
type mockCache struct {
	*storage.MemoryCache
	mu       sync.Mutex
	lockErr  error
	locked   [][]string
	released atomic.Int32
}

func newMockCache() *mockCache {
	return &mockCache{MemoryCache: storage.NewMemoryCache(time.Hour)}
}

func (m *mockCache) Lock(ctx context.Context, productIDs []string) (func(), error) {
	m.mu.Lock()
	m.locked = append(m.locked, productIDs)
	lockErr := m.lockErr
	m.mu.Unlock()

	if lockErr != nil {
		return nil, lockErr
	}
	release, err := m.MemoryCache.Lock(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	return func() {
		m.released.Add(1)
		release()
	}, nil
}

func drain(svc *LedgerService) {
	go func() {
		for range svc.GetEventQueue() {
		}
	}()
}
