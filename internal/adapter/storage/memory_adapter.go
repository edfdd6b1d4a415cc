package storage

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// memorySnapshot is immutable once published. Writers build the next one
// under MemoryAdapter.mu; readers only Load the pointer.
type memorySnapshot struct {
	products     map[string]domain.Product
	productOrder []string
	skus         map[string]string
	transactions []domain.Transaction
	txnIndex     map[string]int
}

type MemoryAdapter struct {
	mu   sync.Mutex
	snap atomic.Pointer[memorySnapshot]
}

func NewMemoryAdapter() *MemoryAdapter {
	m := &MemoryAdapter{}
	m.snap.Store(&memorySnapshot{
		products: map[string]domain.Product{},
		skus:     map[string]string{},
		txnIndex: map[string]int{},
	})
	return m
}

func (m *MemoryAdapter) CreateProduct(ctx context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.snap.Load()
	if _, taken := cur.skus[product.SKU]; taken {
		return domain.NewDuplicateSKUError(product.SKU)
	}

	next := *cur
	next.products = maps.Clone(cur.products)
	next.products[product.ID] = product
	next.skus = maps.Clone(cur.skus)
	next.skus[product.SKU] = product.ID
	next.productOrder = append(cur.productOrder, product.ID)
	m.snap.Store(&next)
	return nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, ok := m.snap.Load().products[id]
	if !ok {
		return nil, domain.NewNotFoundError("product", id)
	}
	return &p, nil
}

func (m *MemoryAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	snap := m.snap.Load()
	out := make([]domain.Product, 0, len(snap.productOrder))
	for _, id := range snap.productOrder {
		out = append(out, snap.products[id])
	}
	return out, nil
}

func (m *MemoryAdapter) UpdateProduct(ctx context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.snap.Load()
	stored, ok := cur.products[product.ID]
	if !ok {
		return domain.NewNotFoundError("product", product.ID)
	}
	stored.Name = product.Name
	stored.Description = product.Description
	stored.MinStock = product.MinStock
	stored.MaxStock = product.MaxStock
	stored.UpdatedAt = product.UpdatedAt
	m.storeProduct(cur, stored)
	return nil
}

func (m *MemoryAdapter) RetireProduct(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.snap.Load()
	stored, ok := cur.products[id]
	if !ok {
		return domain.NewNotFoundError("product", id)
	}
	stored.Retired = true
	stored.UpdatedAt = at
	m.storeProduct(cur, stored)
	return nil
}

// storeProduct publishes cur with one product replaced; callers hold mu.
func (m *MemoryAdapter) storeProduct(cur *memorySnapshot, p domain.Product) {
	next := *cur
	next.products = maps.Clone(cur.products)
	next.products[p.ID] = p
	m.snap.Store(&next)
}

func (m *MemoryAdapter) ApplyTransaction(ctx context.Context, txn domain.Transaction, changes []domain.StockChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.snap.Load()
	if _, exists := cur.txnIndex[txn.ID]; exists {
		return domain.NewValidationError("id", "transaction %s already recorded", txn.ID)
	}

	products := maps.Clone(cur.products)
	for _, c := range changes {
		p, ok := products[c.ProductID]
		if !ok {
			return domain.NewNotFoundError("product", c.ProductID)
		}
		next, err := domain.ApplyDelta(p.ID, p.CurrentStock, c.Delta)
		if err != nil {
			return err
		}
		p.CurrentStock = next
		p.UpdatedAt = txn.Date
		products[c.ProductID] = p
	}

	txn.Items = slices.Clone(txn.Items)
	next := *cur
	next.products = products
	next.transactions = append(cur.transactions, txn)
	next.txnIndex = maps.Clone(cur.txnIndex)
	next.txnIndex[txn.ID] = len(next.transactions) - 1
	m.snap.Store(&next)
	return nil
}

func (m *MemoryAdapter) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	snap := m.snap.Load()
	i, ok := snap.txnIndex[id]
	if !ok {
		return nil, domain.NewNotFoundError("transaction", id)
	}
	txn := snap.transactions[i]
	txn.Items = slices.Clone(txn.Items)
	return &txn, nil
}

func (m *MemoryAdapter) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	snap := m.snap.Load()
	out := make([]domain.Transaction, len(snap.transactions))
	for i, txn := range snap.transactions {
		txn.Items = slices.Clone(txn.Items)
		out[i] = txn
	}
	domain.SortTransactions(out)
	return out, nil
}

func (m *MemoryAdapter) ListTransactionDetails(ctx context.Context) ([]domain.TransactionDetail, error) {
	snap := m.snap.Load()
	out := []domain.TransactionDetail{}
	for _, txn := range snap.transactions {
		out = append(out, txn.Items...)
	}
	domain.SortDetails(out)
	return out, nil
}

func (m *MemoryAdapter) NetMovements(ctx context.Context) (map[string]int, error) {
	snap := m.snap.Load()
	net := make(map[string]int)
	for _, txn := range snap.transactions {
		for _, item := range txn.Items {
			net[item.ProductID] += txn.Type.Delta(item.Quantity)
		}
	}
	return net, nil
}

func (m *MemoryAdapter) Ping(ctx context.Context) error {
	return ctx.Err()
}
