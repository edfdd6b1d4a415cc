package port

import (
	"context"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type ProductRepository interface {
	// CreateProduct stores a new product, failing with domain.ErrDuplicateSKU on a taken sku
	CreateProduct(ctx context.Context, product domain.Product) error

	// GetProduct returns domain.ErrNotFound for an unknown id
	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	// ListProducts returns products in creation order
	ListProducts(ctx context.Context) ([]domain.Product, error)

	// UpdateProduct rewrites the descriptive fields and bounds; sku, stock and
	// the retired flag are left alone
	UpdateProduct(ctx context.Context, product domain.Product) error

	// RetireProduct sets the retired flag; it never clears it
	RetireProduct(ctx context.Context, id string, at time.Time) error
}

type LedgerRepository interface {
	// ApplyTransaction persists the transaction and applies every stock change
	// atomically. A change that would take stock below zero rejects the whole
	// call with domain.ErrInsufficientStock and nothing is written.
	ApplyTransaction(ctx context.Context, txn domain.Transaction, changes []domain.StockChange) error

	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)

	// ListTransactions returns transactions newest first
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)

	// ListTransactionDetails returns line items newest transaction first
	ListTransactionDetails(ctx context.Context) ([]domain.TransactionDetail, error)

	// NetMovements sums signed line item quantities per product id
	NetMovements(ctx context.Context) (map[string]int, error)

	Ping(ctx context.Context) error
}

type DatabaseRepository interface {
	ProductRepository
	LedgerRepository
}
