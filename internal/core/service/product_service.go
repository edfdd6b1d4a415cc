package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
	"github.com/rl1809/stock-ledger/pkg/logger"
)

var tracer = otel.Tracer("ledger-service")

// Column widths of the product and transaction tables.
const (
	maxSKULength       = 50
	maxNameLength      = 100
	maxReferenceLength = 100
)

type CreateProductInput struct {
	Name        string
	SKU         string
	Description string
	MinStock    int
	MaxStock    int
}

// ProductService is the product registry. It never writes currentStock.
type ProductService struct {
	repo     port.ProductRepository
	locker   port.StockLocker
	lockWait time.Duration
	now      func() time.Time
}

func NewProductService(repo port.ProductRepository, locker port.StockLocker, lockWait time.Duration) *ProductService {
	return &ProductService{
		repo:     repo,
		locker:   locker,
		lockWait: lockWait,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *ProductService) CreateProduct(ctx context.Context, in CreateProductInput) (_ *domain.Product, err error) {
	ctx, span := tracer.Start(ctx, "registry.CreateProduct",
		trace.WithAttributes(attribute.String("product.sku", in.SKU)),
	)
	defer func() { endSpan(span, err); productsTotal.WithLabelValues("create", outcome(err)).Inc() }()

	name := strings.TrimSpace(in.Name)
	sku := strings.TrimSpace(in.SKU)
	if name == "" {
		return nil, domain.NewValidationError("name", "name is required")
	}
	if sku == "" {
		return nil, domain.NewValidationError("sku", "sku is required")
	}
	if len(name) > maxNameLength {
		return nil, domain.NewValidationError("name", "name exceeds %d characters", maxNameLength)
	}
	if len(sku) > maxSKULength {
		return nil, domain.NewValidationError("sku", "sku exceeds %d characters", maxSKULength)
	}
	if err := checkBounds(in.MinStock, in.MaxStock); err != nil {
		return nil, err
	}

	now := s.now()
	product := domain.Product{
		ID:          uuid.Must(uuid.NewV7()).String(),
		SKU:         sku,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		MinStock:    in.MinStock,
		MaxStock:    in.MaxStock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.CreateProduct(ctx, product); err != nil {
		if errors.Is(err, domain.ErrDuplicateSKU) {
			return nil, err
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	logger.Info(ctx).
		Str("product_id", product.ID).
		Str("sku", product.SKU).
		Msg("Product created")
	return &product, nil
}

func (s *ProductService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.NewValidationError("id", "id is required")
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *ProductService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (s *ProductService) UpdateProduct(ctx context.Context, id string, changes domain.ProductChanges) (_ *domain.Product, err error) {
	ctx, span := tracer.Start(ctx, "registry.UpdateProduct",
		trace.WithAttributes(attribute.String("product.id", id)),
	)
	defer func() { endSpan(span, err); productsTotal.WithLabelValues("update", outcome(err)).Inc() }()

	release, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if changes.Name != nil {
		name := strings.TrimSpace(*changes.Name)
		if name == "" {
			return nil, domain.NewValidationError("name", "name cannot be empty")
		}
		if len(name) > maxNameLength {
			return nil, domain.NewValidationError("name", "name exceeds %d characters", maxNameLength)
		}
		product.Name = name
	}
	if changes.Description != nil {
		product.Description = strings.TrimSpace(*changes.Description)
	}
	if changes.MinStock != nil {
		product.MinStock = *changes.MinStock
	}
	if changes.MaxStock != nil {
		product.MaxStock = *changes.MaxStock
	}
	if err := checkBounds(product.MinStock, product.MaxStock); err != nil {
		return nil, err
	}

	product.UpdatedAt = s.now()
	if err := s.repo.UpdateProduct(ctx, *product); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return s.repo.GetProduct(ctx, id)
}

// RetireProduct hides a product from new ledger movements. Products are never
// deleted because transaction details keep referencing them.
func (s *ProductService) RetireProduct(ctx context.Context, id string) (_ *domain.Product, err error) {
	ctx, span := tracer.Start(ctx, "registry.RetireProduct",
		trace.WithAttributes(attribute.String("product.id", id)),
	)
	defer func() { endSpan(span, err); productsTotal.WithLabelValues("retire", outcome(err)).Inc() }()

	release, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if product.Retired {
		return product, nil
	}

	product.Retired = true
	product.UpdatedAt = s.now()
	if err := s.repo.RetireProduct(ctx, id, product.UpdatedAt); err != nil {
		return nil, fmt.Errorf("retire product: %w", err)
	}

	logger.Info(ctx).
		Str("product_id", product.ID).
		Int("current_stock", product.CurrentStock).
		Msg("Product retired")
	return product, nil
}

// Inventory reports current stock and status for every product.
func (s *ProductService) Inventory(ctx context.Context) ([]domain.InventoryItem, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]domain.InventoryItem, len(products))
	for i, p := range products {
		items[i] = domain.NewInventoryItem(p)
	}
	return items, nil
}

// lock takes the product's ledger scope so registry writes serialize with
// stock movements on the same product.
func (s *ProductService) lock(ctx context.Context, id string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	release, err := s.locker.Lock(lockCtx, []string{id})
	if err != nil {
		return nil, lockError(ctx, err)
	}
	return release, nil
}

func checkBounds(minStock, maxStock int) error {
	if minStock < 0 {
		return domain.NewValidationError("minStock", "minStock cannot be negative")
	}
	if minStock >= maxStock {
		return domain.NewInvalidBoundsError(minStock, maxStock)
	}
	return nil
}

// lockError turns a lock wait timeout into a retryable contention error. A
// caller that went away keeps its own context error.
func lockError(ctx context.Context, err error) error {
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return domain.NewContentionError(err)
	}
	return fmt.Errorf("acquire product locks: %w", err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
