package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
	"github.com/rl1809/stock-ledger/pkg/logger"
)

const idempotencyKeyPrefix = "idempotency:transaction:"

type LedgerConfig struct {
	// LockWait bounds how long a transaction waits for its product scopes.
	LockWait  time.Duration
	QueueSize int
}

// LedgerService is the only writer of product stock.
type LedgerService struct {
	store    port.DatabaseRepository
	cache    port.CacheRepository
	lockWait time.Duration
	now      func() time.Time

	mu         sync.RWMutex
	closed     bool
	eventQueue chan port.CommittedEvent
}

func NewLedgerService(store port.DatabaseRepository, cache port.CacheRepository, cfg LedgerConfig) *LedgerService {
	if cfg.LockWait <= 0 {
		cfg.LockWait = 2 * time.Second
	}
	return &LedgerService{
		store:      store,
		cache:      cache,
		lockWait:   cfg.LockWait,
		now:        func() time.Time { return time.Now().UTC() },
		eventQueue: make(chan port.CommittedEvent, cfg.QueueSize),
	}
}

// RecordTransaction validates a stock movement and applies all of its items or none.
func (s *LedgerService) RecordTransaction(ctx context.Context, in RecordTransactionInput) (_ *domain.Transaction, err error) {
	p := propose(in)

	ctx, span := tracer.Start(ctx, "ledger.RecordTransaction",
		trace.WithAttributes(
			attribute.String("transaction.id", p.txn.ID),
			attribute.String("transaction.type", string(p.txn.Type)),
			attribute.Int("transaction.items", len(p.txn.Items)),
		),
	)
	defer func() {
		endSpan(span, err)
		transactionsTotal.WithLabelValues(string(p.txn.Type), outcome(err)).Inc()
	}()

	if err := p.checkInput(in.Type); err != nil {
		return nil, p.reject(err)
	}

	if in.IdempotencyKey != "" {
		key := idempotencyKeyPrefix + in.IdempotencyKey
		ok, err := s.cache.SetIdempotency(ctx, key)
		if err != nil {
			return nil, p.reject(fmt.Errorf("idempotency check failed: %w", err))
		}
		if !ok {
			return nil, p.reject(domain.ErrDuplicateRequest)
		}
		defer func() {
			if err == nil {
				return
			}
			if relErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); relErr != nil {
				logger.Warn(ctx).Err(relErr).Str("idempotency_key", in.IdempotencyKey).
					Msg("Failed to release idempotency key")
			}
		}()
	}

	if err := s.commit(ctx, p); err != nil {
		logger.Info(ctx).
			Str("transaction_id", p.txn.ID).
			Str("type", string(p.txn.Type)).
			Str("reason", string(domain.KindOf(err))).
			Err(err).
			Msg("Transaction rejected")
		return nil, err
	}

	stockUnitsMoved.WithLabelValues(string(p.txn.Type)).Add(float64(p.txn.TotalItems))
	logger.Info(ctx).
		Str("transaction_id", p.txn.ID).
		Str("type", string(p.txn.Type)).
		Str("reference", p.txn.Reference).
		Int("total_items", p.txn.TotalItems).
		Msg("Transaction committed")

	s.enqueue(ctx, p.txn)
	txn := p.txn
	return &txn, nil
}

// commit runs the locked part of the protocol: validate against current
// stock, then apply. Scopes are released on every path.
func (s *LedgerService) commit(ctx context.Context, p *proposal) error {
	ids := p.productIDs()

	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	start := time.Now()
	release, err := s.cache.Lock(lockCtx, ids)
	cancel()
	lockWaitSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return p.reject(lockError(ctx, err))
	}
	defer release()

	products := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		product, err := s.store.GetProduct(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return p.reject(fmt.Errorf("load product %s: %w", id, err))
		}
		products[id] = *product
	}

	if err := p.validate(products); err != nil {
		return p.reject(err)
	}

	p.stamp(s.now())
	if err := s.store.ApplyTransaction(ctx, p.txn, p.txn.StockChanges()); err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return p.reject(err)
		}
		return p.reject(fmt.Errorf("apply transaction: %w", err))
	}

	p.commit()
	return nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "id is required")
	}
	return s.store.GetTransaction(ctx, id)
}

func (s *LedgerService) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	txns, err := s.store.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}

func (s *LedgerService) ListTransactionDetails(ctx context.Context) ([]domain.TransactionDetail, error) {
	details, err := s.store.ListTransactionDetails(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transaction details: %w", err)
	}
	return details, nil
}

// Reconcile recomputes every product's stock from the ledger and returns the
// products whose stored stock disagrees. All product scopes are held while reading.
func (s *LedgerService) Reconcile(ctx context.Context) ([]domain.Discrepancy, error) {
	ctx, span := tracer.Start(ctx, "ledger.Reconcile")
	defer span.End()

	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	ids := make([]string, len(products))
	locked := make(map[string]bool, len(products))
	for i, p := range products {
		ids[i] = p.ID
		locked[p.ID] = true
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	release, err := s.cache.Lock(lockCtx, ids)
	cancel()
	if err != nil {
		return nil, lockError(ctx, err)
	}
	defer release()

	// Re-read under the scopes; the first read only named them. Products
	// created since then are unlocked and left for the next run.
	products, err = s.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	net, err := s.store.NetMovements(ctx)
	if err != nil {
		return nil, fmt.Errorf("net movements: %w", err)
	}

	out := []domain.Discrepancy{}
	for _, p := range products {
		if !locked[p.ID] {
			continue
		}
		if net[p.ID] != p.CurrentStock {
			out = append(out, domain.Discrepancy{
				ProductID:    p.ID,
				ProductSKU:   p.SKU,
				CurrentStock: p.CurrentStock,
				LedgerStock:  net[p.ID],
			})
		}
	}

	if len(out) > 0 {
		logger.Warn(ctx).Int("discrepancies", len(out)).Msg("Ledger reconciliation found mismatches")
	}
	return out, nil
}

func (s *LedgerService) enqueue(ctx context.Context, txn domain.Transaction) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.eventQueue <- port.CommittedEvent{Transaction: txn, SpanContext: trace.SpanContextFromContext(ctx)}:
	default:
		eventsDropped.Inc()
		logger.Warn(ctx).Str("transaction_id", txn.ID).Msg("Event queue full, dropping committed event")
	}
}

func (s *LedgerService) GetEventQueue() <-chan port.CommittedEvent {
	return s.eventQueue
}

func (s *LedgerService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.eventQueue)
	}
}
