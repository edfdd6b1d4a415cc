package event

import (
	"context"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/pkg/logger"
)

// LogPublisher writes committed events to the log when no broker is configured.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (LogPublisher) PublishTransactionCommitted(ctx context.Context, txn domain.Transaction) error {
	event := NewTransactionCommittedEvent(txn)
	logger.Info(ctx).
		Str("event_type", event.EventType).
		Str("transaction_id", event.TransactionID).
		Str("type", event.Type).
		Int("total_items", event.TotalItems).
		Str("total_value", event.TotalValue.StringFixed(2)).
		Msg("Transaction committed event")
	return nil
}

func (LogPublisher) Close() error { return nil }
