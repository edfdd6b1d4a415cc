package port

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// CommittedEvent is a committed transaction waiting to be published. It keeps
// the span context of the request that committed it.
type CommittedEvent struct {
	Transaction domain.Transaction
	SpanContext trace.SpanContext
}

type EventPublisher interface {
	PublishTransactionCommitted(ctx context.Context, txn domain.Transaction) error
	Close() error
}
