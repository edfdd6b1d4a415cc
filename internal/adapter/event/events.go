package event

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

const (
	TopicTransactionCommitted     = "ledger.transaction.committed"
	EventTypeTransactionCommitted = "transaction.committed"
)

type StockMovement struct {
	ProductID  string          `json:"productId"`
	ProductSKU string          `json:"productSku"`
	Delta      int             `json:"delta"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
}

// TransactionCommittedEvent is published once per committed ledger transaction.
type TransactionCommittedEvent struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	Timestamp     time.Time       `json:"timestamp"`
	TransactionID string          `json:"transactionId"`
	Type          string          `json:"type"`
	Reference     string          `json:"reference"`
	Date          time.Time       `json:"date"`
	TotalItems    int             `json:"totalItems"`
	TotalValue    decimal.Decimal `json:"totalValue"`
	Movements     []StockMovement `json:"movements"`
}

// NewTransactionCommittedEvent derives the event from a committed transaction.
// The transaction id doubles as the event id so consumers can deduplicate.
func NewTransactionCommittedEvent(txn domain.Transaction) TransactionCommittedEvent {
	movements := make([]StockMovement, len(txn.Items))
	for i, item := range txn.Items {
		movements[i] = StockMovement{
			ProductID:  item.ProductID,
			ProductSKU: item.ProductSKU,
			Delta:      txn.Type.Delta(item.Quantity),
			UnitPrice:  item.UnitPrice,
		}
	}

	return TransactionCommittedEvent{
		EventID:       txn.ID,
		EventType:     EventTypeTransactionCommitted,
		Timestamp:     time.Now().UTC(),
		TransactionID: txn.ID,
		Type:          string(txn.Type),
		Reference:     txn.Reference,
		Date:          txn.Date,
		TotalItems:    txn.TotalItems,
		TotalValue:    txn.TotalValue,
		Movements:     movements,
	}
}
