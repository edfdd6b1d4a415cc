package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

type TransactionType string

const (
	TransactionTypeIn  TransactionType = "IN"
	TransactionTypeOut TransactionType = "OUT"
)

func ParseTransactionType(s string) (TransactionType, bool) {
	switch t := TransactionType(strings.ToUpper(strings.TrimSpace(s))); t {
	case TransactionTypeIn, TransactionTypeOut:
		return t, true
	default:
		return "", false
	}
}

// Delta converts a positive quantity into a signed stock movement.
func (t TransactionType) Delta(quantity int) int {
	if t == TransactionTypeOut {
		return -quantity
	}
	return quantity
}

type TransactionDetail struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transactionId"`
	Type          TransactionType `json:"type,omitempty"`
	Date          time.Time       `json:"date"`
	ProductID     string          `json:"productId"`
	ProductName   string          `json:"productName,omitempty"`
	ProductSKU    string          `json:"productSku,omitempty"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
}

func (d TransactionDetail) Value() decimal.Decimal {
	return d.UnitPrice.Mul(decimal.NewFromInt(int64(d.Quantity)))
}

type Transaction struct {
	ID         string              `json:"id"`
	Type       TransactionType     `json:"type"`
	Date       time.Time           `json:"date"`
	Reference  string              `json:"reference"`
	Notes      string              `json:"notes,omitempty"`
	Items      []TransactionDetail `json:"items"`
	TotalItems int                 `json:"totalItems"`
	TotalValue decimal.Decimal     `json:"totalValue"`
}

// ComputeTotals refreshes TotalItems and TotalValue from the line items.
func (t *Transaction) ComputeTotals() {
	t.TotalItems = 0
	t.TotalValue = decimal.Zero
	for _, item := range t.Items {
		t.TotalItems += item.Quantity
		t.TotalValue = t.TotalValue.Add(item.Value())
	}
}

type StockChange struct {
	ProductID string
	Delta     int
}

// StockChanges returns one signed change per product, ordered by product id.
func (t Transaction) StockChanges() []StockChange {
	byProduct := make(map[string]int, len(t.Items))
	for _, item := range t.Items {
		byProduct[item.ProductID] += t.Type.Delta(item.Quantity)
	}

	changes := make([]StockChange, 0, len(byProduct))
	for id, delta := range byProduct {
		changes = append(changes, StockChange{ProductID: id, Delta: delta})
	}
	slices.SortFunc(changes, func(a, b StockChange) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return changes
}

// SortTransactions orders newest first; ids break ties since they are time ordered.
func SortTransactions(txns []Transaction) {
	slices.SortStableFunc(txns, func(a, b Transaction) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}

func SortDetails(details []TransactionDetail) {
	slices.SortStableFunc(details, func(a, b TransactionDetail) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		if c := strings.Compare(b.TransactionID, a.TransactionID); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
