package domain

import (
	"math"
	"time"
)

// MaxQuantity caps line quantities and stock levels; SQL stores keep them in INT columns.
const MaxQuantity = math.MaxInt32

type StockStatus string

const (
	StockStatusLow    StockStatus = "low"
	StockStatusNormal StockStatus = "normal"
	StockStatusHigh   StockStatus = "high"
)

type Product struct {
	ID           string    `json:"id"`
	SKU          string    `json:"sku"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	CurrentStock int       `json:"currentStock"`
	MinStock     int       `json:"minStock"`
	MaxStock     int       `json:"maxStock"`
	Retired      bool      `json:"retired"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (p Product) Status() StockStatus {
	return StockStatusOf(p.CurrentStock, p.MinStock, p.MaxStock)
}

// StockStatusOf classifies a stock level against its bounds. The low bound
// wins when both apply.
func StockStatusOf(current, minStock, maxStock int) StockStatus {
	switch {
	case current <= minStock:
		return StockStatusLow
	case current >= maxStock:
		return StockStatusHigh
	default:
		return StockStatusNormal
	}
}

// ProductChanges holds the mutable product fields; nil means unchanged.
type ProductChanges struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	MinStock    *int    `json:"minStock,omitempty"`
	MaxStock    *int    `json:"maxStock,omitempty"`
}

type InventoryItem struct {
	ProductID    string      `json:"productId"`
	ProductName  string      `json:"productName"`
	ProductSKU   string      `json:"productSku"`
	CurrentStock int         `json:"currentStock"`
	MinStock     int         `json:"minStock"`
	MaxStock     int         `json:"maxStock"`
	Status       StockStatus `json:"status"`
}

func NewInventoryItem(p Product) InventoryItem {
	return InventoryItem{
		ProductID:    p.ID,
		ProductName:  p.Name,
		ProductSKU:   p.SKU,
		CurrentStock: p.CurrentStock,
		MinStock:     p.MinStock,
		MaxStock:     p.MaxStock,
		Status:       p.Status(),
	}
}

// Discrepancy reports a product whose stored stock disagrees with its ledger.
type Discrepancy struct {
	ProductID    string `json:"productId"`
	ProductSKU   string `json:"productSku"`
	CurrentStock int    `json:"currentStock"`
	LedgerStock  int    `json:"ledgerStock"`
}

// ApplyDelta returns the stock after moving delta units. Stock may not drop
// below zero or rise above MaxQuantity.
func ApplyDelta(productID string, current, delta int) (int, error) {
	if delta < 0 && current < -delta {
		return 0, NewInsufficientStockError(productID, current, -delta)
	}
	if delta > 0 && current > MaxQuantity-delta {
		err := NewValidationError("quantity", "stock of product %s would exceed %d", productID, MaxQuantity)
		err.ProductID = productID
		return 0, err
	}
	return current + delta, nil
}
