package domain

import (
	"errors"
	"testing"
)

func TestStockStatusOf(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		min, max int
		want     StockStatus
	}{
		{"empty", 0, 2, 50, StockStatusLow},
		{"at min", 2, 2, 50, StockStatusLow},
		{"just above min", 3, 2, 50, StockStatusNormal},
		{"just below max", 49, 2, 50, StockStatusNormal},
		{"at max", 50, 2, 50, StockStatusHigh},
		{"above max", 70, 2, 50, StockStatusHigh},
		{"zero min", 0, 0, 10, StockStatusLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StockStatusOf(tt.current, tt.min, tt.max); got != tt.want {
				t.Errorf("StockStatusOf(%d, %d, %d) = %s, want %s", tt.current, tt.min, tt.max, got, tt.want)
			}
		})
	}
}

func TestNewInventoryItem(t *testing.T) {
	p := Product{ID: "p1", SKU: "LAP-001", Name: "Laptop", CurrentStock: 10, MinStock: 2, MaxStock: 50}

	item := NewInventoryItem(p)
	if item.ProductID != "p1" || item.ProductSKU != "LAP-001" || item.ProductName != "Laptop" {
		t.Errorf("unexpected identity fields: %+v", item)
	}
	if item.Status != StockStatusNormal {
		t.Errorf("expected normal, got %s", item.Status)
	}
}

func TestApplyDelta(t *testing.T) {
	tests := []struct {
		name    string
		current int
		delta   int
		want    int
		kind    ErrorKind
	}{
		{"in", 5, 3, 8, ""},
		{"out to zero", 5, -5, 0, ""},
		{"out below zero", 5, -6, 0, KindInsufficientStock},
		{"up to ceiling", MaxQuantity - 1, 1, MaxQuantity, ""},
		{"past ceiling", MaxQuantity, 1, 0, KindValidation},
		{"large in onto stock", 1, MaxQuantity, 0, KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyDelta("p1", tt.current, tt.delta)
			if tt.kind == "" {
				if err != nil || got != tt.want {
					t.Errorf("expected %d, got %d (%v)", tt.want, got, err)
				}
				return
			}
			if KindOf(err) != tt.kind {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
			var de *Error
			if errors.As(err, &de) && de.ProductID != "p1" {
				t.Errorf("expected product p1 on error, got %q", de.ProductID)
			}
		})
	}
}
