package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/adapter/handler"
	"github.com/rl1809/stock-ledger/internal/client"
	"github.com/rl1809/stock-ledger/internal/core/domain"
)

const (
	defaultURL    = "http://localhost:8080"
	initialStock  = 20
	totalRequests = 50
	quantity      = 1
)

func main() {
	ctx := context.Background()

	baseURL := os.Getenv("LEDGER_URL")
	if baseURL == "" {
		baseURL = defaultURL
	}
	c := client.New(baseURL, 10*time.Second)

	sku := "STRESS-" + uuid.NewString()[:8]
	product, err := c.CreateProduct(ctx, handler.CreateProductRequest{
		Name:     "Stress test item",
		SKU:      sku,
		MinStock: 0,
		MaxStock: 1000,
	})
	if err != nil {
		log.Fatalf("failed to create product: %v", err)
	}

	_, err = c.RecordTransaction(ctx, handler.RecordTransactionRequest{
		Type:      string(domain.TransactionTypeIn),
		Reference: "STRESS-SEED",
		Items: []handler.TransactionItemRequest{
			{ProductID: product.ID, Quantity: initialStock, UnitPrice: decimal.NewFromInt(10)},
		},
	}, "")
	if err != nil {
		log.Fatalf("failed to seed stock: %v", err)
	}

	var successCount, insufficientCount, contentionCount, otherCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := c.RecordTransaction(ctx, handler.RecordTransactionRequest{
				Type:      string(domain.TransactionTypeOut),
				Reference: fmt.Sprintf("STRESS-%d", n),
				Items: []handler.TransactionItemRequest{
					{ProductID: product.ID, Quantity: quantity, UnitPrice: decimal.NewFromInt(12)},
				},
			}, "")

			var apiErr *client.APIError
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.As(err, &apiErr) && apiErr.Kind() == domain.KindInsufficientStock:
				insufficientCount.Add(1)
			case errors.As(err, &apiErr) && apiErr.Kind() == domain.KindContention:
				contentionCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("request %d failed: %v", n, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := int(successCount.Load())

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Product:          %s\n", sku)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Insufficient:     %d\n", insufficientCount.Load())
	fmt.Printf("Contention:       %d\n", contentionCount.Load())
	fmt.Printf("Other Errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if success*quantity > initialStock {
		fmt.Printf("FAIL: %d units sold from a stock of %d\n", success*quantity, initialStock)
		failed = true
	} else {
		fmt.Printf("PASS: %d units sold, never above stock\n", success*quantity)
	}

	p, err := c.GetProduct(ctx, product.ID)
	if err != nil {
		log.Fatalf("failed to read product: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", p.CurrentStock)
	if p.CurrentStock != initialStock-success*quantity {
		fmt.Printf("FAIL: expected stock %d, got %d\n", initialStock-success*quantity, p.CurrentStock)
		failed = true
	}

	rec, err := c.Reconcile(ctx)
	if err != nil {
		log.Fatalf("failed to reconcile: %v", err)
	}
	if rec.Consistent {
		fmt.Println("PASS: Ledger reconciles with stored stock")
	} else {
		fmt.Printf("FAIL: %d products disagree with the ledger\n", len(rec.Discrepancies))
		failed = true
	}

	if failed {
		os.Exit(1)
	}
}
