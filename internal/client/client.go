package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rl1809/stock-ledger/internal/adapter/handler"
	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// APIError is a non-2xx response from the ledger API.
type APIError struct {
	Status int
	Body   handler.ErrorResponse
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger api: %d %s: %s", e.Status, e.Body.Error, e.Body.Message)
}

// Kind returns the domain error kind reported by the server.
func (e *APIError) Kind() domain.ErrorKind {
	return domain.ErrorKind(e.Body.Error)
}

// Client talks to the ledger HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) CreateProduct(ctx context.Context, req handler.CreateProductRequest) (*domain.Product, error) {
	var p domain.Product
	if err := c.do(ctx, http.MethodPost, "/api/products", req, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	if err := c.do(ctx, http.MethodGet, "/api/products", nil, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	if err := c.do(ctx, http.MethodGet, "/api/products/"+id, nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// RecordTransaction posts a transaction; a non-empty idempotencyKey is sent
// as the Idempotency-Key header.
func (c *Client) RecordTransaction(ctx context.Context, req handler.RecordTransactionRequest, idempotencyKey string) (*domain.Transaction, error) {
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}

	var txn domain.Transaction
	if err := c.do(ctx, http.MethodPost, "/api/transactions", req, headers, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

func (c *Client) Inventory(ctx context.Context) ([]domain.InventoryItem, error) {
	var items []domain.InventoryItem
	if err := c.do(ctx, http.MethodGet, "/api/inventory", nil, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) Reconcile(ctx context.Context) (*handler.ReconciliationResponse, error) {
	var resp handler.ReconciliationResponse
	if err := c.do(ctx, http.MethodGet, "/api/inventory/reconciliation", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, headers map[string]string, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr.Body); err != nil {
			apiErr.Body.Error = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
