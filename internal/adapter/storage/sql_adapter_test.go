package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

var testDSNs = map[Dialect]struct{ env, fallback string }{
	DialectMySQL:    {"MYSQL_DSN", "root:root@tcp(localhost:3306)/ledger?parseTime=true"},
	DialectPostgres: {"POSTGRES_DSN", ""},
}

const embeddedPostgresPort = 15432

var (
	embeddedOnce sync.Once
	embeddedPG   *embeddedpostgres.EmbeddedPostgres
	embeddedErr  error
)

// embeddedPostgresDSN starts a throwaway PostgreSQL once per test binary.
func embeddedPostgresDSN() (string, error) {
	if testing.Short() {
		return "", errors.New("embedded postgres disabled in short mode")
	}
	embeddedOnce.Do(func() {
		embeddedPG = embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
			Port(embeddedPostgresPort).
			Database("ledger"))
		embeddedErr = embeddedPG.Start()
	})
	dsn := fmt.Sprintf("host=localhost port=%d user=postgres password=postgres dbname=ledger sslmode=disable",
		embeddedPostgresPort)
	return dsn, embeddedErr
}

func TestMain(m *testing.M) {
	code := m.Run()
	if embeddedPG != nil && embeddedErr == nil {
		embeddedPG.Stop()
	}
	os.Exit(code)
}

// forEachSQLStore runs fn against every reachable SQL backend.
func forEachSQLStore(t *testing.T, fn func(t *testing.T, a *SQLAdapter)) {
	for dialect, dsn := range testDSNs {
		t.Run(string(dialect), func(t *testing.T) {
			source := os.Getenv(dsn.env)
			if source == "" {
				source = dsn.fallback
			}
			if source == "" && dialect == DialectPostgres {
				var err error
				if source, err = embeddedPostgresDSN(); err != nil {
					t.Skipf("%s not available: %v", dialect, err)
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			db, err := OpenDB(ctx, dialect, source, PoolConfig{MaxOpenConns: 20, MaxIdleConns: 5})
			if err != nil {
				t.Skipf("%s not available: %v", dialect, err)
			}
			defer db.Close()

			a := NewSQLAdapter(db, dialect)
			if err := a.Migrate(context.Background()); err != nil {
				t.Fatalf("migrate failed: %v", err)
			}
			fn(t, a)
		})
	}
}

func uniqueProduct() domain.Product {
	id := uuid.NewString()
	return newTestProduct(id, "SKU-"+id[:8])
}

func TestSQLAdapter_ProductLifecycle(t *testing.T) {
	forEachSQLStore(t, func(t *testing.T, a *SQLAdapter) {
		ctx := context.Background()
		p := uniqueProduct()

		if err := a.CreateProduct(ctx, p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		dup := uniqueProduct()
		dup.SKU = p.SKU
		if err := a.CreateProduct(ctx, dup); !errors.Is(err, domain.ErrDuplicateSKU) {
			t.Fatalf("expected duplicate sku, got %v", err)
		}

		sameID := uniqueProduct()
		sameID.ID = p.ID
		if err := a.CreateProduct(ctx, sameID); err == nil || errors.Is(err, domain.ErrDuplicateSKU) {
			t.Fatalf("expected a non-sku error for an id collision, got %v", err)
		}

		p.Name = "Renamed"
		if err := a.UpdateProduct(ctx, p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := a.RetireProduct(ctx, p.ID, time.Now().UTC()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// No-op update must not be reported as missing, nor clear the flag.
		if err := a.UpdateProduct(ctx, p); err != nil {
			t.Fatalf("unexpected error on no-op update: %v", err)
		}

		got, err := a.GetProduct(ctx, p.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Name != "Renamed" || !got.Retired || got.CurrentStock != 0 {
			t.Errorf("unexpected product: %+v", got)
		}

		missing := uniqueProduct()
		if err := a.UpdateProduct(ctx, missing); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
		if err := a.RetireProduct(ctx, missing.ID, time.Now().UTC()); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected not found on retire, got %v", err)
		}
	})
}

func TestSQLAdapter_ApplyTransaction(t *testing.T) {
	forEachSQLStore(t, func(t *testing.T, a *SQLAdapter) {
		ctx := context.Background()
		pa, pb := uniqueProduct(), uniqueProduct()
		a.CreateProduct(ctx, pa)
		a.CreateProduct(ctx, pb)

		in := newTestTransaction(uuid.NewString(), domain.TransactionTypeIn, map[string]int{pa.ID: 10, pb.ID: 1})
		if err := a.ApplyTransaction(ctx, in, in.StockChanges()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := newTestTransaction(uuid.NewString(), domain.TransactionTypeOut, map[string]int{pa.ID: 4, pb.ID: 2})
		err := a.ApplyTransaction(ctx, out, out.StockChanges())
		if !errors.Is(err, domain.ErrInsufficientStock) {
			t.Fatalf("expected insufficient stock, got %v", err)
		}

		gotA, _ := a.GetProduct(ctx, pa.ID)
		gotB, _ := a.GetProduct(ctx, pb.ID)
		if gotA.CurrentStock != 10 || gotB.CurrentStock != 1 {
			t.Errorf("expected stock unchanged (10, 1), got (%d, %d)", gotA.CurrentStock, gotB.CurrentStock)
		}
		if _, err := a.GetTransaction(ctx, out.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("rejected transaction was persisted: %v", err)
		}

		stored, err := a.GetTransaction(ctx, in.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(stored.Items) != 2 || stored.TotalItems != 11 {
			t.Errorf("unexpected stored transaction: %+v", stored)
		}
		for _, item := range stored.Items {
			if item.ProductSKU == "" || item.ProductName == "" {
				t.Errorf("detail missing product projection: %+v", item)
			}
		}

		net, err := a.NetMovements(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if net[pa.ID] != 10 || net[pb.ID] != 1 {
			t.Errorf("unexpected net movements: %d, %d", net[pa.ID], net[pb.ID])
		}
	})
}

func TestSQLAdapter_ConcurrentOut(t *testing.T) {
	forEachSQLStore(t, func(t *testing.T, a *SQLAdapter) {
		ctx := context.Background()
		p := uniqueProduct()
		a.CreateProduct(ctx, p)

		seed := newTestTransaction(uuid.NewString(), domain.TransactionTypeIn, map[string]int{p.ID: 10})
		a.ApplyTransaction(ctx, seed, seed.StockChanges())

		var success atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 30; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				txn := newTestTransaction(uuid.NewString(), domain.TransactionTypeOut, map[string]int{p.ID: 1})
				if err := a.ApplyTransaction(ctx, txn, txn.StockChanges()); err == nil {
					success.Add(1)
				}
			}()
		}
		wg.Wait()

		if success.Load() != 10 {
			t.Errorf("expected 10 successful OUTs, got %d", success.Load())
		}
		got, _ := a.GetProduct(ctx, p.ID)
		if got.CurrentStock != 0 {
			t.Errorf("expected stock 0, got %d", got.CurrentStock)
		}
	})
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"mysql 8 sku", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'A' for key 'products.uq_products_sku'"}, true},
		{"mysql 5.7 sku", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'A' for key 'uq_products_sku'"}, true},
		{"mysql primary key", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'products.PRIMARY'"}, false},
		{"mysql other error", &mysql.MySQLError{Number: 1452, Message: "foreign key uq_products_sku'"}, false},
		{"postgres sku", &pq.Error{Code: "23505", Constraint: "uq_products_sku"}, true},
		{"postgres primary key", &pq.Error{Code: "23505", Constraint: "products_pkey"}, false},
		{"wrapped", fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "uq_products_sku"}), true},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err, constraintProductSKU); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
