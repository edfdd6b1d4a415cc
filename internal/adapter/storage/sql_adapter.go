package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Unique constraint names shared by both schema files.
const (
	constraintProductSKU    = "uq_products_sku"
	constraintDetailProduct = "uq_stock_details_txn_product"
)

var productColumns = []string{
	"id", "sku", "name", "description", "current_stock",
	"min_stock", "max_stock", "retired", "created_at", "updated_at",
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenDB opens and pings a pool for the dialect. MySQL DSNs need parseTime=true.
func OpenDB(ctx context.Context, dialect Dialect, dsn string, pool PoolConfig) (*sql.DB, error) {
	switch dialect {
	case DialectMySQL, DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return db, nil
}

// SQLAdapter stores the ledger in MySQL or PostgreSQL. Stock changes are
// applied inside one database transaction that row-locks the products.
type SQLAdapter struct {
	db      *sql.DB
	dialect Dialect
	sb      squirrel.StatementBuilderType
}

func NewSQLAdapter(db *sql.DB, dialect Dialect) *SQLAdapter {
	var ph squirrel.PlaceholderFormat = squirrel.Question
	if dialect == DialectPostgres {
		ph = squirrel.Dollar
	}
	return &SQLAdapter{
		db:      db,
		dialect: dialect,
		sb:      squirrel.StatementBuilder.PlaceholderFormat(ph),
	}
}

// Migrate creates the ledger tables if they do not exist.
func (a *SQLAdapter) Migrate(ctx context.Context) error {
	script, err := schemaFS.ReadFile("schema/" + string(a.dialect) + ".sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	for _, stmt := range strings.Split(string(script), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (a *SQLAdapter) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := a.sb.Insert("products").
		Columns(productColumns...).
		Values(p.ID, p.SKU, p.Name, p.Description, p.CurrentStock,
			p.MinStock, p.MaxStock, p.Retired, p.CreatedAt, p.UpdatedAt).
		RunWith(a.db).
		ExecContext(ctx)
	if isUniqueViolation(err, constraintProductSKU) {
		return domain.NewDuplicateSKUError(p.SKU)
	}
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (a *SQLAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := a.sb.Select(productColumns...).
		From("products").
		Where(squirrel.Eq{"id": id}).
		RunWith(a.db).
		QueryRowContext(ctx)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("product", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

func (a *SQLAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := a.sb.Select(productColumns...).
		From("products").
		OrderBy("created_at", "id").
		RunWith(a.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (a *SQLAdapter) UpdateProduct(ctx context.Context, p domain.Product) error {
	result, err := a.sb.Update("products").
		SetMap(map[string]interface{}{
			"name":        p.Name,
			"description": p.Description,
			"min_stock":   p.MinStock,
			"max_stock":   p.MaxStock,
			"updated_at":  p.UpdatedAt,
		}).
		Where(squirrel.Eq{"id": p.ID}).
		RunWith(a.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return a.checkUpdated(ctx, result, p.ID)
}

func (a *SQLAdapter) RetireProduct(ctx context.Context, id string, at time.Time) error {
	result, err := a.sb.Update("products").
		Set("retired", true).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		RunWith(a.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("retire product: %w", err)
	}
	return a.checkUpdated(ctx, result, id)
}

// checkUpdated maps a zero-row update to NotFound. MySQL reports zero rows
// for a no-op update, so the row is looked up before giving up.
func (a *SQLAdapter) checkUpdated(ctx context.Context, result sql.Result, id string) error {
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := a.GetProduct(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (a *SQLAdapter) ApplyTransaction(ctx context.Context, txn domain.Transaction, changes []domain.StockChange) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, len(changes))
	for i, c := range changes {
		ids[i] = c.ProductID
	}

	stock, err := a.lockStock(ctx, tx, ids)
	if err != nil {
		return err
	}
	for _, c := range changes {
		current, ok := stock[c.ProductID]
		if !ok {
			return domain.NewNotFoundError("product", c.ProductID)
		}
		if _, err := domain.ApplyDelta(c.ProductID, current, c.Delta); err != nil {
			return err
		}
	}

	for _, c := range changes {
		result, err := a.sb.Update("products").
			Set("current_stock", squirrel.Expr("current_stock + ?", c.Delta)).
			Set("updated_at", txn.Date).
			Where(squirrel.Eq{"id": c.ProductID}).
			Where(squirrel.Expr("current_stock + ? >= 0", c.Delta)).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("update stock: %w", err)
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return domain.NewInsufficientStockError(c.ProductID, stock[c.ProductID], -c.Delta)
		}
	}

	_, err = a.sb.Insert("stock_transactions").
		Columns("id", "txn_type", "txn_date", "reference", "notes").
		Values(txn.ID, string(txn.Type), txn.Date, txn.Reference, txn.Notes).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	details := a.sb.Insert("stock_details").
		Columns("id", "transaction_id", "product_id", "quantity", "unit_price")
	for _, item := range txn.Items {
		details = details.Values(item.ID, txn.ID, item.ProductID, item.Quantity, item.UnitPrice)
	}
	if _, err := details.RunWith(tx).ExecContext(ctx); err != nil {
		if isUniqueViolation(err, constraintDetailProduct) {
			return domain.NewValidationError("items", "a product may appear only once per transaction")
		}
		return fmt.Errorf("insert details: %w", err)
	}

	return tx.Commit()
}

// lockStock row-locks the products in id order, matching the in-process lock order.
func (a *SQLAdapter) lockStock(ctx context.Context, tx *sql.Tx, ids []string) (map[string]int, error) {
	rows, err := a.sb.Select("id", "current_stock").
		From("products").
		Where(squirrel.Eq{"id": ids}).
		OrderBy("id").
		Suffix("FOR UPDATE").
		RunWith(tx).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	stock := make(map[string]int, len(ids))
	for rows.Next() {
		var id string
		var current int
		if err := rows.Scan(&id, &current); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		stock[id] = current
	}
	return stock, rows.Err()
}

func (a *SQLAdapter) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	row := a.sb.Select("id", "txn_type", "txn_date", "reference", "notes").
		From("stock_transactions").
		Where(squirrel.Eq{"id": id}).
		RunWith(a.db).
		QueryRowContext(ctx)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query transaction: %w", err)
	}

	details, err := a.queryDetails(ctx, squirrel.Eq{"d.transaction_id": id})
	if err != nil {
		return nil, err
	}
	txn.Items = details
	txn.ComputeTotals()
	return txn, nil
}

func (a *SQLAdapter) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := a.sb.Select("id", "txn_type", "txn_date", "reference", "notes").
		From("stock_transactions").
		OrderBy("txn_date DESC", "id DESC").
		RunWith(a.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txns := []domain.Transaction{}
	index := map[string]int{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		index[txn.ID] = len(txns)
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	details, err := a.queryDetails(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, d := range details {
		// Details committed after the first query have no parent in this listing.
		if i, ok := index[d.TransactionID]; ok {
			txns[i].Items = append(txns[i].Items, d)
		}
	}
	for i := range txns {
		if txns[i].Items == nil {
			txns[i].Items = []domain.TransactionDetail{}
		}
		txns[i].ComputeTotals()
	}
	return txns, nil
}

func (a *SQLAdapter) ListTransactionDetails(ctx context.Context) ([]domain.TransactionDetail, error) {
	return a.queryDetails(ctx, nil)
}

func (a *SQLAdapter) queryDetails(ctx context.Context, where squirrel.Sqlizer) ([]domain.TransactionDetail, error) {
	q := a.sb.Select(
		"d.id", "d.transaction_id", "t.txn_type", "t.txn_date", "d.product_id",
		"p.name", "p.sku", "d.quantity", "d.unit_price",
	).
		From("stock_details d").
		Join("stock_transactions t ON t.id = d.transaction_id").
		Join("products p ON p.id = d.product_id").
		OrderBy("t.txn_date DESC", "t.id DESC", "d.id")
	if where != nil {
		q = q.Where(where)
	}

	rows, err := q.RunWith(a.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query details: %w", err)
	}
	defer rows.Close()

	details := []domain.TransactionDetail{}
	for rows.Next() {
		var d domain.TransactionDetail
		var txnType string
		if err := rows.Scan(&d.ID, &d.TransactionID, &txnType, &d.Date, &d.ProductID,
			&d.ProductName, &d.ProductSKU, &d.Quantity, &d.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan detail: %w", err)
		}
		d.Type = domain.TransactionType(txnType)
		d.Date = d.Date.UTC()
		details = append(details, d)
	}
	return details, rows.Err()
}

func (a *SQLAdapter) NetMovements(ctx context.Context) (map[string]int, error) {
	rows, err := a.sb.Select(
		"d.product_id",
		"SUM(CASE WHEN t.txn_type = 'IN' THEN d.quantity ELSE -d.quantity END)",
	).
		From("stock_details d").
		Join("stock_transactions t ON t.id = d.transaction_id").
		GroupBy("d.product_id").
		RunWith(a.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	net := make(map[string]int)
	for rows.Next() {
		var id string
		var sum int
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		net[id] = sum
	}
	return net, rows.Err()
}

func (a *SQLAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func scanProduct(row squirrel.RowScanner) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.CurrentStock,
		&p.MinStock, &p.MaxStock, &p.Retired, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func scanTransaction(row squirrel.RowScanner) (*domain.Transaction, error) {
	var txn domain.Transaction
	var txnType string
	if err := row.Scan(&txn.ID, &txnType, &txn.Date, &txn.Reference, &txn.Notes); err != nil {
		return nil, err
	}
	txn.Type = domain.TransactionType(txnType)
	txn.Date = txn.Date.UTC()
	return &txn, nil
}

// isUniqueViolation reports a duplicate key on the named constraint. MySQL
// only names the key in the message: "... for key 'products.uq_products_sku'".
func isUniqueViolation(err error, constraint string) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062 && strings.Contains(myErr.Message, constraint+"'")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && pqErr.Constraint == constraint
	}
	return false
}
