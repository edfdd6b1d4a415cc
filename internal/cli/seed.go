package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rl1809/stock-ledger/internal/adapter/handler"
	"github.com/rl1809/stock-ledger/internal/client"
	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type seedItem struct {
	sku       string
	quantity  int
	unitPrice string
}

type seedTransaction struct {
	txnType   string
	reference string
	notes     string
	items     []seedItem
}

var seedProducts = []handler.CreateProductRequest{
	{Name: "Laptop Pro 15-inch", SKU: "LAP-PRO-15-A", Description: "High-performance laptop for professionals", MinStock: 10, MaxStock: 100},
	{Name: "Wireless Mouse", SKU: "ACC-MOUSE-WL", Description: "Ergonomic wireless mouse with long battery life", MinStock: 20, MaxStock: 200},
	{Name: "Mechanical Keyboard", SKU: "ACC-KEY-MECH", Description: "RGB mechanical keyboard with tactile switches", MinStock: 5, MaxStock: 50},
	{Name: "External SSD 1TB", SKU: "STO-SSD-1TB", Description: "Portable 1TB SSD, USB-C", MinStock: 15, MaxStock: 150},
	{Name: "Monitor 27-inch 4K", SKU: "DIS-MON-27-4K", Description: "UHD display for crisp visuals", MinStock: 8, MaxStock: 80},
}

var seedTransactions = []seedTransaction{
	{"IN", "PO2023001", "Initial stock arrival from vendor A", []seedItem{
		{"LAP-PRO-15-A", 50, "1200.00"},
		{"ACC-MOUSE-WL", 100, "25.00"},
		{"ACC-KEY-MECH", 30, "75.00"},
	}},
	{"OUT", "SO2023005", "Sale to corporate client B", []seedItem{
		{"LAP-PRO-15-A", 5, "1300.00"},
		{"ACC-MOUSE-WL", 10, "30.00"},
	}},
	{"IN", "PO2023002", "New SSD stock from vendor C", []seedItem{
		{"STO-SSD-1TB", 75, "80.00"},
	}},
	{"IN", "PO2023003", "Monitors arrived", []seedItem{
		{"DIS-MON-27-4K", 20, "350.00"},
	}},
	{"OUT", "SO2023008", "Sale of Monitor to retail customer", []seedItem{
		{"DIS-MON-27-4K", 2, "400.00"},
	}},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the demo products and transactions",
	Long:  "Creates five demo products and records their opening stock movements. Products whose SKU already exists are reused.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return Seed(cmd.Context(), newClient(), cmd.OutOrStdout())
	},
}

// Seed loads the demo data set through the API.
func Seed(ctx context.Context, c *client.Client, out io.Writer) error {
	existing, err := c.ListProducts(ctx)
	if err != nil {
		return err
	}
	ids := make(map[string]string, len(existing))
	for _, p := range existing {
		ids[p.SKU] = p.ID
	}

	for _, req := range seedProducts {
		if id, ok := ids[req.SKU]; ok {
			fmt.Fprintf(out, "Product %s exists (%s)\n", req.SKU, id)
			continue
		}
		p, err := c.CreateProduct(ctx, req)
		if err != nil {
			return fmt.Errorf("create %s: %w", req.SKU, err)
		}
		ids[p.SKU] = p.ID
		fmt.Fprintf(out, "Created product %s (%s)\n", p.SKU, p.ID)
	}

	for _, st := range seedTransactions {
		req := handler.RecordTransactionRequest{Type: st.txnType, Reference: st.reference, Notes: st.notes}
		for _, item := range st.items {
			req.Items = append(req.Items, handler.TransactionItemRequest{
				ProductID: ids[item.sku],
				Quantity:  item.quantity,
				UnitPrice: decimal.RequireFromString(item.unitPrice),
			})
		}

		// The reference doubles as idempotency key so reseeding never double counts.
		txn, err := c.RecordTransaction(ctx, req, "seed-"+st.reference)
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Kind() == domain.KindDuplicateRequest {
			fmt.Fprintf(out, "Transaction %s already recorded\n", st.reference)
			continue
		}
		if err != nil {
			return fmt.Errorf("record %s: %w", st.reference, err)
		}
		fmt.Fprintf(out, "Recorded %s %s: %d items, value %s\n",
			txn.Type, txn.Reference, txn.TotalItems, txn.TotalValue.StringFixed(2))
	}
	return nil
}
