package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rl1809/stock-ledger/internal/client"
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Print current stock and status per product",
	RunE: func(cmd *cobra.Command, args []string) error {
		return PrintInventory(cmd.Context(), newClient(), cmd.OutOrStdout())
	},
}

func PrintInventory(ctx context.Context, c *client.Client, out io.Writer) error {
	items, err := c.Inventory(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SKU\tNAME\tSTOCK\tMIN\tMAX\tSTATUS")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			item.ProductSKU, item.ProductName, item.CurrentStock, item.MinStock, item.MaxStock, item.Status)
	}
	return w.Flush()
}
