package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rl1809/stock-ledger/internal/client"
)

var ErrLedgerMismatch = errors.New("stored stock disagrees with the ledger")

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare stored stock with the net of all ledger movements",
	Long:  "Exits non-zero when any product's stored stock differs from the sum of its transaction details.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return Reconcile(cmd.Context(), newClient(), cmd.OutOrStdout())
	},
}

func Reconcile(ctx context.Context, c *client.Client, out io.Writer) error {
	resp, err := c.Reconcile(ctx)
	if err != nil {
		return err
	}
	if resp.Consistent {
		fmt.Fprintln(out, "Ledger consistent")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tSKU\tSTORED\tLEDGER")
	for _, d := range resp.Discrepancies {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", d.ProductID, d.ProductSKU, d.CurrentStock, d.LedgerStock)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return fmt.Errorf("%w: %d products", ErrLedgerMismatch, len(resp.Discrepancies))
}
