package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rl1809/stock-ledger/internal/client"
)

var (
	serverURL string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "ledgerctl",
	Short:         "Operator tool for the stock ledger",
	Long:          "ledgerctl seeds demo data, prints current inventory and checks the ledger against stored stock.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	defaultURL := os.Getenv("LEDGER_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultURL, "ledger API base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")

	rootCmd.AddCommand(seedCmd, inventoryCmd, reconcileCmd)
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func newClient() *client.Client {
	return client.New(serverURL, timeout)
}
