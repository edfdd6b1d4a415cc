package main

import (
	"os"

	"github.com/rl1809/stock-ledger/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
