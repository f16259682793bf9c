package main

import (
	"os"

	"github.com/wonny/evquant/cmd/quant/commands"
)

// main is the entry point for the evquant CLI
// ⭐ Unified CLI entry point: go run ./cmd/quant [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
