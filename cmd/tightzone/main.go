package main

import (
	"os"

	"github.com/kitkwok/tightzone/cmd/tightzone/commands"
)

// main is the entry point for the TightZone CLI
// ⭐ single entry point: go run ./cmd/tightzone [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
