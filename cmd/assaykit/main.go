package main

import (
	"os"

	"github.com/assaykit/assaykit/internal/cli/commands"
)

func main() {
	// Execute renders its own errors.
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
