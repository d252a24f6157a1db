// Package main is the entry point for the offcast application.
package main

import (
	"os"

	"github.com/offcast/offcast/cmd/offcast/cmd"
	"github.com/offcast/offcast/internal/backend"
)

func main() {
	if err := cmd.Execute(); err != nil {
		// Each failure category maps to its own exit code so wrapping
		// scripts can tell a lost run from a failed one.
		os.Exit(backend.ExitCodeFor(err))
	}
}
