// Package main provides the entry point for the chunkstore CLI.
package main

import (
	"os"

	"github.com/openrag/chunkstore/cmd/chunkstore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
