// Package main provides the entry point for the Lodestar CLI.
package main

import (
	"fmt"
	"os"

	"github.com/lodestar-ai/lodestar/cmd/lodestar/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
