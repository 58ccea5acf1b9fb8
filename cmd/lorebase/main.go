// Package main provides the entry point for the lorebase CLI.
package main

import (
	"os"

	"github.com/tessellate-ai/lorebase/cmd/lorebase/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
