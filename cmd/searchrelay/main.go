// Package main provides the entry point for the searchrelay CLI.
package main

import (
	"os"

	"github.com/searchrelay/searchrelay/cmd/searchrelay/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
