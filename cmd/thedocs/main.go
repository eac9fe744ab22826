// Package main provides the entry point for the thedocs CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/thedocs/cmd/thedocs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
