// Package main provides the entry point for the indexsync CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/indexsync/cmd/indexsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
