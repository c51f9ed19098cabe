// Package main is the entry point for the v8cffi CLI.
//
// Usage:
//
//	v8cffi [flags] <command> [args]
//
// Commands:
//
//	run      - Run script files or inline source
//	eval     - Evaluate one expression through the process-wide scope
//	batch    - Run a batch file concurrently
//	bench    - Measure script throughput
//	store    - Stage sources and blobs in the configured store
//	config   - Profile management
//	serve    - Serve script runs over WebSocket
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/nitely/v8-cffi/cmd/v8cffi/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
