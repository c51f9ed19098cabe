// Package cli provides the shared pieces of the v8cffi command-line tool.
//
// This package includes:
//   - Configuration profiles stored as YAML (~/.v8cffi/config.yaml)
//   - Output formatting (JSON, YAML, raw) and jq filtering of results
//   - Batch files describing scripts to run (YAML/JSON)
//   - Terminal styles for script diagnostics
//
// Example usage:
//
//	cfg, err := cli.LoadConfig("")
//	profile, err := cfg.ResolveProfile("")
//
//	cli.Output(result, cli.OutputOptions{Format: cli.FormatJSON})
package cli
