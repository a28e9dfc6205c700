// Package cmd implements the command-line interface for the ozone embedded
// key-value database. It provides a hierarchical command structure for
// operating on a local database directory.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value operations (put, get, del, has, info, compact)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See ozone -help for a list of all commands.
package cmd
