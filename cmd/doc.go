// Package cmd implements the command-line interface of the dDoc document store.
// All commands open the store in-process; there is no server to connect to.
//
// The package is organized into several subpackages:
//
//   - docs: Commands for document operations (put, get, list, rm, clear, count)
//   - admin: Commands to inspect a collection and print its metrics
//   - perf: Performance tests against a collection
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as environment variable DDOC_<FLAG> (e.g.
// DDOC_ROOT=/var/lib/ddoc), optionally from a .env or .env.local file.
//
// See ddoc -help for a list of all commands.
package cmd
