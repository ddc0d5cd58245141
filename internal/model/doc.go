// Package model defines the domain types and value objects for the
// nz-ocean-map CLI.
//
// This package contains pure data structures with no external dependencies.
// All entities (MapRequest, TileCoordinate, etc.) live for a single
// invocation only; nothing is persisted between scheduled runs apart from
// the PNG written by the output package.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
