// Package model defines the shared value types for the webp-converter
// binary.
//
// This package contains pure data structures with no external dependencies.
// Conversion outcomes, flash messages and image build metadata are passed
// between the convert, server, docker and cli packages using these types.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
