// Package cli implements the cobra-based CLI commands for webp-converter.
//
// Each subcommand (serve, convert, dockerfile, image) is defined in its own
// file within this package. This file defines the root command that serves
// as the parent for all subcommands and handles global flags.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/addiskers/webp/internal/model"
)

// Global flag variables shared across all subcommands.
var (
	// jsonOutput switches command output and error reports to JSON.
	jsonOutput bool

	// verbose enables debug-level trace output on stderr.
	verbose bool

	// configPath points at an optional YAML or JSONC config file.
	configPath string
)

// Build information, set from main via ldflags.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates the root cobra command with every subcommand
// registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "webp-converter",
		Short: "Convert JPEG images to WebP from a web form or the command line",
		Long: `webp-converter turns uploaded JPEG images into WebP files and returns
them as a ZIP archive.

Run "webp-converter serve" for the web form, "webp-converter convert" for
local files, and "webp-converter dockerfile" / "webp-converter image" to
package the server as a container image.`,

		// Errors are reported by Execute in text or JSON form.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Config file (.yaml, .yml, .json or .jsonc)")

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewConvertCommand())
	rootCmd.AddCommand(NewDockerfileCommand())
	rootCmd.AddCommand(NewImageCommand())

	return rootCmd
}

// Execute runs the root command and exits with the code carried by a
// model.CLIError, or ExitGeneralError for any other failure.
func Execute(rootCmd *cobra.Command) {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		printError(os.Stderr, cliErr.Message, cliErr.Err)
		os.Exit(int(cliErr.Code))
	}

	printError(os.Stderr, err.Error(), nil)
	os.Exit(int(model.ExitGeneralError))
}

// printError writes an error report to w in the format selected by --json.
// stdout stays reserved for successful command output.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"message": message,
		}
		if underlying != nil {
			errObj["detail"] = underlying.Error()
		}
		data, _ := json.MarshalIndent(map[string]interface{}{"error": errObj}, "", "  ")
		_, _ = fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		_, _ = fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		_, _ = fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
