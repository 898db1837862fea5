package model

import (
	"fmt"
	"strings"
	"time"
)

// FlashCategory classifies a message shown to the user on the next page
// render. Only the categories the upload form knows how to style are valid.
type FlashCategory string

const (
	// FlashError is used when nothing could be converted.
	FlashError FlashCategory = "error"

	// FlashWarning is used when some uploads converted and some were skipped.
	FlashWarning FlashCategory = "warning"
)

// String returns the string representation of FlashCategory.
func (c FlashCategory) String() string {
	return string(c)
}

// IsValid checks whether the FlashCategory value is one of the
// predefined categories.
func (c FlashCategory) IsValid() bool {
	switch c {
	case FlashError, FlashWarning:
		return true
	default:
		return false
	}
}

// ParseFlashCategory converts a string to a FlashCategory.
// Returns an error if the string does not match any valid category.
func ParseFlashCategory(s string) (FlashCategory, error) {
	category := FlashCategory(strings.ToLower(s))
	if !category.IsValid() {
		return "", fmt.Errorf("invalid flash category: %q (valid: error, warning)", s)
	}
	return category, nil
}

// Flash is a one-shot message stored in the session between a redirect
// and the next render of the upload form.
type Flash struct {
	Category FlashCategory `json:"category"`
	Message  string        `json:"message"`
}

// Lines splits a multi-line flash message into its individual lines.
// Failure lists are flashed as one message joined by newlines, and the
// template renders each line separately.
func (f Flash) Lines() []string {
	return strings.Split(f.Message, "\n")
}

// ConversionSummary is the outcome of one batch conversion, without the
// archive bytes. It is what the CLI prints and what the server logs.
type ConversionSummary struct {
	// Successes lists the .webp entry names written to the archive,
	// in upload order.
	Successes []string `json:"successes"`

	// Failures lists one "<name>: <reason>" message per skipped upload,
	// in upload order.
	Failures []string `json:"failures"`

	// ArchiveName is the download name of the ZIP archive.
	ArchiveName string `json:"archiveName,omitempty"`
}

// PartialMessage returns the warning shown when a batch converted some
// uploads but skipped others.
//
//	ConversionSummary{Successes: 2 items, Failures: 1 item}.PartialMessage()
//	→ "Converted 2 file(s). Skipped 1 issue(s)."
func (s ConversionSummary) PartialMessage() string {
	return fmt.Sprintf("Converted %d file(s). Skipped %d issue(s).", len(s.Successes), len(s.Failures))
}

// ImageInfo describes a container image built by this tool, reconstructed
// from the image labels returned by the Docker API.
type ImageInfo struct {
	// ImageID is the content-addressable image identifier.
	ImageID string `json:"imageId"`

	// Tags lists the repository:tag references pointing at the image.
	Tags []string `json:"tags,omitempty"`

	// Version is the webp-converter version baked into the image.
	Version string `json:"version"`

	// Port is the listening port declared by the image.
	Port int `json:"port"`

	// Entrypoint is the launch command declared by the image.
	Entrypoint string `json:"entrypoint"`

	// CreatedAt is the build timestamp recorded in the image labels.
	CreatedAt time.Time `json:"createdAt"`

	// Size is the image size in bytes as reported by the daemon.
	Size int64 `json:"size"`
}

// ExitCode defines standard CLI exit codes. These codes allow scripts and
// CI systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitInvalidConfig indicates the configuration file, environment or
	// flags produced an invalid configuration.
	ExitInvalidConfig ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitPortUnavailable indicates the listening port is taken and no
	// fallback was allowed or found.
	ExitPortUnavailable ExitCode = 4

	// ExitConversionFailed indicates none of the given files could be
	// converted.
	ExitConversionFailed ExitCode = 5

	// ExitDescriptorInvalid indicates a build descriptor failed its checks.
	ExitDescriptorInvalid ExitCode = 6

	// ExitBuildFailed indicates the Docker image build failed.
	ExitBuildFailed ExitCode = 7
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
