package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/assetpack/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Build failure (transform, bundle, IO or watch error)
	ExitCommandError = 2 // Command error (invalid configuration, bad flags)
)

// Error codes reported in CLI output, one per build error kind.
const (
	ErrCodeGeneric   = "E001"
	ErrCodeConfig    = "E010"
	ErrCodeTransform = "E020"
	ErrCodeBundle    = "E030"
	ErrCodeIO        = "E040"
	ErrCodeWatch     = "E050"
	ErrCodeJournal   = "E060"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E010", "E020", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// ErrorDetails describes a build error in JSON output.
type ErrorDetails struct {
	Kind    string `json:"kind"`
	Path    string `json:"path,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if d, ok := details.(*ErrorDetails); ok && d != nil && d.Excerpt != "" {
		fmt.Fprintln(f.Writer, d.Excerpt)
	} else if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// errorCode maps a build error to its CLI error code.
func errorCode(err error) string {
	switch ir.KindOf(err) {
	case ir.ErrConfig:
		return ErrCodeConfig
	case ir.ErrTransform:
		return ErrCodeTransform
	case ir.ErrBundle:
		return ErrCodeBundle
	case ir.ErrIO:
		return ErrCodeIO
	case ir.ErrWatch:
		return ErrCodeWatch
	}
	return ErrCodeGeneric
}

// exitCode maps a build error to the process exit code: configuration
// problems are command errors, everything else is a build failure.
func exitCode(err error) int {
	if ir.IsConfigError(err) {
		return ExitCommandError
	}
	return ExitFailure
}

// fail reports err through formatter and returns the matching ExitError.
func fail(formatter *OutputFormatter, err error) error {
	code := errorCode(err)
	var details *ErrorDetails
	var be *ir.BuildError
	if errors.As(err, &be) {
		details = &ErrorDetails{Kind: string(be.Kind), Path: be.Path, Excerpt: be.Excerpt}
	}
	if details != nil {
		_ = formatter.Error(code, err.Error(), details)
	} else {
		_ = formatter.Error(code, err.Error(), nil)
	}
	return WrapExitError(exitCode(err), code, err)
}
