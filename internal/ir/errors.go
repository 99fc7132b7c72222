package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind categorizes build errors.
type ErrorKind string

const (
	// ErrConfig covers missing entries, malformed globs and invalid vendor
	// lists. Fatal at startup.
	ErrConfig ErrorKind = "CONFIG"

	// ErrTransform means a module failed transformation. Fatal in one-shot
	// builds, reported in watch mode.
	ErrTransform ErrorKind = "TRANSFORM"

	// ErrBundle means the graph references a module that cannot be resolved.
	ErrBundle ErrorKind = "BUNDLE"

	// ErrIO covers directory creation and artifact write failures.
	ErrIO ErrorKind = "IO"

	// ErrWatch means the watcher subscription failed.
	ErrWatch ErrorKind = "WATCH"
)

// BuildError is the error value returned by every pipeline stage.
type BuildError struct {
	Kind ErrorKind

	// Message is a human-readable description.
	Message string

	// Path is the file the error refers to, if any.
	Path string

	// Excerpt is an optional source excerpt (code frame).
	Excerpt string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *BuildError) Unwrap() error { return e.Err }

// NewConfigError creates a ConfigError.
func NewConfigError(format string, args ...any) *BuildError {
	return &BuildError{Kind: ErrConfig, Message: fmt.Sprintf(format, args...)}
}

// NewTransformError creates a TransformError for path.
func NewTransformError(path, message, excerpt string, cause error) *BuildError {
	return &BuildError{Kind: ErrTransform, Message: message, Path: path, Excerpt: excerpt, Err: cause}
}

// NewBundleError creates a BundleError for an unresolved request made by from.
func NewBundleError(from, request string, cause error) *BuildError {
	return &BuildError{
		Kind:    ErrBundle,
		Message: fmt.Sprintf("cannot resolve %q", request),
		Path:    from,
		Err:     cause,
	}
}

// NewIOError creates an IOError.
func NewIOError(op, path string, cause error) *BuildError {
	return &BuildError{Kind: ErrIO, Message: op, Path: path, Err: cause}
}

// NewWatchError creates a WatchError.
func NewWatchError(message string, cause error) *BuildError {
	return &BuildError{Kind: ErrWatch, Message: message, Err: cause}
}

// KindOf returns the kind of the first BuildError in err's tree, or "".
func KindOf(err error) ErrorKind {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

func hasKind(err error, kind ErrorKind) bool {
	if err == nil {
		return false
	}
	var be *BuildError
	if errors.As(err, &be) && be.Kind == kind {
		return true
	}
	// errors.As stops at the first match; joined errors may carry several.
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if hasKind(e, kind) {
				return true
			}
		}
	}
	return false
}

// IsConfigError reports whether err contains a ConfigError.
func IsConfigError(err error) bool { return hasKind(err, ErrConfig) }

// IsTransformError reports whether err contains a TransformError.
func IsTransformError(err error) bool { return hasKind(err, ErrTransform) }

// IsBundleError reports whether err contains a BundleError.
func IsBundleError(err error) bool { return hasKind(err, ErrBundle) }

// IsIOError reports whether err contains an IOError.
func IsIOError(err error) bool { return hasKind(err, ErrIO) }

// IsWatchError reports whether err contains a WatchError.
func IsWatchError(err error) bool { return hasKind(err, ErrWatch) }

// ErrSuperseded is returned by a build that noticed a newer generation was
// issued before it reached a write phase.
var ErrSuperseded = errors.New("build superseded by a newer generation")
