package convert

import (
	"fmt"
	"time"
)

// toolError signals a non-zero exit from the external converter. The
// diagnostic is the tool's stderr tail passed through verbatim; its error
// vocabulary is opaque and changes across versions, so it is never parsed.
type toolError struct {
	exitCode   int
	diagnostic string
}

func (e toolError) Error() string {
	if e.diagnostic == "" {
		return fmt.Sprintf("conversion tool exited with code %d", e.exitCode)
	}
	return fmt.Sprintf("conversion tool exited with code %d: %s", e.exitCode, e.diagnostic)
}

// ErrTool constructs a conversion-tool error carrying the raw diagnostic.
func ErrTool(exitCode int, diagnostic string) error {
	return toolError{exitCode: exitCode, diagnostic: diagnostic}
}

// IsToolError reports whether err is a converter failure (non-zero exit).
func IsToolError(err error) bool {
	_, ok := err.(toolError)
	return ok
}

// Diagnostic returns the raw tool output attached to a tool error, if any.
func Diagnostic(err error) string {
	if te, ok := err.(toolError); ok {
		return te.diagnostic
	}
	return ""
}

// missingArtifactError signals exit code 0 with no artifact on disk. The
// tool's success code is not trusted on its own.
type missingArtifactError struct{ path string }

func (e missingArtifactError) Error() string {
	return "conversion reported success but artifact is missing: " + e.path
}

// ErrMissingArtifact constructs a missing-artifact error for path.
func ErrMissingArtifact(path string) error { return missingArtifactError{path: path} }

// IsMissingArtifact reports whether err indicates a claimed-success run that
// produced no artifact.
func IsMissingArtifact(err error) bool {
	_, ok := err.(missingArtifactError)
	return ok
}

// timeoutError signals the external process exceeded the caller's bound.
type timeoutError struct{ timeout time.Duration }

func (e timeoutError) Error() string {
	return fmt.Sprintf("conversion timed out after %s", e.timeout)
}

// ErrTimeout constructs a conversion-timeout error.
func ErrTimeout(timeout time.Duration) error { return timeoutError{timeout: timeout} }

// IsTimeout reports whether err indicates the conversion exceeded its bound.
func IsTimeout(err error) bool {
	_, ok := err.(timeoutError)
	return ok
}
