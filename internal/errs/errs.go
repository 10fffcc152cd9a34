// Package errs implements the daemon's error taxonomy: a small set of
// sentinel "kind" errors that every operation-level error wraps, so
// callers can classify failures with errors.Is rather than string
// matching, plus sanitisation of error messages before they cross the
// IPC boundary to an external peer.
package errs

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Sentinel kinds. Every classifiedError wraps exactly one of these.
var (
	KindNotFound          = errors.New("not_found")
	KindDisabled          = errors.New("disabled")
	KindExecutionFailed   = errors.New("execution_failed")
	KindCompilationFailed = errors.New("compilation_failed")
	KindTimeout           = errors.New("timeout")
	KindCancelled         = errors.New("cancelled")
	KindInvalidArgument   = errors.New("invalid_argument")
	KindInternal          = errors.New("internal")
)

// classifiedError pairs a sentinel kind with a formatted message and an
// optional set of name suggestions (for NotFound).
type classifiedError struct {
	kind        error
	msg         string
	suggestions []string
}

func (e *classifiedError) Error() string { return e.msg }
func (e *classifiedError) Unwrap() error { return e.kind }

// Suggestions returns any "did you mean" candidates attached to a
// NotFound error, or nil.
func (e *classifiedError) Suggestions() []string { return e.suggestions }

func newf(kind error, format string, args ...any) error {
	return &classifiedError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFound error carrying suggestion candidates
// (typically produced by the registry's typo-suggestion search).
func NotFound(name string, suggestions []string) error {
	e := &classifiedError{kind: KindNotFound, msg: fmt.Sprintf("handler not found: %q", name), suggestions: suggestions}
	return e
}

func Disabled(name string) error {
	return newf(KindDisabled, "handler disabled: %q", name)
}

func ExecutionFailed(format string, args ...any) error {
	return newf(KindExecutionFailed, format, args...)
}

func CompilationFailed(format string, args ...any) error {
	return newf(KindCompilationFailed, format, args...)
}

func Timeout(format string, args ...any) error {
	return newf(KindTimeout, format, args...)
}

func Cancelled(format string, args ...any) error {
	return newf(KindCancelled, format, args...)
}

func InvalidArgument(format string, args ...any) error {
	return newf(KindInvalidArgument, format, args...)
}

func Internal(format string, args ...any) error {
	return newf(KindInternal, format, args...)
}

func IsNotFound(err error) bool          { return errors.Is(err, KindNotFound) }
func IsDisabled(err error) bool          { return errors.Is(err, KindDisabled) }
func IsExecutionFailed(err error) bool   { return errors.Is(err, KindExecutionFailed) }
func IsCompilationFailed(err error) bool { return errors.Is(err, KindCompilationFailed) }
func IsTimeout(err error) bool           { return errors.Is(err, KindTimeout) }
func IsCancelled(err error) bool         { return errors.Is(err, KindCancelled) }
func IsInvalidArgument(err error) bool   { return errors.Is(err, KindInvalidArgument) }
func IsInternal(err error) bool          { return errors.Is(err, KindInternal) }

// SuggestionsOf returns the suggestion list carried by a NotFound error,
// or nil if err is not a NotFound error or carries none.
func SuggestionsOf(err error) []string {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.suggestions
	}
	return nil
}

// Mode selects how error details are sanitised before being returned to
// an IPC peer. Production mode redacts paths/secrets and truncates
// messages; development mode returns the error verbatim.
type Mode int

const (
	ModeProduction Mode = iota
	ModeDevelopment
)

// ModeFromEnv reads DX_ENV (falling back to RUST_ENV for compatibility
// with tooling that still sets the original environment variable name)
// and returns ModeDevelopment only when it equals "development", ignoring
// case.
func ModeFromEnv() Mode {
	v := os.Getenv("DX_ENV")
	if v == "" {
		v = os.Getenv("RUST_ENV")
	}
	if strings.EqualFold(v, "development") {
		return ModeDevelopment
	}
	return ModeProduction
}

const maxSanitizedMessageLen = 200

var (
	unixPathPattern    = regexp.MustCompile(`/[a-zA-Z0-9_\-/]+\.[a-zA-Z]+`)
	windowsPathPattern = regexp.MustCompile(`[A-Za-z]:\\[a-zA-Z0-9_\-\\/]+\.[a-zA-Z]+`)
)

// Sanitize redacts filesystem paths, collapses secret- and
// database-connection-shaped messages to a fixed generic string, and
// truncates the result, unless mode is ModeDevelopment.
func Sanitize(mode Mode, msg string) string {
	if mode == ModeDevelopment {
		return msg
	}

	lower := strings.ToLower(msg)

	if strings.Contains(lower, "stack trace") || strings.Contains(lower, "backtrace") {
		return "An internal error occurred."
	}

	if strings.Contains(lower, "connection") &&
		(strings.Contains(lower, "database") || strings.Contains(lower, "postgres") || strings.Contains(lower, "mysql")) {
		return "A database error occurred."
	}

	if strings.Contains(lower, "password") || strings.Contains(lower, "secret") ||
		strings.Contains(lower, "token") || strings.Contains(lower, "api_key") {
		return "An authentication error occurred."
	}

	msg = unixPathPattern.ReplaceAllString(msg, "[path]")
	msg = windowsPathPattern.ReplaceAllString(msg, "[path]")

	if len(msg) > maxSanitizedMessageLen {
		msg = msg[:197] + "..."
	}
	return msg
}

// NewRequestID returns a unique identifier for correlating a single
// command invocation across logs.
func NewRequestID() string {
	return uuid.NewString()
}
