// Package cortexerr defines the typed error taxonomy shared by every
// component of the memory bank engine. Components convert lower-level I/O
// or parsing errors into one of these kinds at their boundary; callers
// switch on Kind rather than on error strings.
package cortexerr

import "fmt"

// Kind is a closed set of error categories surfaced to callers and, in the
// façade layer, mapped to wire-format error shapes.
type Kind string

const (
	Invalid          Kind = "Invalid"
	PathEscape       Kind = "PathEscape"
	Conflict         Kind = "Conflict"
	LockTimeout      Kind = "LockTimeout"
	RateLimited      Kind = "RateLimited"
	NotFound         Kind = "NotFound"
	Stale            Kind = "Stale"
	InvalidState     Kind = "InvalidState"
	IndexCorrupted   Kind = "IndexCorrupted"
	ValidationFailed Kind = "ValidationFailed"
	Internal         Kind = "Internal"
)

// Error is the typed error every component boundary returns.
type Error struct {
	Kind    Kind
	Message string
	Hint    string
	Cause   error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Kind, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping a lower-level cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithHint attaches a next-step hint and returns the same error for chaining.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// KindOf extracts the Kind from err, or Internal if err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind
	}
	return Internal
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// IsRetryable reports whether a write-like caller should retry err with
// exponential backoff (spec §7 "Propagation" — LockTimeout and RateLimited
// are transient; everything else surfaces immediately).
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case LockTimeout, RateLimited:
		return true
	default:
		return false
	}
}

// NewConflict builds a Conflict error with a standard hint.
func NewConflict(message string) *Error {
	return New(Conflict, message).WithHint("read the file again to refresh expected_hash")
}

// NewNotFound builds a NotFound error for a named file.
func NewNotFound(file string) *Error {
	return New(NotFound, fmt.Sprintf("file %q does not exist in the bank", file))
}
