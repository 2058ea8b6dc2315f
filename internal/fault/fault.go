// Package fault defines the runtime error taxonomy. Every failure the core
// surfaces carries a Kind so callers can decide whether to retry,
// reconfigure, or abort.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// KindNotFound: requested model/modality absent. Load a model first.
	KindNotFound Kind = "not_found"
	// KindLoadFailure: adapter or native runtime failed to construct an instance.
	KindLoadFailure Kind = "load_failure"
	// KindInferenceFailure: an operation closure failed during execution.
	KindInferenceFailure Kind = "inference_failure"
	// KindUnsupported: format/operation not implemented by any registered adapter.
	KindUnsupported Kind = "unsupported"
	// KindInvalidInput: caller supplied malformed input (bad tensor shape, empty prompt).
	KindInvalidInput Kind = "invalid_input"
	// KindResourceExhaustion: required memory exceeds available/cache capacity.
	KindResourceExhaustion Kind = "resource_exhaustion"
	// KindTimeout: an operation exceeded its allotted time.
	KindTimeout Kind = "timeout"
	// KindTransport: network failure while resolving a remote model.
	KindTransport Kind = "transport"
)

// Recoverable reports whether a plain retry can plausibly succeed for this
// kind. Not-found and invalid-input are recoverable too, but only by the
// caller changing something first, so they are excluded here.
func (k Kind) Recoverable() bool {
	switch k {
	case KindLoadFailure, KindInferenceFailure, KindTimeout, KindTransport:
		return true
	default:
		return false
	}
}

// Error is a classified runtime failure with structured context.
type Error struct {
	Kind    Kind
	Msg     string
	ModelID string
	Op      string
	// Required/Available carry byte counts for resource-exhaustion failures.
	Required  int64
	Available int64
	Err       error
}

func (e *Error) Error() string {
	s := string(e.Kind) + ": " + e.Msg
	if e.ModelID != "" {
		s += " (model " + e.ModelID + ")"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a classified error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. Returns nil when err is nil. If err
// is already classified, its kind is preserved.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		kind = fe.Kind
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// WithModel attaches a model id.
func (e *Error) WithModel(id string) *Error { e.ModelID = id; return e }

// WithOp attaches the operation name.
func (e *Error) WithOp(op string) *Error { e.Op = op; return e }

// WithBudget attaches required/available byte counts.
func (e *Error) WithBudget(required, available int64) *Error {
	e.Required = required
	e.Available = available
	return e
}

// KindOf extracts the kind from err, or "" when err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err is classified with the given kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return Is(err, KindNotFound) }

// IsUnsupported reports whether err is an unsupported-format/operation failure.
func IsUnsupported(err error) bool { return Is(err, KindUnsupported) }

// IsResourceExhaustion reports whether err is a capacity failure.
func IsResourceExhaustion(err error) bool { return Is(err, KindResourceExhaustion) }

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool { return Is(err, KindTimeout) }

// IsTransport reports whether err is a network failure.
func IsTransport(err error) bool { return Is(err, KindTransport) }

// Retryable reports whether err's kind is marked recoverable. Unclassified
// errors are not retried.
func Retryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind.Recoverable()
	}
	return false
}
