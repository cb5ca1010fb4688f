package models

import (
	"errors"
	"fmt"
)

// ErrorKind buckets pipeline failures. The kind decides the propagation
// policy: only Critical tears the pipeline down.
type ErrorKind int

// Error kinds.
const (
	KindConfiguration ErrorKind = iota
	KindWatcher
	KindSource
	KindFilter
	KindProcess
	KindCritical
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindWatcher:
		return "watcher"
	case KindSource:
		return "source"
	case KindFilter:
		return "filter"
	case KindProcess:
		return "process"
	case KindCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Diagnostic is implemented by enriched errors that carry structured context
// and remediation hints. The orchestrator and output layers consume this
// interface rather than concrete error types.
type Diagnostic interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}

// Error is the pipeline's error value: a kind, a stable code, the wrapped
// cause, and optional context and remediation hint.
type Error struct {
	Kind ErrorKind
	Code string
	Err  error

	context map[string]string
	hint    string
}

// NewError builds a pipeline error.
func NewError(kind ErrorKind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

// WithContext attaches a context key/value; returns the error for chaining.
func (e *Error) WithContext(key, value string) *Error {
	if e.context == nil {
		e.context = make(map[string]string)
	}
	e.context[key] = value
	return e
}

// WithHint attaches a remediation hint.
func (e *Error) WithHint(hint string) *Error {
	e.hint = hint
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode implements Diagnostic.
func (e *Error) ErrorCode() string { return e.Code }

// Context implements Diagnostic.
func (e *Error) Context() map[string]string { return e.context }

// SuggestedAction implements Diagnostic.
func (e *Error) SuggestedAction() string { return e.hint }

// IsCritical reports whether err carries the Critical kind anywhere in its
// chain.
func IsCritical(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindCritical
}

// KindOf extracts the error kind, defaulting to Critical for foreign errors
// so that unclassified failures are never silently swallowed.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindCritical
}

// WatchLimitError wraps the inotify watch-limit exhaustion error with its
// remediation hint. Detection lives in the filesystem source; the dedicated
// constructor keeps the hint text in one place.
func WatchLimitError(err error) *Error {
	return NewError(KindWatcher, "fs-watch-limit", err).
		WithHint("raise the inotify limit: sysctl fs.inotify.max_user_watches=524288")
}
