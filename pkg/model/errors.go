package model

import "fmt"

// ErrorKind classifies a build manager error per the taxonomy in
// spec.md §7. It lets callers branch on category without string-matching
// error messages, while fmt.Errorf("...: %w", ...) wrapping (the
// teacher's own convention throughout pkg/kv and pkg/network) still
// carries the underlying cause.
type ErrorKind int

const (
	// KindUnknown is never constructed deliberately; its presence on an
	// error would itself be a bug.
	KindUnknown ErrorKind = iota
	// KindInvalidProjectFile is a user project error: XML or semantic
	// error in the project.
	KindInvalidProjectFile
	// KindTargetFailure is an ordinary failure during target execution.
	KindTargetFailure
	// KindCancellation is a terminal failure produced by cancellation.
	KindCancellation
	// KindInternalError is a programmer-error invariant violation. Fatal
	// for the owning session; never silently recovered.
	KindInternalError
	// KindNodeShutdown is a transport/node error: a node died or its pipe
	// broke and the work could not be restarted on a new node.
	KindNodeShutdown
	// KindInvalidOperation covers BuildManager state-machine misuse
	// (e.g. BuildRequest called while Idle).
	KindInvalidOperation
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidProjectFile:
		return "InvalidProjectFile"
	case KindTargetFailure:
		return "TargetFailure"
	case KindCancellation:
		return "Cancellation"
	case KindInternalError:
		return "InternalError"
	case KindNodeShutdown:
		return "NodeShutdown"
	case KindInvalidOperation:
		return "InvalidOperation"
	default:
		return "Unknown"
	}
}

// BuildError is the concrete error type carrying a Kind alongside the
// wrapped cause and any file/line/column diagnostic location spec.md §7
// requires for InvalidProjectFile.
type BuildError struct {
	Cause error
	Kind  ErrorKind
	File  string
	Code  string
	Line  int
	Col   int
}

func (e *BuildError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s(%d,%d): %s: %v", e.Kind, e.File, e.Line, e.Col, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *BuildError) Unwrap() error { return e.Cause }

// NewInternalError wraps err as a fatal InternalError, per spec.md §7's
// "never silently recovered" rule — callers must propagate it up to
// session teardown rather than swallow it.
func NewInternalError(format string, args ...interface{}) *BuildError {
	return &BuildError{Kind: KindInternalError, Cause: fmt.Errorf(format, args...)}
}

// NewInvalidOperation reports a BuildManager state-machine misuse.
func NewInvalidOperation(format string, args ...interface{}) *BuildError {
	return &BuildError{Kind: KindInvalidOperation, Cause: fmt.Errorf(format, args...)}
}

// NewNodeShutdown reports a transport/node failure that could not be
// retried on a replacement node.
func NewNodeShutdown(err error) *BuildError {
	return &BuildError{Kind: KindNodeShutdown, Cause: err}
}

// NewInvalidProjectFile reports a user project error with diagnostic
// location, per spec.md §7.
func NewInvalidProjectFile(file string, line, col int, code string, err error) *BuildError {
	return &BuildError{Kind: KindInvalidProjectFile, File: file, Line: line, Col: col, Code: code, Cause: err}
}

// KindOf extracts the ErrorKind from err if it is (or wraps) a
// *BuildError, otherwise reports KindUnknown.
func KindOf(err error) ErrorKind {
	var be *BuildError
	if asBuildError(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

func asBuildError(err error, target **BuildError) bool {
	for err != nil {
		if be, ok := err.(*BuildError); ok {
			*target = be
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
