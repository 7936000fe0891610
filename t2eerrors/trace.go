package t2eerrors

import "github.com/gravitational/trace"

// Thin indirections over the gravitational/trace constructors so the
// taxonomy constructors above read as plain Go and the trace call sites
// live in one place, matching go.ref's habit of a single small file per
// error-registration concern (verror.Register calls were similarly
// grouped, see runtime/internal/naming/namespace/namespace.go).

func traceBadParameter(format string, args ...interface{}) error {
	return trace.BadParameter(format, args...)
}

func traceAccessDenied(format string, args ...interface{}) error {
	return trace.AccessDenied(format, args...)
}

func traceNotFound(format string, args ...interface{}) error {
	return trace.NotFound(format, args...)
}

func traceCompareFailed(format string, args ...interface{}) error {
	return trace.CompareFailed(format, args...)
}

func traceLimitExceeded(format string, args ...interface{}) error {
	return trace.LimitExceeded(format, args...)
}

func traceConnectionProblem(cause error, format string, args ...interface{}) error {
	return trace.ConnectionProblem(cause, format, args...)
}

func traceErrorf(format string, args ...interface{}) error {
	return trace.Errorf(format, args...)
}

func traceWrap(cause error, format string, args ...interface{}) error {
	return trace.Wrap(cause, format, args...)
}
