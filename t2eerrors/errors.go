// Package t2eerrors defines the error taxonomy surfaced by the trace2e
// core to its P2M/M2M/O2M callers. Every kind wraps a github.com/
// gravitational/trace classified error (so trace.Is* and trace.Wrap keep
// working against it) while also carrying its own taxonomy kind so callers
// can test for the exact spec §7 class with the Is* helpers below.
package t2eerrors

import (
	"errors"
	"fmt"
)

type kind int

const (
	kindUndeclaredResource kind = iota
	kindInvalidResourceFormat
	kindDirectPolicyViolation
	kindDestinationPolicyMissing
	kindPolicyNotUpdated
	kindUnavailableSource
	kindUnavailableDestination
	kindUnavailableBoth
	kindMaxRetries
	kindNotFoundFlow
	kindConsentTimeout
	kindTransportFailure
	kindInternal
	kindSystemTime
)

// taxonomyError pairs a trace2e error kind with the trace-classified error
// it was built from. Error()/Unwrap() delegate to the trace error so
// trace.Wrap and trace.IsBadParameter (etc.) continue to work on values
// returned by this package.
type taxonomyError struct {
	kind kind
	err  error
}

func (e *taxonomyError) Error() string { return e.err.Error() }
func (e *taxonomyError) Unwrap() error { return e.err }

func is(err error, k kind) bool {
	var te *taxonomyError
	if !errors.As(err, &te) {
		return false
	}
	return te.kind == k
}

// UndeclaredResource reports that (pid,fd) has no enrollment entry.
func UndeclaredResource(pid, fd int32) error {
	return &taxonomyError{kindUndeclaredResource, traceBadParameter("undeclared resource for pid=%d fd=%d", pid, fd)}
}

// IsUndeclaredResource reports whether err is an UndeclaredResource.
func IsUndeclaredResource(err error) bool { return is(err, kindUndeclaredResource) }

// InvalidResourceFormat reports a malformed resource or socket string.
func InvalidResourceFormat(format string, args ...interface{}) error {
	return &taxonomyError{kindInvalidResourceFormat, traceBadParameter(format, args...)}
}

// IsInvalidResourceFormat reports whether err is an InvalidResourceFormat.
func IsInvalidResourceFormat(err error) bool { return is(err, kindInvalidResourceFormat) }

// DirectPolicyViolation reports that a flow evaluation denied the request.
func DirectPolicyViolation(reason string) error {
	return &taxonomyError{kindDirectPolicyViolation, traceAccessDenied("direct policy violation: %s", reason)}
}

// IsDirectPolicyViolation reports whether err is a DirectPolicyViolation.
func IsDirectPolicyViolation(err error) bool { return is(err, kindDirectPolicyViolation) }

// DestinationPolicyNotFound reports that no destination policy could be
// resolved for an evaluation (the destination is owned by another node and
// no policy for it was supplied).
func DestinationPolicyNotFound() error {
	return &taxonomyError{kindDestinationPolicyMissing, traceNotFound("destination policy not found")}
}

// IsDestinationPolicyNotFound reports whether err is a DestinationPolicyNotFound.
func IsDestinationPolicyNotFound(err error) bool { return is(err, kindDestinationPolicyMissing) }

// PolicyNotUpdated reports that a Set* call was rejected by the deletion
// guard (resource is Pending or Deleted).
func PolicyNotUpdated(resource fmt.Stringer) error {
	return &taxonomyError{kindPolicyNotUpdated, traceAccessDenied("policy not updated for %s: deletion in progress or complete", resource)}
}

// IsPolicyNotUpdated reports whether err is a PolicyNotUpdated.
func IsPolicyNotUpdated(err error) bool { return is(err, kindPolicyNotUpdated) }

// UnavailableSource reports that the sequencer could not reserve the source side.
func UnavailableSource(resource fmt.Stringer) error {
	return &taxonomyError{kindUnavailableSource, traceCompareFailed("source unavailable: %s", resource)}
}

// IsUnavailableSource reports whether err is an UnavailableSource.
func IsUnavailableSource(err error) bool { return is(err, kindUnavailableSource) }

// UnavailableDestination reports that the sequencer could not reserve the
// destination side.
func UnavailableDestination(resource fmt.Stringer) error {
	return &taxonomyError{kindUnavailableDestination, traceCompareFailed("destination unavailable: %s", resource)}
}

// IsUnavailableDestination reports whether err is an UnavailableDestination.
func IsUnavailableDestination(err error) bool { return is(err, kindUnavailableDestination) }

// UnavailableSourceAndDestination reports that neither side of the
// reservation could be taken.
func UnavailableSourceAndDestination(source, destination fmt.Stringer) error {
	return &taxonomyError{kindUnavailableBoth, traceCompareFailed("source and destination unavailable: %s, %s", source, destination)}
}

// IsUnavailableSourceAndDestination reports whether err is an
// UnavailableSourceAndDestination.
func IsUnavailableSourceAndDestination(err error) bool { return is(err, kindUnavailableBoth) }

// ReachedMaxRetriesWaitingQueue reports that the waiting-queue layer gave
// up after exhausting its retry budget.
func ReachedMaxRetriesWaitingQueue(attempts int) error {
	return &taxonomyError{kindMaxRetries, traceCompareFailed("reached max retries (%d) waiting for reservation", attempts)}
}

// IsReachedMaxRetriesWaitingQueue reports whether err is a
// ReachedMaxRetriesWaitingQueue.
func IsReachedMaxRetriesWaitingQueue(err error) bool { return is(err, kindMaxRetries) }

// NotFoundFlow reports that a grant_id has no matching in-flight flow.
func NotFoundFlow(grantID string) error {
	return &taxonomyError{kindNotFoundFlow, traceNotFound("no in-flight flow for grant_id %s", grantID)}
}

// IsNotFoundFlow reports whether err is a NotFoundFlow.
func IsNotFoundFlow(err error) bool { return is(err, kindNotFoundFlow) }

// ConsentRequestTimeout reports that a consent request's timeout elapsed
// with no decision.
func ConsentRequestTimeout() error {
	return &taxonomyError{kindConsentTimeout, traceLimitExceeded("consent request timed out")}
}

// IsConsentRequestTimeout reports whether err is a ConsentRequestTimeout.
func IsConsentRequestTimeout(err error) bool { return is(err, kindConsentTimeout) }

// TransportFailedToContactRemote reports an M2M RPC failure against peer.
func TransportFailedToContactRemote(peer string, cause error) error {
	return &taxonomyError{kindTransportFailure, traceConnectionProblem(cause, "failed to contact remote node %s", peer)}
}

// IsTransportFailedToContactRemote reports whether err is a
// TransportFailedToContactRemote.
func IsTransportFailedToContactRemote(err error) bool { return is(err, kindTransportFailure) }

// InternalTrace2eError reports a broken invariant; seeing this means a bug
// in the core, not a caller mistake.
func InternalTrace2eError(format string, args ...interface{}) error {
	return &taxonomyError{kindInternal, traceErrorf(format, args...)}
}

// IsInternalTrace2eError reports whether err is an InternalTrace2eError.
func IsInternalTrace2eError(err error) bool { return is(err, kindInternal) }

// SystemTimeError reports that the system clock could not be read
// (used when minting a grant_id). trace.Wrap returns nil for a nil
// cause, so a concrete base is built directly when there is no cause to
// wrap, keeping the taxonomyError's wrapped err always non-nil.
func SystemTimeError(cause error) error {
	if cause == nil {
		return &taxonomyError{kindSystemTime, traceErrorf("system time error")}
	}
	return &taxonomyError{kindSystemTime, traceWrap(cause, "system time error")}
}

// IsSystemTimeError reports whether err is a SystemTimeError.
func IsSystemTimeError(err error) bool { return is(err, kindSystemTime) }
