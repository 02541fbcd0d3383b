package p2p

import (
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind classifies why a probe failed. It is the teacher module's own
// google.golang.org/grpc/codes.Code rather than a hand-rolled enum: the
// handful of outcomes a probe can end in map cleanly onto existing
// RPC-style codes, and the teacher's go.mod already pulls full grpc as a
// direct dependency.
type ErrorKind = codes.Code

const (
	KindInvalidAddress          = codes.InvalidArgument
	KindConnectionRefused       = codes.Unavailable
	KindNetworkTimeout          = codes.DeadlineExceeded
	KindProtocolVersionMismatch = codes.FailedPrecondition
	KindProtocol                = codes.Internal
	KindIO                      = codes.Unknown
	KindGenericFailure          = codes.Unknown
)

// ProbeError wraps a lower-level error with the ErrorKind a caller (the
// crawler) needs to decide what to do next. All ProbeErrors are non-fatal:
// the crawler logs and moves on regardless of kind.
type ProbeError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProbeError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *ProbeError) Unwrap() error { return e.Err }

// GRPCStatus lets status.Code/status.FromError recover the ErrorKind
// through an arbitrary chain of errors.Wrap/errors.As.
func (e *ProbeError) GRPCStatus() *status.Status {
	return status.New(e.Kind, e.Error())
}

func newProbeError(kind ErrorKind, err error) *ProbeError {
	return &ProbeError{Kind: kind, Err: err}
}

func wrapf(kind ErrorKind, err error, format string, args ...interface{}) *ProbeError {
	return newProbeError(kind, errors.Wrapf(err, format, args...))
}

// KindOf extracts the ErrorKind from err if it (or something it wraps) is a
// *ProbeError, defaulting to KindGenericFailure (codes.Unknown) otherwise.
func KindOf(err error) ErrorKind {
	return status.Code(err)
}
