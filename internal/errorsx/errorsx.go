// Package errorsx defines the error Kinds surfaced to callers of the nacos
// client (spec §7) and a small wrapper carrying one. Kinds let callers branch
// on failure category (errors.Is against the sentinel, or Kind(err)) without
// parsing error strings, the same way pkg/auth's Verifier returns named
// sentinel errors instead of ad-hoc fmt.Errorf strings.
package errorsx

import (
	"errors"
	"fmt"
)

// Kind categorises a client-visible failure.
type Kind int

const (
	// KindTransport covers HTTP/gRPC connectivity failures and non-200/non-OK
	// responses.
	KindTransport Kind = iota
	// KindTimeout covers context deadline / request timeout expiry.
	KindTimeout
	// KindAuth covers login failures and rejected/expired tokens.
	KindAuth
	// KindProtocol covers malformed responses (bad JSON, missing fields).
	KindProtocol
	// KindNotFound covers empty selection results (e.g. select_instance).
	KindNotFound
	// KindUnsupported covers operations that require the other transport
	// version (e.g. batch listen on v1-only connections).
	KindUnsupported
	// KindCancelled covers operations aborted by Close().
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindAuth:
		return "auth"
	case KindProtocol:
		return "protocol"
	case KindNotFound:
		return "not_found"
	case KindUnsupported:
		return "unsupported"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind.
type Error struct {
	Kind Kind
	Op   string // short operation name, e.g. "GetConfig"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error. err may be nil.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is lets errors.Is(err, errorsx.KindNotFound) work by comparing Kind values
// wrapped in a bare *Error{Kind: k}.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel returns a comparable *Error carrying only a Kind, suitable for use
// with errors.Is(err, errorsx.Sentinel(errorsx.KindNotFound)).
func Sentinel(kind Kind) error { return &Error{Kind: kind} }

// OfKind reports whether err (or something it wraps) is an *Error of kind k.
func OfKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
