package nacos

import "github.com/nacos-go/nacos-client-go/internal/errorsx"

// Kind categorises a client-visible failure (spec §7).
type Kind = errorsx.Kind

// Error is the concrete error type every Client/ConfigClient/NamingClient
// method returns on failure; use errors.As to recover the Kind.
type Error = errorsx.Error

// Kind constants, re-exported for callers branching on failure category.
const (
	KindTransport   = errorsx.KindTransport
	KindTimeout     = errorsx.KindTimeout
	KindAuth        = errorsx.KindAuth
	KindProtocol    = errorsx.KindProtocol
	KindNotFound    = errorsx.KindNotFound
	KindUnsupported = errorsx.KindUnsupported
	KindCancelled   = errorsx.KindCancelled
)

// OfKind reports whether err (or something it wraps) is a *Error of kind k,
// e.g. `nacos.OfKind(err, nacos.KindNotFound)`.
func OfKind(err error, k Kind) bool { return errorsx.OfKind(err, k) }

// Sentinel returns a comparable error carrying only a Kind, suitable for use
// with `errors.Is(err, nacos.Sentinel(nacos.KindNotFound))`.
func Sentinel(k Kind) error { return errorsx.Sentinel(k) }
