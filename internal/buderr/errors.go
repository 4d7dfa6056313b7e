// Package buderr defines the error taxonomy shared by every component:
// Config, Crypto, Io, Protocol, Lookup, Resource. Each is a Kind carried by
// a wrapped error so callers can branch on kind with errors.As while the
// message keeps whatever context the wrapped cause had.
package buderr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of the handling policy in
// spec section 7: which kinds are fatal at init, which close only the
// current connection, which are logged and otherwise ignored.
type Kind int

const (
	// KindConfig covers JSON parse errors, missing required fields,
	// malformed addresses, and non-string NPN array entries.
	KindConfig Kind = iota
	// KindCrypto covers cert/key load failures, unknown ECDH curves,
	// and OCSP id construction failures.
	KindCrypto
	// KindIO covers listener bind, worker spawn, backend dial, file read.
	KindIO
	// KindProtocol covers TLS handshake failure, renegotiation abuse,
	// and proxy-line emit failure.
	KindProtocol
	// KindLookup covers HTTP pool transport errors and non-200/404 status.
	KindLookup
	// KindResource covers allocation failure and handle exhaustion.
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindCrypto:
		return "crypto"
	case KindIO:
		return "io"
	case KindProtocol:
		return "protocol"
	case KindLookup:
		return "lookup"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged, wrapped error. Construct with the Kind
// constructors below rather than this struct literal directly.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether err is a *Error of the given kind.
func Is(err error, k Kind) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == k
}

// Fatal reports whether this error's kind is fatal at process init, per
// spec section 7 (Config and Crypto errors during config load).
func (e *Error) Fatal() bool { return e.Kind == KindConfig || e.Kind == KindCrypto }

func newf(k Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: k, Detail: fmt.Sprintf(format, args...), Cause: cause}
}

// Config wraps cause as a KindConfig error naming what field/file is at fault.
func Config(cause error, format string, args ...any) *Error {
	return newf(KindConfig, cause, format, args...)
}

// Crypto wraps cause as a KindCrypto error.
func Crypto(cause error, format string, args ...any) *Error {
	return newf(KindCrypto, cause, format, args...)
}

// IO wraps cause as a KindIO error.
func IO(cause error, format string, args ...any) *Error {
	return newf(KindIO, cause, format, args...)
}

// Protocol wraps cause as a KindProtocol error.
func Protocol(cause error, format string, args ...any) *Error {
	return newf(KindProtocol, cause, format, args...)
}

// Lookup wraps cause as a KindLookup error.
func Lookup(cause error, format string, args ...any) *Error {
	return newf(KindLookup, cause, format, args...)
}

// Resource wraps cause as a KindResource error.
func Resource(cause error, format string, args ...any) *Error {
	return newf(KindResource, cause, format, args...)
}

// ErrRenegAbuse is the KindProtocol error forward.RenegGuard reports when a
// connection exceeds the configured renegotiation rate. RenegGuard is built
// and unit-tested but not instantiated by Forwarder today — crypto/tls's
// server side has no renegotiation support, so there is no call site that
// would ever produce this error in the running binary; see DESIGN.md.
var ErrRenegAbuse = &Error{Kind: KindProtocol, Detail: "renegotiation abuse"}

// ErrEmpty signals a Lookup that completed with a 404 (bud's "Empty"
// outcome): not an error condition for the caller, but distinguishable
// from a transport/status failure.
var ErrEmpty = &Error{Kind: KindLookup, Detail: "empty"}
