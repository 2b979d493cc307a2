package rpc

import "fmt"

// Kind enumerates the error kinds from §7 that are relevant to the wire
// transport layer. Kinds outside this set (DRIVER, PROVIDER_FAILURE,
// UNKNOWN_PROVIDER) belong to higher layers and are defined where they are
// raised.
type Kind string

const (
	KindUnauthorized    Kind = "UNAUTHORIZED"
	KindUnknownEndpoint Kind = "UNKNOWN_ENDPOINT"
	KindDecode          Kind = "DECODE"
	KindOversized       Kind = "OVERSIZED"
	KindTimeout         Kind = "TIMEOUT"
	KindTransport       Kind = "TRANSPORT"
	KindUnreachable     Kind = "UNREACHABLE"

	// KindAppError marks a reply that round-tripped successfully but carried
	// a handler-level `{error}` body (§7, e.g. AI-inference timeout or no
	// active provider surfaced through get_action) rather than a framing or
	// socket failure. The connection does not need to be reinitialised.
	KindAppError Kind = "APP_ERROR"
)

// Error is the typed error the client surfaces for transport-layer
// failures (§7 propagation policy: "surface on the caller as
// TRANSPORT/DECODE").
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("rpc: %s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("rpc: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("rpc: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
