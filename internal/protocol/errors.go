package protocol

import "errors"

// Kind identifies the category of a protocol-level error, mirroring the
// original implementation's error enum.
type Kind int

const (
	KindNetwork Kind = iota
	KindAuthenticationFailed
	KindTimeout
	KindConnectionClosed
	KindInvalidMessage
	KindCompression
	KindTokenNotFound
	KindPathResolution
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network error"
	case KindAuthenticationFailed:
		return "authentication failed"
	case KindTimeout:
		return "timeout"
	case KindConnectionClosed:
		return "connection closed"
	case KindInvalidMessage:
		return "invalid message"
	case KindCompression:
		return "compression error"
	case KindTokenNotFound:
		return "token not found"
	case KindPathResolution:
		return "path resolution error"
	default:
		return "unknown error"
	}
}

// Error is the typed error every component in this module returns for
// protocol-level failures. Wrap an underlying cause with Wrap so callers
// can still unwrap down to it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error that carries an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a protocol *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

var (
	ErrNetwork              = New(KindNetwork, "")
	ErrAuthenticationFailed = New(KindAuthenticationFailed, "")
	ErrTimeout              = New(KindTimeout, "")
	ErrConnectionClosed     = New(KindConnectionClosed, "")
	ErrInvalidMessage       = New(KindInvalidMessage, "")
	ErrCompression          = New(KindCompression, "")
	ErrTokenNotFound        = New(KindTokenNotFound, "")
	ErrPathResolution       = New(KindPathResolution, "")
)
