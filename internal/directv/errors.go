package directv

import (
	"errors"
	"fmt"
)

// ErrorKind classifies receiver failures
type ErrorKind int

const (
	// KindRequest covers non-2xx responses, empty payloads and validation failures
	KindRequest ErrorKind = iota
	// KindConnection covers timeouts and transport failures
	KindConnection
	// KindAccessRestricted is an HTTP 403 from the receiver
	KindAccessRestricted
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindAccessRestricted:
		return "access_restricted"
	default:
		return "request"
	}
}

// Sentinels for errors.Is. Every *Error matches ErrDirecTV.
var (
	ErrDirecTV          = errors.New("directv error")
	ErrConnection       = errors.New("directv connection error")
	ErrAccessRestricted = errors.New("directv access restricted")
)

const (
	msgTimeout          = "Timeout occurred while connecting to receiver"
	msgCommunication    = "Error occurred while communicating with receiver"
	msgAccessRestricted = "Access restricted. Please allow external device access on the receiver " +
		"(Settings > Whole-Home > External Device)"
	msgInvalidJSON      = "Receiver returned an invalid JSON response"
	msgEmptyResponse    = "DirecTV device returned an empty API response"
	msgIncompleteDevice = "DirecTV data is incomplete, cannot construct device object"
)

// Error is returned by every failing receiver call
type Error struct {
	Kind    ErrorKind
	Message string
	// Detail is the parsed JSON error body, or content-type/message/status-code for other bodies
	Detail map[string]any
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels by kind
func (e *Error) Is(target error) bool {
	switch target {
	case ErrDirecTV:
		return true
	case ErrConnection:
		return e.Kind == KindConnection
	case ErrAccessRestricted:
		return e.Kind == KindAccessRestricted
	default:
		return false
	}
}

// StatusCode returns the HTTP status recorded in Detail, or 0
func (e *Error) StatusCode() int {
	if e.Kind == KindAccessRestricted {
		return 403
	}
	code, ok := toInt64(e.Detail["status-code"])
	if !ok {
		return 0
	}
	return int(code)
}

func newError(message string, detail map[string]any) *Error {
	return &Error{Kind: KindRequest, Message: message, Detail: detail}
}

func newConnectionError(message string, cause error) *Error {
	return &Error{Kind: KindConnection, Message: message, Err: cause}
}

func newAccessRestrictedError() *Error {
	return &Error{Kind: KindAccessRestricted, Message: msgAccessRestricted}
}

// IsConnectionError reports whether err is a timeout or transport failure
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsAccessRestricted reports whether err is an HTTP 403 from the receiver
func IsAccessRestricted(err error) bool {
	return errors.Is(err, ErrAccessRestricted)
}
