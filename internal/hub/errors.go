package hub

import "errors"

var (
	// ErrReceiverNotFound is returned for an unknown receiver ID.
	ErrReceiverNotFound = errors.New("receiver not found")

	// ErrInvalidNonce is returned when an X-Nonce value is malformed.
	ErrInvalidNonce = errors.New("invalid nonce format")

	ErrAlreadyRunning = errors.New("daemon is already running")
	ErrUnauthorized   = errors.New("unauthorized")
)

// ErrReceiverUnreachable is counted as a breaker failure when the host client is unavailable.
var ErrReceiverUnreachable = errors.New("receiver unreachable")
