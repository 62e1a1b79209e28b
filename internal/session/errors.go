package session

import "errors"

var (
	ErrNotFound           = errors.New("session not found")
	ErrInvalidTransition  = errors.New("invalid session transition")
	ErrTransitionInFlight = errors.New("another transition is in progress for this session")
	ErrNotRetryable       = errors.New("session evaluation cannot be retried")
	ErrConnectionTimeout  = errors.New("connection timeout")
	ErrPersistence        = errors.New("persistence failure")
	ErrTransport          = errors.New("transport error")
	ErrCancelled          = errors.New("session cancelled")
)
