package domain

import "errors"

// Sentinel errors for the chat client.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrUnauthorized  = errors.New("unauthorized access")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUpstream      = errors.New("upstream server error")
	ErrNoToken       = errors.New("no usable auth token")
	ErrStaleResponse = errors.New("response no longer matches the active conversation")
	ErrSessionClosed = errors.New("session closed")
)
