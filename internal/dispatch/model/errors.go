package model

import "errors"

var (
	// ErrAuth covers a bad, missing or expired token. The in-flight action
	// is dropped; the connection stays open.
	ErrAuth = errors.New("authentication failed")

	// ErrUnauthenticated marks an action attempted before the connection
	// identified itself.
	ErrUnauthenticated = errors.New("connection not authenticated")

	ErrDuplicateRideID   = errors.New("ride id already in use")
	ErrRideAlreadyTaken  = errors.New("ride already taken")
	ErrInvalidTransition = errors.New("invalid presence transition")
	ErrNotFound          = errors.New("not found")
	ErrMalformedPayload  = errors.New("malformed payload")
)
