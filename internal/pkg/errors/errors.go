package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrMalformedInput marks content that can never be processed,
	// no matter how many times it is refetched.
	ErrMalformedInput = errors.New("malformed input")
)
