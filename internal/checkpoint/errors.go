package checkpoint

import "errors"

var (
	// ErrUnexpectedHeader is returned when the visit log does not start with Header.
	ErrUnexpectedHeader = errors.New("unexpected checkpoint header")

	// ErrMalformedRecord is returned when a visit log row cannot be decoded.
	ErrMalformedRecord = errors.New("malformed checkpoint record")

	// ErrClosed is returned when writing to a closed store.
	ErrClosed = errors.New("checkpoint store is closed")
)
