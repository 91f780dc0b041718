package transmission

import (
	"errors"
	"fmt"
)

// Errors returned by connection operations. Read and write failures are
// reported as *OpError whose Kind is one of these values, so callers can
// branch with errors.Is.
var (
	// ErrInvalidTransport is returned by NewConn when no transport is given.
	ErrInvalidTransport = errors.New("invalid transport")
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrInvalidSize is returned for a read of zero or negative size.
	ErrInvalidSize = errors.New("invalid read size")
	// ErrExhausted is returned when the transport delivers no bytes and
	// nothing is buffered.
	ErrExhausted = errors.New("transport exhausted")
	// ErrInsufficientData is returned when the transport stops delivering
	// before the buffered bytes reach the requested size.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrTransport is returned when a transport primitive fails.
	ErrTransport = errors.New("transport failure")

	// ErrInvalidPrefix is returned for a length prefix width other than
	// 8, 16, 32 or 64 bits.
	ErrInvalidPrefix = errors.New("invalid length prefix width")
	// ErrFrameTooLarge is returned when a frame payload cannot be expressed
	// by the prefix width or exceeds the configured maximum frame size.
	ErrFrameTooLarge = errors.New("frame too large")
)

// OpError describes a failed read or write on a Conn.
type OpError struct {
	// Op is the operation, e.g. "read", "read up to", "write", "read frame".
	Op string
	// ID is the identifier of the connection.
	ID int
	// Kind is, or wraps, one of the package level error values.
	Kind error
	// Requested is the number of bytes the caller asked for.
	Requested int
	// Buffered is the number of bytes in the reservoir when the call failed.
	Buffered int
	// Err is the underlying transport error, if any.
	Err error
}

func (e *OpError) Error() string {
	s := fmt.Sprintf("conn %d: %s (requested %d, buffered %d): %v", e.ID, e.Op, e.Requested, e.Buffered, e.Kind)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes both the error kind and the transport error.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
