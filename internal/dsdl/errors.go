package dsdl

import "errors"

// Sentinel errors for the DSDL value layer. These are the only errors that
// are allowed to escape pack/unpack into caller code per the error taxonomy:
// protocol-layer errors (frame/transfer/CRC) are handled and dropped further
// up the stack; these are programming errors in the type table or in caller
// usage and are meant to surface.
var (
	// ErrUndefinedValue is returned when a primitive is read before it has
	// ever been assigned.
	ErrUndefinedValue = errors.New("dsdl: read of unset primitive value")

	// ErrInvalidCastMode is returned when a PrimitiveType carries a cast
	// mode other than Saturated or Truncated.
	ErrInvalidCastMode = errors.New("dsdl: invalid cast mode")

	// ErrShortBuffer is returned by BitReader when a read would run past
	// the end of the underlying buffer.
	ErrShortBuffer = errors.New("dsdl: bit reader ran out of data")

	// ErrFieldNotFound is returned by CompoundValue field lookups.
	ErrFieldNotFound = errors.New("dsdl: no such field")

	// ErrWrongKind is returned when a field or array element is accessed
	// through an accessor that doesn't match its underlying type kind.
	ErrWrongKind = errors.New("dsdl: value kind mismatch")

	// ErrArrayFull is returned by Append on an array already at max_size.
	ErrArrayFull = errors.New("dsdl: array at max_size")

	// ErrArrayBounds is returned by indexed array access out of range.
	ErrArrayBounds = errors.New("dsdl: array index out of range")
)
