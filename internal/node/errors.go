package node

import "errors"

var (
	// ErrUnknownDataType names the unknown-dtid row of the error taxonomy.
	// The receive path logs and drops transfers of unregistered types
	// without surfacing this error; the send primitives do not consult the
	// TypeTable and never return it.
	ErrUnknownDataType = errors.New("node: unrecognized data type")

	// ErrNotRunning is returned by the send primitives when no CAN driver
	// has been attached yet.
	ErrNotRunning = errors.New("node: no driver attached")
)
