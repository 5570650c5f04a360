package transfer

import "errors"

var (
	// ErrTransferMalformed covers a frame_index gap or mismatch during
	// reassembly, and an attempt to emit a multi-frame anonymous transfer.
	ErrTransferMalformed = errors.New("transfer: malformed transfer")

	// ErrCRCMismatch is returned by FromFrames when the recomputed
	// transfer CRC disagrees with the one carried on the wire.
	ErrCRCMismatch = errors.New("transfer: CRC mismatch")
)
