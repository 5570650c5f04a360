package frame

import "errors"

// ErrFrameMalformed covers every reason a raw CAN frame is rejected before
// it ever reaches transfer reassembly: not an extended frame, an oversized
// payload, or a service/unicast frame missing its destination byte. The
// caller's policy is always the same — discard the frame and continue.
var ErrFrameMalformed = errors.New("frame: malformed CAN frame")
