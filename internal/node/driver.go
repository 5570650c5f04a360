package node

import "github.com/kstaniek/go-uavcan-node/internal/can"

// CANDriver is the consumed CAN driver contract: open/send are the
// driver's job, and the concrete backend (SLCAN-over-serial,
// internal/serial; native SocketCAN, internal/socketcan) is selected by
// the embedding application, not by this package. Node treats both
// backends identically, as §6 requires.
//
// Unlike the source's add_to_ioloop(loop, callback) registration, frames
// arrive by the driver (or whatever bridges it) calling Node.HandleFrame
// directly — a push model that needs no event-loop-specific registration
// API and composes with any Go concurrency style the embedder chooses.
type CANDriver interface {
	Send(f can.Frame) error
}

// DriverFunc adapts a plain send function (such as a TXWriter's SendFrame
// method) to the CANDriver interface, the way http.HandlerFunc adapts a
// function to http.Handler.
type DriverFunc func(can.Frame) error

func (f DriverFunc) Send(fr can.Frame) error { return f(fr) }
