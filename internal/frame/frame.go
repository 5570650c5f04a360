// Package frame decodes and encodes the 29-bit UAVCAN identifier and
// payload framing on top of the CAN 2.0B wire frame (internal/can.Frame).
package frame

import (
	"fmt"

	"github.com/kstaniek/go-uavcan-node/internal/can"
)

// Priority is both the transfer's priority class and, because UAVCAN v0
// overloads the field, the selector between the message and service ID
// layouts: a frame with Priority == Service is laid out per the service
// table regardless of its numeric priority value.
type Priority uint8

const (
	PriorityHigh    Priority = 0
	PriorityNormal  Priority = 1
	PriorityService Priority = 2
	PriorityLow     Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityService:
		return "service"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", uint8(p))
	}
}

// Key identifies the transfer a frame belongs to, for TransferManager
// bucketing and dispatch correlation.
type Key struct {
	Source     uint8
	Dest       uint8
	HasDest    bool
	DataTypeID uint16
	TransferID uint8
	Priority   Priority
}

// Frame is the decoded bit-field view over a 29-bit UAVCAN identifier plus
// its payload.
type Frame struct {
	Priority   Priority
	TransferID uint8
	LastFrame  bool
	FrameIndex uint8

	// Broadcast is broadcast_not_unicast; meaningful only when
	// Priority != PriorityService.
	Broadcast bool

	SourceNodeID uint8

	// DestNodeID and HasDest are set for unicast message frames and for
	// every service frame.
	DestNodeID uint8
	HasDest    bool

	DataTypeID uint16

	// RequestNotResponse is meaningful only when Priority == PriorityService.
	RequestNotResponse bool

	Payload []byte
}

// IsService reports whether this frame uses the service ID layout.
func (f *Frame) IsService() bool { return f.Priority == PriorityService }

// IsAnonymous reports whether the frame originates from an unassigned node.
func (f *Frame) IsAnonymous() bool { return f.SourceNodeID == 0 }

// TransferKey returns the key used to bucket this frame with the rest of
// its transfer.
func (f *Frame) TransferKey() Key {
	return Key{
		Source:     f.SourceNodeID,
		Dest:       f.DestNodeID,
		HasDest:    f.HasDest,
		DataTypeID: f.DataTypeID,
		TransferID: f.TransferID,
		Priority:   f.Priority,
	}
}

func (f *Frame) String() string {
	if f.IsService() {
		return fmt.Sprintf("svc prio=%s src=%d dest=%d dtid=%d tid=%d idx=%d last=%t req=%t payload=%d",
			f.Priority, f.SourceNodeID, f.DestNodeID, f.DataTypeID, f.TransferID, f.FrameIndex, f.LastFrame, f.RequestNotResponse, len(f.Payload))
	}
	dest := "*"
	if f.HasDest {
		dest = fmt.Sprintf("%d", f.DestNodeID)
	}
	return fmt.Sprintf("msg prio=%s src=%d dest=%s dtid=%d tid=%d idx=%d last=%t bcast=%t payload=%d",
		f.Priority, f.SourceNodeID, dest, f.DataTypeID, f.TransferID, f.FrameIndex, f.LastFrame, f.Broadcast, len(f.Payload))
}

// Decode builds a Frame from a 29-bit identifier (EFF/RTR/ERR flag bits
// already stripped by the caller) and its payload bytes.
func Decode(id uint32, data []byte) (*Frame, error) {
	if len(data) > 8 {
		return nil, ErrFrameMalformed
	}

	f := &Frame{
		TransferID: uint8(id & 0x7),
		LastFrame:  (id>>3)&1 != 0,
		Priority:   Priority((id >> 27) & 0x3),
	}

	if f.Priority == PriorityService {
		f.FrameIndex = uint8((id >> 4) & 0x3F)
		f.SourceNodeID = uint8((id >> 10) & 0x7F)
		f.DataTypeID = uint16((id >> 17) & 0x1FF)
		f.RequestNotResponse = (id>>26)&1 != 0
	} else {
		f.FrameIndex = uint8((id >> 4) & 0xF)
		f.Broadcast = (id>>8)&1 != 0
		f.SourceNodeID = uint8((id >> 9) & 0x7F)
		f.DataTypeID = uint16((id >> 16) & 0x7FF)
	}

	needsDest := f.IsService() || !f.Broadcast
	if needsDest {
		if len(data) < 1 {
			return nil, ErrFrameMalformed
		}
		f.HasDest = true
		f.DestNodeID = data[0] & 0x7F
		f.Payload = append([]byte(nil), data[1:]...)
	} else {
		f.Payload = append([]byte(nil), data...)
	}

	if f.IsAnonymous() {
		f.TransferID = 0
		f.FrameIndex = 0
		f.LastFrame = true
	}

	return f, nil
}

// Encode builds the 29-bit identifier and payload bytes for f. The caller
// is responsible for setting the EFF flag before placing the result on the
// bus.
func Encode(f *Frame) (id uint32, data []byte, err error) {
	if f.TransferID > 7 {
		return 0, nil, ErrFrameMalformed
	}

	id |= uint32(f.TransferID) & 0x7
	if f.LastFrame {
		id |= 1 << 3
	}
	id |= uint32(f.Priority&0x3) << 27

	if f.Priority == PriorityService {
		id |= uint32(f.FrameIndex&0x3F) << 4
		id |= uint32(f.SourceNodeID&0x7F) << 10
		id |= uint32(f.DataTypeID&0x1FF) << 17
		if f.RequestNotResponse {
			id |= 1 << 26
		}
	} else {
		id |= uint32(f.FrameIndex&0xF) << 4
		if f.Broadcast {
			id |= 1 << 8
		}
		id |= uint32(f.SourceNodeID&0x7F) << 9
		id |= uint32(f.DataTypeID&0x7FF) << 16
	}

	needsDest := f.IsService() || !f.Broadcast
	if needsDest {
		if len(f.Payload) > 7 {
			return 0, nil, ErrFrameMalformed
		}
		data = make([]byte, 1+len(f.Payload))
		data[0] = f.DestNodeID & 0x7F
		copy(data[1:], f.Payload)
	} else {
		if len(f.Payload) > 8 {
			return 0, nil, ErrFrameMalformed
		}
		data = append([]byte(nil), f.Payload...)
	}

	return id, data, nil
}

// ToCANFrame encodes f as a CAN 2.0B extended wire frame.
func (f *Frame) ToCANFrame() (can.Frame, error) {
	id, data, err := Encode(f)
	if err != nil {
		return can.Frame{}, err
	}
	var cf can.Frame
	cf.CANID = id | can.CAN_EFF_FLAG
	cf.Len = uint8(len(data))
	copy(cf.Data[:], data)
	return cf, nil
}

// FromCANFrame decodes a raw wire frame into a Frame. Non-extended frames
// are rejected with ErrFrameMalformed so the caller can silently discard
// them per §6 of the external interface contract.
func FromCANFrame(cf can.Frame) (*Frame, error) {
	if cf.CANID&can.CAN_EFF_FLAG == 0 {
		return nil, ErrFrameMalformed
	}
	if cf.Len > 8 {
		return nil, ErrFrameMalformed
	}
	id := cf.CANID & can.CAN_EFF_MASK
	return Decode(id, cf.Data[:cf.Len])
}
