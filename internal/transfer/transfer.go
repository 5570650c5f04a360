// Package transfer splits a DSDL value into a sequence of frames and
// reassembles received frames back into a value's packed payload, with the
// multi-frame CRC check spec.md §4.5 and §6 describe.
package transfer

import (
	"github.com/kstaniek/go-uavcan-node/internal/dsdl"
	"github.com/kstaniek/go-uavcan-node/internal/frame"
)

// Transfer is one logical message or service invocation: the payload plus
// the frame-header fields it is split across.
type Transfer struct {
	Priority     frame.Priority
	TransferID   uint8
	SourceNodeID uint8

	DestNodeID uint8
	HasDest    bool

	DataTypeID        uint16
	DataTypeSignature uint64

	RequestNotResponse  bool
	BroadcastNotUnicast bool

	Payload []byte
}

// FromValue packs payload and fills DataTypeID/DataTypeSignature when
// payload is a *dsdl.CompoundValue built against a registered message or
// service type. Callers still set Priority, TransferID, the node
// identities and the request/response/broadcast flags before calling
// ToFrames.
func FromValue(payload dsdl.Value) (*Transfer, error) {
	packed, err := dsdl.ToBytes(payload)
	if err != nil {
		return nil, err
	}
	t := &Transfer{Priority: frame.PriorityNormal, Payload: packed}
	if cv, ok := payload.(*dsdl.CompoundValue); ok {
		t.DataTypeID = cv.Type.DefaultDTID
		t.DataTypeSignature = cv.Type.DataTypeSignature()
	}
	return t, nil
}

// Key returns the bucketing key this transfer's frames share.
func (t *Transfer) Key() frame.Key {
	k := frame.Key{
		Source:     t.SourceNodeID,
		DataTypeID: t.DataTypeID,
		TransferID: t.TransferID,
		Priority:   t.Priority,
	}
	if t.HasDest {
		k.Dest = t.DestNodeID
		k.HasDest = true
	}
	return k
}

func (t *Transfer) IsMessage() bool  { return t.Priority != frame.PriorityService }
func (t *Transfer) IsService() bool  { return t.Priority == frame.PriorityService }
func (t *Transfer) IsRequest() bool  { return t.IsService() && t.RequestNotResponse }
func (t *Transfer) IsResponse() bool { return t.IsService() && !t.RequestNotResponse }
func (t *Transfer) IsBroadcast() bool {
	return t.IsMessage() && t.BroadcastNotUnicast
}
func (t *Transfer) IsUnicast() bool { return t.IsMessage() && !t.BroadcastNotUnicast }

// IsResponseTo reports whether t is the service response to req: same
// data type, source/dest swapped, and t itself carries a response.
// Transfer-id is deliberately not compared — UAVCAN v0 does not require it
// and the first match wins.
func (t *Transfer) IsResponseTo(req *Transfer) bool {
	return t.Priority == frame.PriorityService &&
		t.SourceNodeID == req.DestNodeID &&
		t.DestNodeID == req.SourceNodeID &&
		t.DataTypeID == req.DataTypeID &&
		!t.RequestNotResponse
}

// ToFrames splits the transfer's packed payload into the wire frame
// sequence, prepending a CRC seeded with crcSeed (Node passes the data
// type's BaseCRC) when the payload does not fit one frame.
// Anonymous transfers (SourceNodeID == 0) are rejected with
// ErrTransferMalformed if they would require more than one frame.
func (t *Transfer) ToFrames(crcSeed uint16) ([]*frame.Frame, error) {
	bytesPerFrame := 7
	if !t.HasDest {
		bytesPerFrame = 8
	}

	remaining := t.Payload
	if len(t.Payload) > bytesPerFrame {
		if t.SourceNodeID == 0 {
			return nil, ErrTransferMalformed
		}
		crc := dsdl.CRC16(t.Payload, crcSeed)
		prefixed := make([]byte, 2+len(t.Payload))
		prefixed[0] = byte(crc)
		prefixed[1] = byte(crc >> 8)
		copy(prefixed[2:], t.Payload)
		remaining = prefixed
	}

	var frames []*frame.Frame
	idx := 0
	for {
		chunkLen := bytesPerFrame
		if chunkLen > len(remaining) {
			chunkLen = len(remaining)
		}
		fr := &frame.Frame{
			Priority:           t.Priority,
			TransferID:         t.TransferID,
			FrameIndex:         uint8(idx),
			LastFrame:          len(remaining) <= bytesPerFrame,
			SourceNodeID:       t.SourceNodeID,
			DataTypeID:         t.DataTypeID,
			Payload:            append([]byte(nil), remaining[:chunkLen]...),
			RequestNotResponse: t.RequestNotResponse,
		}
		if t.HasDest {
			fr.HasDest = true
			fr.DestNodeID = t.DestNodeID
		}
		if !t.IsService() {
			fr.Broadcast = !t.HasDest
		}
		frames = append(frames, fr)

		remaining = remaining[chunkLen:]
		idx++
		if len(remaining) == 0 {
			break
		}
	}
	return frames, nil
}

// FromFrames reassembles a completed frame list (as delivered by
// transfer.Manager on the terminating frame) into a Transfer, validating
// frame_index continuity and, for multi-frame transfers, the CRC.
func FromFrames(frames []*frame.Frame, crcSeed uint16) (*Transfer, error) {
	if len(frames) == 0 {
		return nil, ErrTransferMalformed
	}
	first := frames[0]

	if first.SourceNodeID != 0 {
		for i, f := range frames {
			if uint8(i) != f.FrameIndex {
				return nil, ErrTransferMalformed
			}
		}
	}

	t := &Transfer{
		TransferID:         first.TransferID,
		Priority:           first.Priority,
		SourceNodeID:       first.SourceNodeID,
		DataTypeID:         first.DataTypeID,
		RequestNotResponse: first.RequestNotResponse,
	}
	if first.HasDest {
		t.HasDest = true
		t.DestNodeID = first.DestNodeID
	}
	if !first.IsService() {
		t.BroadcastNotUnicast = first.Broadcast
	}

	var payload []byte
	for _, f := range frames {
		payload = append(payload, f.Payload...)
	}

	if len(frames) > 1 {
		if len(payload) < 2 {
			return nil, ErrTransferMalformed
		}
		transferCRC := uint16(payload[0]) | uint16(payload[1])<<8
		payload = payload[2:]
		crc := dsdl.CRC16(payload, crcSeed)
		if crc != transferCRC {
			return nil, ErrCRCMismatch
		}
	}

	t.Payload = payload
	return t, nil
}
