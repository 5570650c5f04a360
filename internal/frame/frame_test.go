package frame

import (
	"testing"

	"github.com/kstaniek/go-uavcan-node/internal/can"
)

func TestMessageFrameIDRoundTrip(t *testing.T) {
	f := &Frame{
		Priority:     PriorityNormal,
		TransferID:   5,
		LastFrame:    true,
		FrameIndex:   3,
		Broadcast:    true,
		SourceNodeID: 42,
		DataTypeID:   341,
		Payload:      []byte{1, 2, 3},
	}
	id, data, err := Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(id, data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Priority != f.Priority || got.TransferID != f.TransferID || got.LastFrame != f.LastFrame ||
		got.FrameIndex != f.FrameIndex || got.Broadcast != f.Broadcast || got.SourceNodeID != f.SourceNodeID ||
		got.DataTypeID != f.DataTypeID {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestUnicastMessageFrameIDRoundTrip(t *testing.T) {
	f := &Frame{
		Priority:     PriorityLow,
		TransferID:   7,
		LastFrame:    false,
		FrameIndex:   9,
		Broadcast:    false,
		SourceNodeID: 10,
		DestNodeID:   20,
		HasDest:      true,
		DataTypeID:   100,
		Payload:      []byte{0xAA},
	}
	id, data, err := Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(id, data)
	if err != nil {
		t.Fatal(err)
	}
	if got.DestNodeID != f.DestNodeID || got.HasDest != f.HasDest || got.Broadcast != f.Broadcast {
		t.Fatalf("unicast round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestServiceFrameIDRoundTrip(t *testing.T) {
	f := &Frame{
		Priority:           PriorityService,
		TransferID:         2,
		LastFrame:          true,
		FrameIndex:         0,
		SourceNodeID:       1,
		DestNodeID:         42,
		HasDest:            true,
		DataTypeID:         1,
		RequestNotResponse: true,
		Payload:            nil,
	}
	id, data, err := Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(id, data)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsService() || got.RequestNotResponse != f.RequestNotResponse || got.DestNodeID != f.DestNodeID ||
		got.SourceNodeID != f.SourceNodeID || got.DataTypeID != f.DataTypeID || got.TransferID != f.TransferID {
		t.Fatalf("service round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestAnonymousFrameForcesZeroedFields(t *testing.T) {
	f := &Frame{
		Priority:     PriorityNormal,
		TransferID:   3,
		LastFrame:    false,
		FrameIndex:   2,
		Broadcast:    true,
		SourceNodeID: 0,
		DataTypeID:   10,
	}
	id, data, err := Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(id, data)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsAnonymous() {
		t.Fatal("expected anonymous frame")
	}
	if got.TransferID != 0 || got.FrameIndex != 0 || !got.LastFrame {
		t.Fatalf("anonymous frame fields not forced: %+v", got)
	}
}

func TestDecodeRejectsOversizedPayload(t *testing.T) {
	data := make([]byte, 9)
	if _, err := Decode(0, data); err != ErrFrameMalformed {
		t.Fatalf("expected ErrFrameMalformed, got %v", err)
	}
}

func TestToFromCANFrameRoundTrip(t *testing.T) {
	f := &Frame{
		Priority:     PriorityNormal,
		TransferID:   1,
		LastFrame:    true,
		FrameIndex:   0,
		Broadcast:    true,
		SourceNodeID: 5,
		DataTypeID:   341,
		Payload:      []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07},
	}
	cf, err := f.ToCANFrame()
	if err != nil {
		t.Fatal(err)
	}
	if cf.CANID&can.CAN_EFF_FLAG == 0 {
		t.Fatal("expected EFF flag set")
	}
	got, err := FromCANFrame(cf)
	if err != nil {
		t.Fatal(err)
	}
	if got.SourceNodeID != f.SourceNodeID || got.DataTypeID != f.DataTypeID || len(got.Payload) != len(f.Payload) {
		t.Fatalf("can frame round trip mismatch: got %+v", got)
	}
}

func TestFromCANFrameRejectsNonExtended(t *testing.T) {
	cf := can.Frame{CANID: 0x123, Len: 0}
	if _, err := FromCANFrame(cf); err != ErrFrameMalformed {
		t.Fatalf("expected ErrFrameMalformed for non-EFF frame, got %v", err)
	}
}
