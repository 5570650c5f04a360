package node

import (
	"sync"
	"testing"

	"github.com/kstaniek/go-uavcan-node/internal/can"
	"github.com/kstaniek/go-uavcan-node/internal/dsdl"
	"github.com/kstaniek/go-uavcan-node/internal/frame"
	"github.com/kstaniek/go-uavcan-node/internal/transfer"
)

func u(bitlen int) *dsdl.PrimitiveType {
	return dsdl.NewPrimitiveType(bitlen, dsdl.KindUnsignedInt, dsdl.CastSaturated)
}

// testNodeStatusType mirrors uavcan.protocol.NodeStatus's real 56-bit
// layout (uptime_sec + health/mode/sub_mode + vendor_specific_status_code),
// so S1's literal payload length holds, while still naming the fields
// Node.cacheNodeStatus/SendNodeStatus look up by name.
func testNodeStatusType() *dsdl.CompoundType {
	return &dsdl.CompoundType{
		Name:        "test.NodeStatus",
		DefaultDTID: 341,
		BaseCRC:     0x5C74,
		SubKind:     dsdl.KindMessage,
		Fields: []dsdl.FieldDescriptor{
			{Name: "uptime_sec", Type: u(32)},
			{Name: "status_code", Type: u(2)},
			{Name: "mode", Type: u(3)},
			{Name: "sub_mode", Type: u(3)},
			{Name: "vendor_specific_status_code", Type: u(16)},
		},
	}
}

// testServiceType is a minimal service type whose response is forced over
// multiple frames by a 10-byte static payload field.
func testServiceType() *dsdl.CompoundType {
	return &dsdl.CompoundType{
		Name:        "test.Svc",
		DefaultDTID: 1,
		BaseCRC:     0x8B69,
		SubKind:     dsdl.KindService,
		ResponseFields: []dsdl.FieldDescriptor{
			{Name: "data", Type: &dsdl.ArrayType{ValueType: u(8), Mode: dsdl.ArrayStatic, MaxSize: 10}},
		},
	}
}

// captureDriver records every frame handed to Send.
type captureDriver struct {
	mu     sync.Mutex
	frames []can.Frame
}

func (d *captureDriver) Send(f can.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, f)
	return nil
}

func (d *captureDriver) snapshot() []can.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]can.Frame, len(d.frames))
	copy(out, d.frames)
	return out
}

// bus wires multiple nodes' drivers together so Send on one feeds
// HandleFrame on every peer, simulating a shared CAN bus in-process.
type bus struct {
	peers []*Node
}

func (b *bus) Send(f can.Frame) error {
	for _, n := range b.peers {
		n.HandleFrame(f)
	}
	return nil
}

// TestNodeStatusBroadcast covers S1.
func TestNodeStatusBroadcast(t *testing.T) {
	nsType := testNodeStatusType()
	drv := &captureDriver{}
	types := NewTypeTable()
	types.RegisterMessage(nsType)
	n := New(Config{NodeID: 42, Types: types, Driver: drv, NodeStatusType: nsType})
	n.SetStatusCode(0) // health OK

	if err := n.SendNodeStatus(); err != nil {
		t.Fatal(err)
	}
	frames := drv.snapshot()
	if len(frames) != 1 {
		t.Fatalf("expected exactly one CAN frame, got %d", len(frames))
	}
	fr, err := frame.FromCANFrame(frames[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(fr.Payload) != 7 {
		t.Fatalf("expected payload length 7, got %d", len(fr.Payload))
	}
	if !fr.LastFrame {
		t.Fatal("expected last_frame=true for a single-frame transfer")
	}
	if fr.SourceNodeID != 42 {
		t.Fatalf("expected source=42, got %d", fr.SourceNodeID)
	}
	if fr.Priority != frame.PriorityNormal {
		t.Fatalf("expected NORMAL priority, got %v", fr.Priority)
	}
	if fr.IsService() {
		t.Fatal("expected a message frame, not service")
	}
	if !fr.Broadcast {
		t.Fatal("expected broadcast flag set")
	}
}

// TestGetNodeInfoRequestResponse covers S2: a request/response exchange
// between two Node instances wired onto a shared fake bus.
func TestGetNodeInfoRequestResponse(t *testing.T) {
	svcType := testServiceType()

	serverTypes := NewTypeTable()
	serverTypes.RegisterService(svcType)
	server := New(Config{
		NodeID: 42,
		Types:  serverTypes,
		Handlers: []Registration{
			Service(svcType, func(h *ServiceHandler) {
				arr, err := h.Response.Array("data")
				if err != nil {
					t.Fatal(err)
				}
				for i := 0; i < arr.Len(); i++ {
					v, _ := arr.At(i)
					_ = v.(*dsdl.PrimitiveValue).SetUint(uint64(i))
				}
			}),
		},
	})

	clientTypes := NewTypeTable()
	clientTypes.RegisterService(svcType)
	client := New(Config{NodeID: 1, Types: clientTypes})

	b := &bus{peers: []*Node{server, client}}
	server.SetDriver(b)
	client.SetDriver(b)

	reqPayload, err := dsdl.NewCompoundValue(svcType, "request", true)
	if err != nil {
		t.Fatal(err)
	}

	type callbackResult struct {
		resp *dsdl.CompoundValue
		err  error
	}
	done := make(chan callbackResult, 1)
	err = client.SendRequest(reqPayload, 42, func(resp *dsdl.CompoundValue, tr *transfer.Transfer, cbErr error) {
		done <- callbackResult{resp, cbErr}
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("callback error: %v", r.err)
		}
		arr, err := r.resp.Array("data")
		if err != nil {
			t.Fatal(err)
		}
		if arr.Len() != 10 {
			t.Fatalf("expected 10-element response array, got %d", arr.Len())
		}
		v, _ := arr.At(3)
		got, _ := v.(*dsdl.PrimitiveValue).Uint()
		if got != 3 {
			t.Fatalf("expected element 3 == 3, got %d", got)
		}
	default:
		t.Fatal("expected callback to have fired synchronously over the loopback bus")
	}
}
