// Package node implements the dispatch and send core of a UAVCAN v0
// participant: frame reassembly via internal/transfer, handler dispatch by
// data-type, service response correlation, transfer-id bookkeeping, and the
// periodic NodeStatus heartbeat.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kstaniek/go-uavcan-node/internal/can"
	"github.com/kstaniek/go-uavcan-node/internal/dsdl"
	"github.com/kstaniek/go-uavcan-node/internal/frame"
	"github.com/kstaniek/go-uavcan-node/internal/logging"
	"github.com/kstaniek/go-uavcan-node/internal/metrics"
	"github.com/kstaniek/go-uavcan-node/internal/transfer"
)

// NodeStatusEntry is the cached state of a peer last observed broadcasting
// NodeStatus — the informative node-discovery side effect of §6.
type NodeStatusEntry struct {
	UptimeSec  uint64
	StatusCode uint64
	Timestamp  time.Time
}

// RequestCallback is invoked exactly once when a service response
// correlates to the outstanding request it was registered against.
type RequestCallback func(response *dsdl.CompoundValue, tr *transfer.Transfer, err error)

type transferIDKey struct {
	dtid    uint16
	dest    uint8
	hasDest bool
}

type outstandingRequest struct {
	request  *transfer.Transfer
	callback RequestCallback
}

// Node is the dispatch and send core. All mutable state (transfer-id
// counters, the outstanding-request table, the handler registry, the
// node-status cache) is guarded by a single mutex: the core's contract
// only requires a single-threaded cooperative caller, but a mutex costs
// little and lets an embedder drive sends from more than one goroutine
// without having to reimplement the bookkeeping itself.
type Node struct {
	mu sync.Mutex

	nodeID uint8
	driver CANDriver

	types    *TypeTable
	handlers []Registration

	manager *transfer.Manager

	nextTransferIDs map[transferIDKey]uint8
	outstanding     map[frame.Key]*outstandingRequest

	nodeStatusType  *dsdl.CompoundType
	nodeStatusCache map[uint8]NodeStatusEntry

	startTime  time.Time
	statusCode uint64
}

// Config collects Node's construction-time dependencies.
type Config struct {
	// NodeID is this node's own identity, 1-127; 0 means anonymous.
	NodeID uint8
	// Types is the node's view of the external DSDL type registry.
	Types *Table
	// Handlers is the ordered handler_registry; the first matching entry
	// for a completed transfer's data type wins.
	Handlers []Registration
	// Driver is the CAN driver frames are sent through. It may be left
	// nil and attached later with SetDriver.
	Driver CANDriver
	// NodeStatusType, if set, enables the 500ms heartbeat (RunHeartbeat)
	// and the peer node-status cache.
	NodeStatusType *dsdl.CompoundType
}

// Table is an alias kept for callers that constructed a TypeTable before
// attaching it to a Config.
type Table = TypeTable

// New builds a Node from cfg.
func New(cfg Config) *Node {
	return &Node{
		nodeID:          cfg.NodeID,
		driver:          cfg.Driver,
		types:           cfg.Types,
		handlers:        cfg.Handlers,
		manager:         transfer.NewManager(),
		nextTransferIDs: make(map[transferIDKey]uint8),
		outstanding:     make(map[frame.Key]*outstandingRequest),
		nodeStatusType:  cfg.NodeStatusType,
		nodeStatusCache: make(map[uint8]NodeStatusEntry),
		startTime:       time.Now(),
	}
}

// SetDriver attaches or replaces the CAN driver the node sends through.
func (n *Node) SetDriver(d CANDriver) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.driver = d
}

// NodeID returns the node's own identity (0 = anonymous).
func (n *Node) NodeID() uint8 { return n.nodeID }

// SetStatusCode sets the status_code reported in the next heartbeat.
func (n *Node) SetStatusCode(code uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statusCode = code
}

// NodeStatus returns the cached status last observed from peer nodeID.
func (n *Node) NodeStatus(nodeID uint8) (NodeStatusEntry, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.nodeStatusCache[nodeID]
	return e, ok
}

// PurgeStaleTransfers drops in-flight reassembly buffers older than
// timeout. §4.6 assigns no timer to the core itself; call this
// periodically, or use RunTransferPurge.
func (n *Node) PurgeStaleTransfers(timeout time.Duration) {
	n.manager.RemoveInactiveTransfers(timeout)
}

// HandleFrame feeds one raw CAN wire frame through reassembly and, on a
// completed transfer, dispatch. Non-extended and malformed frames are
// dropped silently, per the frame-malformed row of the error taxonomy.
func (n *Node) HandleFrame(cf can.Frame) {
	fr, err := frame.FromCANFrame(cf)
	if err != nil {
		logging.L().Debug("uavcan: dropping malformed frame", "error", err)
		return
	}

	frames := n.manager.ReceiveFrame(fr)
	if frames == nil {
		return
	}
	n.dispatchTransfer(frames)
}

func (n *Node) dispatchTransfer(frames []*frame.Frame) {
	first := frames[0]
	kind := dsdl.KindMessage
	if first.IsService() {
		kind = dsdl.KindService
	}

	ct, ok := n.types.Lookup(first.DataTypeID, kind)
	if !ok {
		metrics.IncUnknownDataType()
		logging.L().Debug("uavcan: unrecognized data type", "dtid", first.DataTypeID, "service", first.IsService())
		return
	}

	tr, err := transfer.FromFrames(frames, ct.BaseCRC)
	if err != nil {
		if err == transfer.ErrCRCMismatch {
			metrics.IncCRCFailure()
		}
		logging.L().Debug("uavcan: dropping malformed transfer", "error", err, "dtid", first.DataTypeID)
		return
	}

	mode := ""
	if ct.SubKind == dsdl.KindService {
		if tr.IsRequest() {
			mode = "request"
		} else {
			mode = "response"
		}
	}

	payload, err := dsdl.NewCompoundValue(ct, mode, true)
	if err != nil {
		logging.L().Debug("uavcan: failed to build value for transfer", "error", err, "dtid", first.DataTypeID)
		return
	}
	if err := dsdl.FromBytes(payload, tr.Payload); err != nil {
		logging.L().Debug("uavcan: failed to unpack transfer payload", "error", err, "dtid", first.DataTypeID)
		return
	}

	if n.nodeStatusType != nil && ct == n.nodeStatusType {
		n.cacheNodeStatus(tr.SourceNodeID, payload)
	}

	addressedToSelf := tr.HasDest && tr.DestNodeID == n.nodeID
	if !tr.IsBroadcast() && !addressedToSelf {
		return
	}

	if tr.IsResponse() {
		n.correlateResponse(payload, tr)
		return
	}
	n.runHandler(ct, payload, tr)
}

func (n *Node) cacheNodeStatus(source uint8, payload *dsdl.CompoundValue) {
	uptime, _ := payload.Uint("uptime_sec")
	status, _ := payload.Uint("status_code")
	n.mu.Lock()
	n.nodeStatusCache[source] = NodeStatusEntry{UptimeSec: uptime, StatusCode: status, Timestamp: time.Now()}
	n.mu.Unlock()
}

func (n *Node) runHandler(ct *dsdl.CompoundType, payload *dsdl.CompoundValue, tr *transfer.Transfer) {
	for _, reg := range n.handlers {
		if reg.Type != ct {
			continue
		}
		metrics.IncDispatched()
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.L().Error("uavcan: handler panicked", "dtid", ct.DefaultDTID, "recover", r)
				}
			}()
			reg.Factory(payload, tr, n).Execute()
		}()
		return
	}
}

func (n *Node) correlateResponse(payload *dsdl.CompoundValue, tr *transfer.Transfer) {
	n.mu.Lock()
	var matchKey frame.Key
	var match *outstandingRequest
	for key, o := range n.outstanding {
		if tr.IsResponseTo(o.request) {
			matchKey = key
			match = o
			break
		}
	}
	if match != nil {
		delete(n.outstanding, matchKey)
	}
	n.mu.Unlock()

	if match != nil {
		metrics.IncResponseCorrelated()
		if match.callback != nil {
			match.callback(payload, tr, nil)
		}
	}
}

func (n *Node) nextTransferID(key transferIDKey) uint8 {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextTransferIDs[key]
	n.nextTransferIDs[key] = (id + 1) & 0x7
	return id
}

func (n *Node) sendFrames(frames []*frame.Frame) error {
	n.mu.Lock()
	driver := n.driver
	n.mu.Unlock()
	if driver == nil {
		return ErrNotRunning
	}
	for _, fr := range frames {
		cf, err := fr.ToCANFrame()
		if err != nil {
			return err
		}
		if err := driver.Send(cf); err != nil {
			return err
		}
	}
	return nil
}

// SendBroadcast packs payload and emits it as a broadcast message
// transfer with the next transfer-id for its data type.
func (n *Node) SendBroadcast(payload *dsdl.CompoundValue) error {
	ct := payload.Type
	t, err := transfer.FromValue(payload)
	if err != nil {
		return err
	}
	t.Priority = frame.PriorityNormal
	t.SourceNodeID = n.nodeID
	t.BroadcastNotUnicast = true
	t.TransferID = n.nextTransferID(transferIDKey{dtid: ct.DefaultDTID})

	frames, err := t.ToFrames(ct.BaseCRC)
	if err != nil {
		return err
	}
	return n.sendFrames(frames)
}

// SendUnicast packs payload and emits it as a unicast message transfer
// addressed to dest.
func (n *Node) SendUnicast(payload *dsdl.CompoundValue, dest uint8) error {
	ct := payload.Type
	t, err := transfer.FromValue(payload)
	if err != nil {
		return err
	}
	t.Priority = frame.PriorityNormal
	t.SourceNodeID = n.nodeID
	t.HasDest = true
	t.DestNodeID = dest
	t.TransferID = n.nextTransferID(transferIDKey{dtid: ct.DefaultDTID, dest: dest, hasDest: true})

	frames, err := t.ToFrames(ct.BaseCRC)
	if err != nil {
		return err
	}
	return n.sendFrames(frames)
}

// SendRequest packs payload (a request-mode CompoundValue) and emits it as
// a service request to dest, recording callback to be invoked once when
// the matching response arrives. The core never times this out itself —
// the embedding application owns that policy.
func (n *Node) SendRequest(payload *dsdl.CompoundValue, dest uint8, callback RequestCallback) error {
	ct := payload.Type
	t, err := transfer.FromValue(payload)
	if err != nil {
		return err
	}
	t.Priority = frame.PriorityService
	t.SourceNodeID = n.nodeID
	t.HasDest = true
	t.DestNodeID = dest
	t.RequestNotResponse = true
	t.TransferID = n.nextTransferID(transferIDKey{dtid: ct.DefaultDTID, dest: dest, hasDest: true})

	frames, err := t.ToFrames(ct.BaseCRC)
	if err != nil {
		return err
	}
	key := t.Key()
	n.mu.Lock()
	n.outstanding[key] = &outstandingRequest{request: t, callback: callback}
	n.mu.Unlock()
	if err := n.sendFrames(frames); err != nil {
		n.mu.Lock()
		delete(n.outstanding, key)
		n.mu.Unlock()
		return err
	}
	return nil
}

// sendResponse emits h's populated response value as a service response,
// reusing the request's transfer-id and swapping source/dest.
func (n *Node) sendResponse(h *ServiceHandler) error {
	if h.Response == nil {
		return fmt.Errorf("uavcan: service handler produced no response value")
	}
	ct := h.Response.Type
	t, err := transfer.FromValue(h.Response)
	if err != nil {
		return err
	}
	t.Priority = frame.PriorityService
	t.SourceNodeID = n.nodeID
	t.HasDest = true
	t.DestNodeID = h.Transfer.SourceNodeID
	t.TransferID = h.Transfer.TransferID
	t.RequestNotResponse = false

	frames, err := t.ToFrames(ct.BaseCRC)
	if err != nil {
		return err
	}
	return n.sendFrames(frames)
}

// SendNodeStatus broadcasts the current uptime and status code as a
// NodeStatus message. It requires Config.NodeStatusType to have been set.
func (n *Node) SendNodeStatus() error {
	if n.nodeStatusType == nil {
		return fmt.Errorf("uavcan: no NodeStatus type configured")
	}
	payload, err := dsdl.NewCompoundValue(n.nodeStatusType, "", true)
	if err != nil {
		return err
	}

	n.mu.Lock()
	status := n.statusCode
	n.mu.Unlock()

	uptime := uint64(time.Since(n.startTime).Seconds())
	if err := payload.SetUint("uptime_sec", uptime); err != nil {
		return err
	}
	if err := payload.SetUint("status_code", status); err != nil {
		return err
	}
	if err := payload.SetUint("vendor_specific_status_code", 0); err != nil {
		return err
	}
	return n.SendBroadcast(payload)
}

// RunHeartbeat broadcasts NodeStatus every 500ms until ctx is cancelled,
// per §4.7's periodic timer. The caller starts this as a goroutine.
func (n *Node) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.SendNodeStatus(); err != nil {
				logging.L().Error("uavcan: heartbeat send failed", "error", err)
				continue
			}
			metrics.IncHeartbeat()
		}
	}
}

// RunTransferPurge periodically drops stale in-flight reassembly buffers
// until ctx is cancelled. The caller starts this as a goroutine.
func (n *Node) RunTransferPurge(ctx context.Context, interval, timeout time.Duration) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = transfer.DefaultTimeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.PurgeStaleTransfers(timeout)
		}
	}
}
