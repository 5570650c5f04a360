package node

import (
	"github.com/kstaniek/go-uavcan-node/internal/dsdl"
	"github.com/kstaniek/go-uavcan-node/internal/frame"
	"github.com/kstaniek/go-uavcan-node/internal/logging"
	"github.com/kstaniek/go-uavcan-node/internal/transfer"
)

// Handler is the uniform shape every registered message or service
// handler presents to the dispatch loop once instantiated for a
// particular inbound transfer.
type Handler interface {
	Execute()
}

// Factory builds a Handler for one inbound transfer. It is called once
// per matching completed transfer, with a freshly unpacked payload value.
type Factory func(payload *dsdl.CompoundValue, tr *transfer.Transfer, n *Node) Handler

// Registration pairs a data type with the factory that handles it, in the
// node's handler_registry order — the first matching registration wins.
type Registration struct {
	Type    *dsdl.CompoundType
	Factory Factory
}

// MessageHandler is the base shape for a plain broadcast/unicast message
// handler: OnMessage runs once and nothing is sent back.
type MessageHandler struct {
	Message   *dsdl.CompoundValue
	Transfer  *transfer.Transfer
	Node      *Node
	onMessage func(msg *dsdl.CompoundValue, tr *transfer.Transfer, n *Node)
}

func (h *MessageHandler) Execute() {
	if h.onMessage != nil {
		h.onMessage(h.Message, h.Transfer, h.Node)
	}
}

// NewMessageHandler returns a Factory that invokes onMessage once per
// received transfer of the registered type.
func NewMessageHandler(onMessage func(msg *dsdl.CompoundValue, tr *transfer.Transfer, n *Node)) Factory {
	return func(payload *dsdl.CompoundValue, tr *transfer.Transfer, n *Node) Handler {
		return &MessageHandler{Message: payload, Transfer: tr, Node: n, onMessage: onMessage}
	}
}

// ServiceHandler is the base shape for a service handler: OnRequest
// populates Response, and a response transfer is sent automatically on
// completion, reusing the request's transfer-id and swapping source/dest
// — spec.md §4.7's "service handlers automatically send a response frame"
// rule. OnRequest is required to run synchronously to completion before
// the response is emitted (see the Open Question decision on service
// handler suspension in SPEC_FULL.md); a handler needing to block should
// do so on its own goroutine and feed results back through whatever the
// embedding application's loop selects on.
type ServiceHandler struct {
	Request   *dsdl.CompoundValue
	Response  *dsdl.CompoundValue
	Transfer  *transfer.Transfer
	Node      *Node
	onRequest func(h *ServiceHandler)
}

func (h *ServiceHandler) Execute() {
	if h.onRequest != nil {
		h.onRequest(h)
	}
	if h.Response == nil {
		logging.L().Error("uavcan: service handler has no response value to send")
		return
	}
	if err := h.Node.sendResponse(h); err != nil {
		logging.L().Error("uavcan: failed to send service response", "error", err)
	}
}

// NewServiceHandler returns a Factory that builds the response container
// (TAO-eligible, matching the request's compound type) and invokes
// onRequest to populate it.
func NewServiceHandler(onRequest func(h *ServiceHandler)) Factory {
	return func(payload *dsdl.CompoundValue, tr *transfer.Transfer, n *Node) Handler {
		resp, err := dsdl.NewCompoundValue(payload.Type, "response", true)
		if err != nil {
			logging.L().Error("uavcan: failed to build service response value", "error", err)
			resp = nil
		}
		return &ServiceHandler{Request: payload, Response: resp, Transfer: tr, Node: n, onRequest: onRequest}
	}
}

// Service is a convenience constructor for a Registration over a service
// type, so callers don't thread dsdl.KindService through by hand.
func Service(ct *dsdl.CompoundType, onRequest func(h *ServiceHandler)) Registration {
	return Registration{Type: ct, Factory: NewServiceHandler(onRequest)}
}

// Message is a convenience constructor for a Registration over a message
// type.
func Message(ct *dsdl.CompoundType, onMessage func(msg *dsdl.CompoundValue, tr *transfer.Transfer, n *Node)) Registration {
	return Registration{Type: ct, Factory: NewMessageHandler(onMessage)}
}
