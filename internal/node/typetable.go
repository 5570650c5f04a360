package node

import "github.com/kstaniek/go-uavcan-node/internal/dsdl"

// TypeTable is the node's view of the external DSDL parser's registry: for
// every message and service data-type ID a node must recognize, the
// *dsdl.CompoundType that describes its wire shape. It plays the role of
// the source's process-wide `uavcan.DATATYPES` dictionary, but is an
// explicit object owned by (or shared read-only across) a Node rather than
// a package-level global.
type TypeTable struct {
	messages map[uint16]*dsdl.CompoundType
	services map[uint16]*dsdl.CompoundType
}

// NewTypeTable returns an empty table.
func NewTypeTable() *TypeTable {
	return &TypeTable{
		messages: make(map[uint16]*dsdl.CompoundType),
		services: make(map[uint16]*dsdl.CompoundType),
	}
}

// RegisterMessage adds a message-kind compound type, keyed by its default
// data-type ID.
func (t *TypeTable) RegisterMessage(ct *dsdl.CompoundType) {
	t.messages[ct.DefaultDTID] = ct
}

// RegisterService adds a service-kind compound type, keyed by its default
// data-type ID.
func (t *TypeTable) RegisterService(ct *dsdl.CompoundType) {
	t.services[ct.DefaultDTID] = ct
}

// Lookup finds the compound type for dtid under the given kind.
func (t *TypeTable) Lookup(dtid uint16, kind dsdl.CompoundKind) (*dsdl.CompoundType, bool) {
	if kind == dsdl.KindService {
		ct, ok := t.services[dtid]
		return ct, ok
	}
	ct, ok := t.messages[dtid]
	return ct, ok
}
