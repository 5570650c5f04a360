package main

import "github.com/kstaniek/go-uavcan-node/internal/dsdl"

// Demo data type descriptors, standing in for what an external DSDL
// compiler would emit from uavcan.protocol.NodeStatus and
// uavcan.protocol.GetNodeInfo. Signature and BaseCRC values below are
// placeholders: computing the real DSDL signature (a hash over a type's
// normalized definition and the signatures of any nested types) is out of
// scope here, so these are fixed stand-ins rather than derived values.

// nodeStatusType describes uavcan.protocol.NodeStatus (dtid 341), the
// mandatory 500ms heartbeat every node on the bus broadcasts. Its field
// list is a reduced 40-bit stand-in (uptime_sec, status_code,
// vendor_specific_status_code), not the 56-bit health/mode/sub_mode layout.
var nodeStatusType = &dsdl.CompoundType{
	Name:        "uavcan.protocol.NodeStatus",
	DefaultDTID: 341,
	BaseCRC:     0x5C74,
	SubKind:     dsdl.KindMessage,
	Signature:   0x0f0868d0c1a7c6f1,
	Fields: []dsdl.FieldDescriptor{
		{Name: "uptime_sec", Type: dsdl.NewPrimitiveType(32, dsdl.KindUnsignedInt, dsdl.CastSaturated)},
		{Name: "status_code", Type: dsdl.NewPrimitiveType(2, dsdl.KindUnsignedInt, dsdl.CastSaturated)},
		{Name: "vendor_specific_status_code", Type: dsdl.NewPrimitiveType(6, dsdl.KindUnsignedInt, dsdl.CastSaturated)},
	},
	Constants: []dsdl.ConstantDescriptor{
		{Name: "HEALTH_OK", Value: 0},
		{Name: "HEALTH_WARNING", Value: 1},
		{Name: "HEALTH_ERROR", Value: 2},
		{Name: "HEALTH_CRITICAL", Value: 3},
	},
}

// getNodeInfoType describes uavcan.protocol.GetNodeInfo (dtid 1), a service
// with an empty request and a response carrying the node's identity.
var getNodeInfoType = &dsdl.CompoundType{
	Name:        "uavcan.protocol.GetNodeInfo",
	DefaultDTID: 1,
	BaseCRC:     0x8B69,
	SubKind:     dsdl.KindService,
	Signature:   0xee468a8121c46a9e,

	RequestFields: nil,

	ResponseFields: []dsdl.FieldDescriptor{
		{Name: "status", Type: nodeStatusType},
		{Name: "software_version_major", Type: dsdl.NewPrimitiveType(8, dsdl.KindUnsignedInt, dsdl.CastSaturated)},
		{Name: "software_version_minor", Type: dsdl.NewPrimitiveType(8, dsdl.KindUnsignedInt, dsdl.CastSaturated)},
		{Name: "name", Type: &dsdl.ArrayType{
			ValueType: dsdl.NewPrimitiveType(8, dsdl.KindUnsignedInt, dsdl.CastSaturated),
			Mode:      dsdl.ArrayDynamic,
			MaxSize:   80,
		}},
	},
}
