package idb

// NoDiscriminant is the discriminant value for packet types that are fully
// identified by (service type, service subtype) alone. The same marker is
// used in the PID table's PID_PI1_VAL column.
const NoDiscriminant = -1

// PacketTypeInfo is the identity record of one packet type.
type PacketTypeInfo struct {
	ServiceType    int
	ServiceSubtype int
	PI1            int // NoDiscriminant when unused
	SPID           int64
	TPSD           int64 // -1 for packets without a variable section
	Description    string
}

// IsVariable reports whether the packet carries a variable-length section
// described by VPD rows rather than fixed PLF offsets.
func (i PacketTypeInfo) IsVariable() bool { return i.TPSD != -1 }

// PI1Position tells where the discriminant lives inside a raw packet.
type PI1Position struct {
	ByteOffset int // from the start of the source packet
	BitWidth   int
}

// ParameterKind selects which addressing scheme of a ParameterInfo is
// populated.
type ParameterKind int

const (
	// Static parameters carry an absolute byte+bit offset from the start
	// of the packet data field.
	Static ParameterKind = iota
	// Variable parameters carry an ordinal position and a signed bit
	// shift relative to the end of the previous field.
	Variable
)

// ParameterInfo describes one field of a packet. Exactly one addressing
// scheme is meaningful, selected by Kind; the other scheme's fields are zero.
type ParameterInfo struct {
	Name        string
	Description string
	SType       string // resolved stream type letter: U, I, T, O
	Width       int    // bit width on the wire
	PTC         int
	PFC         int
	Curtx       string // calibration reference, empty when uncalibrated
	Categ       string // calibration category: N numeric, S status
	Unit        string

	Kind ParameterKind

	// Static addressing.
	ByteOffset int
	BitOffset  int

	// Variable addressing.
	Position  int
	BitShift  int // relative to the end of the previous field, may be negative
	GroupSize int // >0 opens a repeat group counted by this field's decoded value
}

// IsCalibrated reports whether the parameter declares a calibration
// reference.
func (p *ParameterInfo) IsCalibrated() bool { return p.Curtx != "" }

// StructureNode is one node of a packet's parameter layout tree. The root
// carries the name "top" and no parameter. Trees are shared across parses
// and must be treated as immutable; runtime repeat counts live in the
// parser, not here.
type StructureNode struct {
	Name     string
	Param    *ParameterInfo // nil on the root
	Children []*StructureNode
}

// Walk calls fn for every parameter-bearing node in depth-first order.
func (n *StructureNode) Walk(fn func(*StructureNode)) {
	if n.Param != nil {
		fn(n)
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}
