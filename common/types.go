package common

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// NodeType tags the seven node kinds forming the arena (§3.2).
type NodeType byte

const (
	NodeCon NodeType = iota
	NodeVal
	NodeObj
	NodeVec
	NodeStr
	NodeBin
	NodeArr
)

// String renders the short json-joy node-kind name.
func (n NodeType) String() string {
	switch n {
	case NodeCon:
		return "con"
	case NodeVal:
		return "val"
	case NodeObj:
		return "obj"
	case NodeVec:
		return "vec"
	case NodeStr:
		return "str"
	case NodeBin:
		return "bin"
	case NodeArr:
		return "arr"
	default:
		return "unknown"
	}
}

// OpKind enumerates the sixteen live operation kinds (§3.4), assigned to
// opcodes 0-15 in table order; opcodes 16-25 are reserved for future kinds
// and decode as OpUnknown.
type OpKind byte

const (
	OpNewCon OpKind = iota
	OpNewVal
	OpNewObj
	OpNewVec
	OpNewStr
	OpNewBin
	OpNewArr
	OpInsVal
	OpInsObj
	OpInsVec
	OpInsStr
	OpInsBin
	OpInsArr
	OpUpdArr
	OpDel
	OpNop
	opLiveCount // sentinel: number of live opcodes
	OpUnknown   = 0xFF
)

// String renders the op kind's canonical name.
func (k OpKind) String() string {
	names := [...]string{
		"NewCon", "NewVal", "NewObj", "NewVec", "NewStr", "NewBin", "NewArr",
		"InsVal", "InsObj", "InsVec", "InsStr", "InsBin", "InsArr", "UpdArr",
		"Del", "Nop",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// IsConstructor reports whether k is one of the seven node-constructor ops.
func (k OpKind) IsConstructor() bool { return k <= OpNewArr }

// EncodingFormat names a wire shape a Model can be serialised to.
type EncodingFormat string

const (
	EncodingStructuralBinary EncodingFormat = "structural-binary"
	EncodingCompactJSON      EncodingFormat = "compact-json"
	EncodingSidecar          EncodingFormat = "sidecar"
	EncodingIndexed          EncodingFormat = "indexed"
)

// NewSessionID mints a fresh, probabilistically unique session id by folding
// a UUIDv7's time-ordered bytes into a uint64. The wire-level SID stays a
// plain u64 per §3.1; this is purely a convenience for bootstrapping demo or
// test sessions that don't already have one assigned.
func NewSessionID() uint64 {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	b := id[:]
	sid := binary.BigEndian.Uint64(b[:8])
	if sid == SidSystem || sid == SidServer {
		sid += 2
	}
	return sid
}
