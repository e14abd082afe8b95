package protocol

import "github.com/rgat-io/tracevis/internal/model"

// TagRecord is a decoded `j` record: one block execution plus the
// address of whatever follows it.
type TagRecord struct {
	BlockAddr uint64
	NextBlock uint64
	InsCount  uint32
	BlockID   model.BlockID
}

// LoopStartRecord is a decoded loop-start marker.
type LoopStartRecord struct {
	Count uint64
}

// LoopEndRecord is a decoded loop-end marker.
type LoopEndRecord struct{}

// ArgEncoding is the one-byte marker on an ARG record's payload.
type ArgEncoding uint8

const (
	ArgEncodingRaw ArgEncoding = iota
	ArgEncodingBase64
)

// ArgRecord is a decoded `ARG` record.
type ArgRecord struct {
	ArgPos   int
	FuncPC   uint64
	ReturnPC uint64
	More     bool // true for 'M', false for 'E'
	Encoding ArgEncoding
	Payload  []byte
}

// UnchainedLinkRecord is a decoded `UL` record: rebind lastVertID to the
// source block's last instruction, then build and run a fresh tag for
// the target block.
type UnchainedLinkRecord struct {
	SourceAddr uint64
	SourceID   model.BlockID
	TargetAddr uint64
	InsCount   uint32
	TargetID   model.BlockID
}

// BlockRepeatTarget is one of a BX record's trailing (target, blockID)
// pairs.
type BlockRepeatTarget struct {
	Addr uint64
	ID   model.BlockID
}

// BlockRepeatRecord is a decoded `BX` record.
type BlockRepeatRecord struct {
	BlockAddr  uint64
	InsCount   uint32
	BlockID    model.BlockID
	TotalExecs uint64
	Targets    []BlockRepeatTarget
}

// PendingEdgeRecord is a decoded `SAT` record.
type PendingEdgeRecord struct {
	SrcAddr uint64
	SrcID   model.BlockID
	TgtAddr uint64
	TgtID   model.BlockID
}

// ExceptionRecord is a decoded `EXC` record.
type ExceptionRecord struct {
	IP    uint64
	Code  uint64
	Flags uint64
}
