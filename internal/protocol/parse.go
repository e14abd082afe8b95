package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rgat-io/tracevis/internal/model"
)

const loopMarker = "◆" // '◆'

// Parse decodes one '@'-delimited record into its typed verb value. An
// error here is a malformed record (E2): the caller logs the offending
// token and skips it, it never aborts the process.
func Parse(record string) (interface{}, error) {
	switch {
	case strings.HasPrefix(record, "j"):
		return parseTag(record[1:])
	case strings.HasPrefix(record, loopMarker+"S"):
		return parseLoopStart(record[len(loopMarker)+1:])
	case record == loopMarker+"E":
		return LoopEndRecord{}, nil
	case strings.HasPrefix(record, "ARG "):
		return parseArg(record[len("ARG "):])
	case strings.HasPrefix(record, "UL ,"):
		return parseUnchainedLink(record[len("UL ,"):])
	case strings.HasPrefix(record, "BX ,"):
		return parseBlockRepeat(record[len("BX ,"):])
	case strings.HasPrefix(record, "SAT ,"):
		return parsePendingEdge(record[len("SAT ,"):])
	case strings.HasPrefix(record, "EXC ,"):
		return parseException(record[len("EXC ,"):])
	default:
		return nil, fmt.Errorf("protocol: unrecognized record %q", record)
	}
}

func parseHex(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}

func parseTag(rest string) (TagRecord, error) {
	fields := strings.Split(rest, ",")
	if len(fields) != 3 {
		return TagRecord{}, fmt.Errorf("protocol: malformed j record %q", rest)
	}
	addr, err := parseHex(fields[0])
	if err != nil {
		return TagRecord{}, fmt.Errorf("protocol: j record addr: %w", err)
	}
	next, err := parseHex(fields[1])
	if err != nil {
		return TagRecord{}, fmt.Errorf("protocol: j record next block: %w", err)
	}
	idCount, err := parseHex(fields[2])
	if err != nil {
		return TagRecord{}, fmt.Errorf("protocol: j record id-count: %w", err)
	}
	return TagRecord{
		BlockAddr: addr,
		NextBlock: next,
		InsCount:  uint32(idCount & 0xffffffff),
		BlockID:   model.BlockID(idCount >> 32),
	}, nil
}

func parseLoopStart(rest string) (LoopStartRecord, error) {
	n, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return LoopStartRecord{}, fmt.Errorf("protocol: malformed loop-start count %q", rest)
	}
	return LoopStartRecord{Count: n}, nil
}

func parseArg(rest string) (ArgRecord, error) {
	fields := strings.SplitN(rest, ",", 6)
	if len(fields) != 6 {
		return ArgRecord{}, fmt.Errorf("protocol: malformed ARG record %q", rest)
	}
	pos, err := strconv.Atoi(fields[0])
	if err != nil {
		return ArgRecord{}, fmt.Errorf("protocol: ARG argpos: %w", err)
	}
	funcpc, err := parseHex(fields[1])
	if err != nil {
		return ArgRecord{}, fmt.Errorf("protocol: ARG funcpc: %w", err)
	}
	retpc, err := parseHex(fields[2])
	if err != nil {
		return ArgRecord{}, fmt.Errorf("protocol: ARG retpc: %w", err)
	}
	var more bool
	switch fields[3] {
	case "M":
		more = true
	case "E":
		more = false
	default:
		return ArgRecord{}, fmt.Errorf("protocol: ARG marker must be M or E, got %q", fields[3])
	}
	enc := ArgEncodingRaw
	if fields[4] == "ARG_BASE64" {
		enc = ArgEncodingBase64
	}
	return ArgRecord{
		ArgPos:   pos,
		FuncPC:   funcpc,
		ReturnPC: retpc,
		More:     more,
		Encoding: enc,
		Payload:  []byte(fields[5]),
	}, nil
}

func parseUnchainedLink(rest string) (UnchainedLinkRecord, error) {
	fields := strings.Split(rest, ",")
	if len(fields) != 4 {
		return UnchainedLinkRecord{}, fmt.Errorf("protocol: malformed UL record %q", rest)
	}
	srcAddr, err := parseHex(fields[0])
	if err != nil {
		return UnchainedLinkRecord{}, fmt.Errorf("protocol: UL source addr: %w", err)
	}
	srcIDCount, err := parseHex(fields[1])
	if err != nil {
		return UnchainedLinkRecord{}, fmt.Errorf("protocol: UL source id-count: %w", err)
	}
	tgtAddr, err := parseHex(fields[2])
	if err != nil {
		return UnchainedLinkRecord{}, fmt.Errorf("protocol: UL target addr: %w", err)
	}
	tgtIDCount, err := parseHex(fields[3])
	if err != nil {
		return UnchainedLinkRecord{}, fmt.Errorf("protocol: UL target id-count: %w", err)
	}
	return UnchainedLinkRecord{
		SourceAddr: srcAddr,
		SourceID:   model.BlockID(srcIDCount >> 32),
		TargetAddr: tgtAddr,
		InsCount:   uint32(tgtIDCount & 0xffffffff),
		TargetID:   model.BlockID(tgtIDCount >> 32),
	}, nil
}

func parseBlockRepeat(rest string) (BlockRepeatRecord, error) {
	fields := strings.Split(rest, ",")
	if len(fields) < 3 || (len(fields)-3)%2 != 0 {
		return BlockRepeatRecord{}, fmt.Errorf("protocol: malformed BX record %q", rest)
	}
	addr, err := parseHex(fields[0])
	if err != nil {
		return BlockRepeatRecord{}, fmt.Errorf("protocol: BX addr: %w", err)
	}
	idCount, err := parseHex(fields[1])
	if err != nil {
		return BlockRepeatRecord{}, fmt.Errorf("protocol: BX id-count: %w", err)
	}
	execs, err := parseHex(fields[2])
	if err != nil {
		return BlockRepeatRecord{}, fmt.Errorf("protocol: BX execs: %w", err)
	}
	rec := BlockRepeatRecord{
		BlockAddr:  addr,
		InsCount:   uint32(idCount & 0xffffffff),
		BlockID:    model.BlockID(idCount >> 32),
		TotalExecs: execs,
	}
	for i := 3; i < len(fields); i += 2 {
		targ, err := parseHex(fields[i])
		if err != nil {
			return BlockRepeatRecord{}, fmt.Errorf("protocol: BX target addr: %w", err)
		}
		bid, err := parseHex(fields[i+1])
		if err != nil {
			return BlockRepeatRecord{}, fmt.Errorf("protocol: BX target block id: %w", err)
		}
		rec.Targets = append(rec.Targets, BlockRepeatTarget{Addr: targ, ID: model.BlockID(bid)})
	}
	return rec, nil
}

func parsePendingEdge(rest string) (PendingEdgeRecord, error) {
	fields := strings.Split(rest, ",")
	if len(fields) != 4 {
		return PendingEdgeRecord{}, fmt.Errorf("protocol: malformed SAT record %q", rest)
	}
	srcAddr, err := parseHex(fields[0])
	if err != nil {
		return PendingEdgeRecord{}, fmt.Errorf("protocol: SAT src addr: %w", err)
	}
	srcID, err := parseHex(fields[1])
	if err != nil {
		return PendingEdgeRecord{}, fmt.Errorf("protocol: SAT src id: %w", err)
	}
	tgtAddr, err := parseHex(fields[2])
	if err != nil {
		return PendingEdgeRecord{}, fmt.Errorf("protocol: SAT tgt addr: %w", err)
	}
	tgtID, err := parseHex(fields[3])
	if err != nil {
		return PendingEdgeRecord{}, fmt.Errorf("protocol: SAT tgt id: %w", err)
	}
	return PendingEdgeRecord{
		SrcAddr: srcAddr,
		SrcID:   model.BlockID(srcID),
		TgtAddr: tgtAddr,
		TgtID:   model.BlockID(tgtID),
	}, nil
}

func parseException(rest string) (ExceptionRecord, error) {
	fields := strings.Split(rest, ",")
	if len(fields) != 3 {
		return ExceptionRecord{}, fmt.Errorf("protocol: malformed EXC record %q", rest)
	}
	ip, err := parseHex(fields[0])
	if err != nil {
		return ExceptionRecord{}, fmt.Errorf("protocol: EXC ip: %w", err)
	}
	code, err := parseHex(fields[1])
	if err != nil {
		return ExceptionRecord{}, fmt.Errorf("protocol: EXC code: %w", err)
	}
	flags, err := parseHex(fields[2])
	if err != nil {
		return ExceptionRecord{}, fmt.Errorf("protocol: EXC flags: %w", err)
	}
	return ExceptionRecord{IP: ip, Code: code, Flags: flags}, nil
}
