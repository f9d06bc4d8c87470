// Package record encodes flow records for the ring and for reporters.
//
// The binary form is the fixed 56-byte layout shared with the kernel
// program: addresses and ports in network order, timestamp and MSS in host
// (little-endian) order, six bytes of zero padding.
package record

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/flat/internal/core"
)

// Size is the encoded length of one record.
const Size = 56

const (
	offSrcIP     = 0
	offDstIP     = 16
	offSrcPort   = 32
	offDstPort   = 34
	offProtocol  = 36
	offTTL       = 37
	offSYN       = 38
	offACK       = 39
	offTimestamp = 40
	offMSS       = 48
	offPadding   = 50
)

// PutBinary writes rec into b, which must hold at least Size bytes.
func PutBinary(b []byte, rec *core.FlowRecord) {
	_ = b[Size-1]
	copy(b[offSrcIP:offDstIP], rec.SrcIP[:])
	copy(b[offDstIP:offSrcPort], rec.DstIP[:])
	binary.BigEndian.PutUint16(b[offSrcPort:], rec.SrcPort)
	binary.BigEndian.PutUint16(b[offDstPort:], rec.DstPort)
	b[offProtocol] = rec.Protocol
	b[offTTL] = rec.TTL
	b[offSYN] = boolByte(rec.SYN)
	b[offACK] = boolByte(rec.ACK)
	binary.LittleEndian.PutUint64(b[offTimestamp:], rec.Timestamp)
	binary.LittleEndian.PutUint16(b[offMSS:], rec.MSS)
	clear(b[offPadding:Size])
}

// AppendBinary appends the encoded record to b.
func AppendBinary(b []byte, rec *core.FlowRecord) []byte {
	n := len(b)
	b = append(b, make([]byte, Size)...)
	PutBinary(b[n:], rec)
	return b
}

// ReadBinary decodes one record from the start of b.
func ReadBinary(b []byte, rec *core.FlowRecord) error {
	if len(b) < Size {
		return fmt.Errorf("%w: got %d bytes, need %d", core.ErrShortRecord, len(b), Size)
	}
	copy(rec.SrcIP[:], b[offSrcIP:offDstIP])
	copy(rec.DstIP[:], b[offDstIP:offSrcPort])
	rec.SrcPort = binary.BigEndian.Uint16(b[offSrcPort:])
	rec.DstPort = binary.BigEndian.Uint16(b[offDstPort:])
	rec.Protocol = b[offProtocol]
	rec.TTL = b[offTTL]
	rec.SYN = b[offSYN] != 0
	rec.ACK = b[offACK] != 0
	rec.Timestamp = binary.LittleEndian.Uint64(b[offTimestamp:])
	rec.MSS = binary.LittleEndian.Uint16(b[offMSS:])
	return nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
