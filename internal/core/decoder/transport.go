// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"firestige.xyz/flat/internal/core"
)

const (
	udpHeaderLen    = 8
	tcpHeaderMinLen = 20

	// TCP flags (byte 13)
	tcpFlagSYN = 0x02
	tcpFlagACK = 0x10
)

// classifyL4 decodes the TCP or UDP header at l4off and fills ports, flags
// and timestamp. For TCP it also returns the header length declared by the
// data offset field, so the caller can locate the options region.
//
// TCP and UDP share port-field extraction; TCP additionally gates on SYN.
// Only handshake segments are significant: a TCP segment without SYN yields
// ErrNotSignificant and no record.
func classifyL4(frame []byte, l4off int, now func() uint64, rec *core.FlowRecord) (int, error) {
	var headerLen, tcpLen int
	switch rec.Protocol {
	case core.ProtocolTCP:
		headerLen = tcpHeaderMinLen
	case core.ProtocolUDP:
		headerLen = udpHeaderLen
	default:
		return 0, core.ErrUnsupportedProto
	}
	if !fits(frame, l4off, headerLen) {
		return 0, core.ErrPacketTooShort
	}
	l4 := frame[l4off : l4off+headerLen]

	if rec.Protocol == core.ProtocolTCP {
		flags := l4[13]
		if flags&tcpFlagSYN == 0 {
			return 0, core.ErrNotSignificant
		}
		rec.SYN = true
		rec.ACK = flags&tcpFlagACK != 0
		// Data offset (upper 4 bits of byte 12), in 32-bit words
		tcpLen = int(l4[12]>>4) * 4
	}

	rec.SrcPort = binary.BigEndian.Uint16(l4[0:2])
	rec.DstPort = binary.BigEndian.Uint16(l4[2:4])
	rec.Timestamp = now()

	return tcpLen, nil
}
