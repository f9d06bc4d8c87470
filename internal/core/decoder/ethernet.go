// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"firestige.xyz/flat/internal/core"
)

const (
	// Ethernet constants
	ethernetHeaderLen = 14

	// EtherType values
	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD
)

// decodeEthernet returns the EtherType of an untagged Ethernet frame.
// VLAN-tagged frames are reported with their tag EtherType and are not
// unwound.
func decodeEthernet(frame []byte) (uint16, error) {
	if !fits(frame, 0, ethernetHeaderLen) {
		return 0, core.ErrPacketTooShort
	}
	return binary.BigEndian.Uint16(frame[12:14]), nil
}
