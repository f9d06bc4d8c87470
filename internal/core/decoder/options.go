// Package decoder implements protocol decoding.
package decoder

const (
	tcpOptEOL = 0 // End of option list
	tcpOptNOP = 1 // Padding, RFC 793 section 3.1
	tcpOptMSS = 2 // Maximum segment size

	tcpOptLenMSS = 4

	// maxOptionsLen is the largest options region a 4-bit data offset
	// can declare: 15 words minus the fixed header.
	maxOptionsLen = 15*4 - tcpHeaderMinLen
)

// StopReason tells why an option scan ended.
type StopReason uint8

const (
	StopEnd       StopReason = iota // declared options length consumed
	StopEOL                         // End-of-List option
	StopTruncated                   // option runs past the captured bytes
	StopMalformed                   // length field < 2 or beyond the declared region
)

func (s StopReason) String() string {
	switch s {
	case StopEnd:
		return "end"
	case StopEOL:
		return "eol"
	case StopTruncated:
		return "truncated"
	case StopMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// OptionScan is the result of ScanOptions.
type OptionScan struct {
	MSS   uint16 // 0 when absent
	Steps int    // option-level decisions taken
	Stop  StopReason
}

// ScanOptions walks a TCP options region and extracts the MSS option.
//
// opts holds the captured bytes following the fixed TCP header and may be
// shorter than declared, the length announced by the data offset. Every
// iteration consumes at least one declared byte, so the scan takes at most
// declared steps. A non-zero ceiling caps the reported MSS; an MSS of 0 on
// the wire is treated as absent. The scan never fails: it stops and returns
// whatever it found so far.
func ScanOptions(opts []byte, declared int, ceiling uint16) OptionScan {
	if declared > maxOptionsLen {
		declared = maxOptionsLen
	}

	var res OptionScan
	c := cursor{buf: opts}
	remaining := declared

	for remaining > 0 {
		if !c.has(1) {
			res.Stop = StopTruncated
			return res
		}
		res.Steps++
		kind := c.u8()

		switch kind {
		case tcpOptEOL:
			res.Stop = StopEOL
			return res
		case tcpOptNOP:
			remaining--
			continue
		}

		if remaining < 2 || !c.has(1) {
			res.Stop = StopTruncated
			return res
		}
		size := int(c.u8())
		if size < 2 || size > remaining {
			res.Stop = StopMalformed
			return res
		}

		if kind == tcpOptMSS && size == tcpOptLenMSS {
			if !c.has(2) {
				res.Stop = StopTruncated
				return res
			}
			if mss := c.peek16(); mss != 0 {
				if ceiling != 0 && ceiling < mss {
					mss = ceiling
				}
				res.MSS = mss
			}
		}

		if !c.skip(size - 2) {
			res.Stop = StopTruncated
			return res
		}
		remaining -= size
	}

	res.Stop = StopEnd
	return res
}
