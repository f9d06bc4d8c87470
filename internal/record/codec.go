package record

import (
	"fmt"
	"strings"

	"firestige.xyz/flat/internal/core"
)

// Format selects a wire encoding for reporters.
type Format string

const (
	FormatJSON   Format = "json"
	FormatBinary Format = "binary"
	FormatProto  Format = "proto"
)

// ParseFormat accepts json, binary or proto (case-insensitive). An empty
// string selects json.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatBinary, FormatProto:
		return f, nil
	default:
		return "", fmt.Errorf("unknown record format %q (must be json, binary or proto)", s)
	}
}

// Encode serializes ev in format f. The binary format carries the record
// only; node and handshake are dropped.
func (f Format) Encode(ev *core.FlowEvent) ([]byte, error) {
	switch f {
	case FormatJSON, "":
		return MarshalJSON(ev)
	case FormatBinary:
		return AppendBinary(nil, &ev.Record), nil
	case FormatProto:
		return MarshalProto(ev), nil
	default:
		return nil, fmt.Errorf("unknown record format %q", string(f))
	}
}

// ContentType returns the MIME type carried in message headers.
func (f Format) ContentType() string {
	switch f {
	case FormatBinary:
		return "application/x-flat-record"
	case FormatProto:
		return "application/x-protobuf"
	default:
		return "application/json"
	}
}
