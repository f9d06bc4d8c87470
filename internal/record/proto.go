package record

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"firestige.xyz/flat/internal/core"
)

// Field numbers of the FlowEvent protobuf message:
//
//	message FlowEvent {
//	  string node_id = 1;
//	  bytes src_ip = 2;  bytes dst_ip = 3;
//	  uint32 src_port = 4; uint32 dst_port = 5;
//	  uint32 protocol = 6; uint32 ttl = 7;
//	  bool syn = 8; bool ack = 9;
//	  fixed64 timestamp_ns = 10;
//	  uint32 mss = 11;
//	  Handshake handshake = 12;
//	}
//	message Handshake {
//	  int64 rtt_ns = 1; uint32 client_mss = 2; uint32 server_mss = 3;
//	}
const (
	fieldNodeID    protowire.Number = 1
	fieldSrcIP     protowire.Number = 2
	fieldDstIP     protowire.Number = 3
	fieldSrcPort   protowire.Number = 4
	fieldDstPort   protowire.Number = 5
	fieldProtocol  protowire.Number = 6
	fieldTTL       protowire.Number = 7
	fieldSYN       protowire.Number = 8
	fieldACK       protowire.Number = 9
	fieldTimestamp protowire.Number = 10
	fieldMSS       protowire.Number = 11
	fieldHandshake protowire.Number = 12

	fieldRTT       protowire.Number = 1
	fieldClientMSS protowire.Number = 2
	fieldServerMSS protowire.Number = 3
)

// MarshalProto encodes ev as a FlowEvent protobuf message. Zero scalars are
// omitted, as proto3 does.
func MarshalProto(ev *core.FlowEvent) []byte {
	rec := &ev.Record
	b := make([]byte, 0, 96)

	if ev.NodeID != "" {
		b = protowire.AppendTag(b, fieldNodeID, protowire.BytesType)
		b = protowire.AppendString(b, ev.NodeID)
	}
	b = protowire.AppendTag(b, fieldSrcIP, protowire.BytesType)
	b = protowire.AppendBytes(b, rec.SrcIP[:])
	b = protowire.AppendTag(b, fieldDstIP, protowire.BytesType)
	b = protowire.AppendBytes(b, rec.DstIP[:])
	b = appendUint(b, fieldSrcPort, uint64(rec.SrcPort))
	b = appendUint(b, fieldDstPort, uint64(rec.DstPort))
	b = appendUint(b, fieldProtocol, uint64(rec.Protocol))
	b = appendUint(b, fieldTTL, uint64(rec.TTL))
	b = appendUint(b, fieldSYN, protowire.EncodeBool(rec.SYN))
	b = appendUint(b, fieldACK, protowire.EncodeBool(rec.ACK))
	if rec.Timestamp != 0 {
		b = protowire.AppendTag(b, fieldTimestamp, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, rec.Timestamp)
	}
	b = appendUint(b, fieldMSS, uint64(rec.MSS))

	if hs := ev.Handshake; hs != nil {
		var inner []byte
		inner = appendUint(inner, fieldRTT, uint64(hs.RTT))
		inner = appendUint(inner, fieldClientMSS, uint64(hs.ClientMSS))
		inner = appendUint(inner, fieldServerMSS, uint64(hs.ServerMSS))
		b = protowire.AppendTag(b, fieldHandshake, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	return b
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// UnmarshalProto decodes a FlowEvent message. Unknown fields are skipped.
func UnmarshalProto(b []byte, ev *core.FlowEvent) error {
	*ev = core.FlowEvent{}
	rec := &ev.Record

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("flow event: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && num != fieldHandshake:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("flow event field %d: %w", num, protowire.ParseError(m))
			}
			switch num {
			case fieldNodeID:
				ev.NodeID = string(v)
			case fieldSrcIP:
				copy(rec.SrcIP[:], v)
			case fieldDstIP:
				copy(rec.DstIP[:], v)
			}
			n = m
		case typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("flow event handshake: %w", protowire.ParseError(m))
			}
			hs, err := unmarshalHandshake(v)
			if err != nil {
				return err
			}
			ev.Handshake = hs
			n = m
		case typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("flow event field %d: %w", num, protowire.ParseError(m))
			}
			switch num {
			case fieldSrcPort:
				rec.SrcPort = uint16(v)
			case fieldDstPort:
				rec.DstPort = uint16(v)
			case fieldProtocol:
				rec.Protocol = uint8(v)
			case fieldTTL:
				rec.TTL = uint8(v)
			case fieldSYN:
				rec.SYN = protowire.DecodeBool(v)
			case fieldACK:
				rec.ACK = protowire.DecodeBool(v)
			case fieldMSS:
				rec.MSS = uint16(v)
			}
			n = m
		case typ == protowire.Fixed64Type && num == fieldTimestamp:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return fmt.Errorf("flow event timestamp: %w", protowire.ParseError(m))
			}
			rec.Timestamp = v
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("flow event field %d: %w", num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}

	// Endpoints are not carried on the wire: the SYN-ACK record names the
	// server as source.
	if hs := ev.Handshake; hs != nil {
		hs.Server = rec.Src()
		hs.Client = rec.Dst()
		hs.Protocol = rec.Protocol
	}
	return nil
}

func unmarshalHandshake(b []byte) (*core.Handshake, error) {
	hs := &core.Handshake{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("handshake: %w", protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("handshake field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		v, m := protowire.ConsumeVarint(b)
		if m < 0 {
			return nil, fmt.Errorf("handshake field %d: %w", num, protowire.ParseError(m))
		}
		switch num {
		case fieldRTT:
			hs.RTT = time.Duration(v)
		case fieldClientMSS:
			hs.ClientMSS = uint16(v)
		case fieldServerMSS:
			hs.ServerMSS = uint16(v)
		}
		b = b[m:]
	}
	return hs, nil
}
