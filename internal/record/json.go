package record

import (
	"encoding/json"
	"time"

	"firestige.xyz/flat/internal/core"
)

type jsonEvent struct {
	NodeID    string         `json:"node_id,omitempty"`
	SrcIP     string         `json:"src_ip"`
	DstIP     string         `json:"dst_ip"`
	SrcPort   uint16         `json:"src_port"`
	DstPort   uint16         `json:"dst_port"`
	Protocol  string         `json:"protocol"`
	TTL       uint8          `json:"ttl"`
	SYN       bool           `json:"syn"`
	ACK       bool           `json:"ack"`
	Timestamp uint64         `json:"timestamp_ns"`
	MSS       uint16         `json:"mss,omitempty"`
	Handshake *jsonHandshake `json:"handshake,omitempty"`
}

type jsonHandshake struct {
	Client    string  `json:"client"`
	Server    string  `json:"server"`
	RTTMillis float64 `json:"rtt_ms"`
	ClientMSS uint16  `json:"client_mss,omitempty"`
	ServerMSS uint16  `json:"server_mss,omitempty"`
}

// MarshalJSON encodes an event with addresses in their textual form.
// IPv4-mapped addresses are printed as plain IPv4.
func MarshalJSON(ev *core.FlowEvent) ([]byte, error) {
	rec := &ev.Record
	out := jsonEvent{
		NodeID:    ev.NodeID,
		SrcIP:     rec.Src().Addr().String(),
		DstIP:     rec.Dst().Addr().String(),
		SrcPort:   rec.SrcPort,
		DstPort:   rec.DstPort,
		Protocol:  rec.ProtocolName(),
		TTL:       rec.TTL,
		SYN:       rec.SYN,
		ACK:       rec.ACK,
		Timestamp: rec.Timestamp,
		MSS:       rec.MSS,
	}
	if hs := ev.Handshake; hs != nil {
		out.Handshake = &jsonHandshake{
			Client:    hs.Client.String(),
			Server:    hs.Server.String(),
			RTTMillis: float64(hs.RTT) / float64(time.Millisecond),
			ClientMSS: hs.ClientMSS,
			ServerMSS: hs.ServerMSS,
		}
	}
	return json.Marshal(out)
}
