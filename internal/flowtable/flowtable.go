// Package flowtable matches TCP SYNs with their SYN-ACKs to measure
// connection setup latency.
package flowtable

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"firestige.xyz/flat/internal/core"
)

const (
	DefaultTTL             = 10 * time.Second
	DefaultCleanupInterval = 10 * time.Second
)

// Config configures a Table. Zero values select the defaults.
type Config struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

type pending struct {
	timestamp uint64
	mss       uint16
}

// Table holds SYNs awaiting their SYN-ACK. Entries older than the TTL are
// pruned by the cache janitor in wall time. A replay runs faster than the
// trace, so a match is also refused when the record timestamps lie more
// than the TTL apart.
type Table struct {
	entries *cache.Cache
	ttl     time.Duration

	inserted atomic.Uint64
	matched  atomic.Uint64
	evicted  atomic.Uint64
}

// Stats is a snapshot of table counters.
type Stats struct {
	Pending  int    `json:"pending"`
	Inserted uint64 `json:"inserted"`
	Matched  uint64 `json:"matched"`
	Expired  uint64 `json:"expired"`
}

// New creates a table.
func New(cfg Config) *Table {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}

	t := &Table{entries: cache.New(cfg.TTL, cfg.CleanupInterval), ttl: cfg.TTL}
	// Fires for expiry and for the Delete on a match.
	t.entries.OnEvicted(func(string, any) { t.evicted.Add(1) })
	return t
}

// Observe feeds one record into the table. A SYN without ACK opens a
// pending handshake under its forward key. A SYN-ACK closes the pending
// handshake under the reverse key and returns it. UDP never matches.
func (t *Table) Observe(rec core.FlowRecord) (core.Handshake, bool) {
	if rec.Protocol != core.ProtocolTCP || !rec.SYN {
		return core.Handshake{}, false
	}

	if !rec.ACK {
		key := flowKey(rec.SrcIP, rec.SrcPort, rec.DstIP, rec.DstPort)
		t.entries.SetDefault(key, pending{timestamp: rec.Timestamp, mss: rec.MSS})
		t.inserted.Add(1)
		return core.Handshake{}, false
	}

	key := flowKey(rec.DstIP, rec.DstPort, rec.SrcIP, rec.SrcPort)
	v, ok := t.entries.Get(key)
	if !ok {
		return core.Handshake{}, false
	}
	syn := v.(pending)
	t.entries.Delete(key)
	if rec.Timestamp > syn.timestamp && time.Duration(rec.Timestamp-syn.timestamp) > t.ttl {
		// Counted as expired: evicted without a match.
		return core.Handshake{}, false
	}
	t.matched.Add(1)

	hs := core.Handshake{
		Client:    rec.Dst(),
		Server:    rec.Src(),
		Protocol:  rec.Protocol,
		ClientMSS: syn.mss,
		ServerMSS: rec.MSS,
	}
	if rec.Timestamp > syn.timestamp {
		hs.RTT = time.Duration(rec.Timestamp - syn.timestamp)
	}
	return hs, true
}

// Len returns the number of pending handshakes, including expired entries
// the janitor has not pruned yet.
func (t *Table) Len() int {
	return t.entries.ItemCount()
}

// Flush drops every pending handshake.
func (t *Table) Flush() {
	t.entries.Flush()
}

// Stats returns table counters.
func (t *Table) Stats() Stats {
	matched := t.matched.Load()
	evicted := t.evicted.Load()
	var expired uint64
	if evicted > matched {
		expired = evicted - matched
	}
	return Stats{
		Pending:  t.Len(),
		Inserted: t.inserted.Load(),
		Matched:  matched,
		Expired:  expired,
	}
}

// flowKey packs a directed 4-tuple into a map key.
func flowKey(srcIP [16]byte, srcPort uint16, dstIP [16]byte, dstPort uint16) string {
	var b [36]byte
	copy(b[0:16], srcIP[:])
	binary.BigEndian.PutUint16(b[16:18], srcPort)
	copy(b[18:34], dstIP[:])
	binary.BigEndian.PutUint16(b[34:36], dstPort)
	return string(b[:])
}
