// Package ringbuf implements the bounded record ring between the emitter
// and the consumer.
//
// The ring is a fixed array of slots with per-slot sequence numbers.
// Producers claim a slot with a CAS on the head, fill it in place and then
// publish it with a single store of the slot sequence. A claimed slot is
// published either committed or discarded; consumers skip discarded slots.
// Reserve never blocks: a full ring fails the reservation immediately.
// ReserveWait is the lossless variant for producers that can afford to
// wait, such as a file replay.
package ringbuf

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"

	"firestige.xyz/flat/internal/core"
	"firestige.xyz/flat/internal/record"
)

const (
	// DefaultCapacity matches the 512 KiB ring of the kernel program.
	DefaultCapacity = 512 << 10

	// slotHeaderLen is the per-record header the kernel ring accounts for.
	slotHeaderLen = 8
	// SlotSize is the capacity one record consumes.
	SlotSize = record.Size + slotHeaderLen
)

const (
	stateCommitted uint32 = iota + 1
	stateDiscarded
)

type slot struct {
	seq   atomic.Uint64
	state uint32
	rec   core.FlowRecord
}

// Ring is a bounded multi-producer multi-consumer record queue.
type Ring struct {
	slots []slot
	mask  uint64

	_    [56]byte
	head atomic.Uint64
	_    [56]byte
	tail atomic.Uint64
	_    [56]byte

	notify    chan struct{}
	space     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	parkedReaders   atomic.Int32
	parkedProducers atomic.Int32

	reserved  atomic.Uint64
	committed atomic.Uint64
	discarded atomic.Uint64
	dropped   atomic.Uint64
}

// Stats is a snapshot of ring counters.
type Stats struct {
	Slots     int    `json:"slots"`
	Depth     int    `json:"depth"`
	Reserved  uint64 `json:"reserved"`
	Committed uint64 `json:"committed"`
	Discarded uint64 `json:"discarded"`
	Dropped   uint64 `json:"dropped"`
}

// New creates a ring holding capacity bytes worth of records. The slot count
// is capacity/SlotSize rounded down to a power of two.
func New(capacity int) (*Ring, error) {
	n := capacity / SlotSize
	if n < 2 {
		return nil, fmt.Errorf("%w: ring capacity %d bytes holds fewer than 2 records", core.ErrConfigInvalid, capacity)
	}
	n = 1 << (bits.Len(uint(n)) - 1)

	r := &Ring{
		slots:  make([]slot, n),
		mask:   uint64(n - 1),
		notify: make(chan struct{}, 1),
		space:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for i := range r.slots {
		r.slots[i].seq.Store(uint64(i))
	}
	return r, nil
}

// Slots returns the number of record slots.
func (r *Ring) Slots() int {
	return len(r.slots)
}

// Reserve claims the next free slot. The returned reservation must be
// committed or discarded; until then consumers stop at this slot.
func (r *Ring) Reserve() (Reservation, error) {
	res, err := r.reserve()
	if errors.Is(err, core.ErrRingFull) {
		r.dropped.Add(1)
	}
	return res, err
}

// ReserveWait is Reserve without drops: on a full ring it parks until a
// reader frees a slot. It fails only once the ring is closed.
func (r *Ring) ReserveWait() (Reservation, error) {
	for {
		res, err := r.reserve()
		if !errors.Is(err, core.ErrRingFull) {
			return res, err
		}

		r.parkedProducers.Add(1)
		// A slot freed before the park was announced sent no signal.
		if res, err = r.reserve(); !errors.Is(err, core.ErrRingFull) {
			r.parkedProducers.Add(-1)
			return res, err
		}
		select {
		case <-r.space:
		case <-r.done:
		}
		r.parkedProducers.Add(-1)

		res, err = r.reserve()
		if err == nil {
			// One signal may stand for several freed slots.
			if r.parkedProducers.Load() > 0 {
				signal(r.space)
			}
			return res, nil
		}
		if !errors.Is(err, core.ErrRingFull) {
			return res, err
		}
	}
}

func (r *Ring) reserve() (Reservation, error) {
	if r.closed.Load() {
		return Reservation{}, core.ErrRingClosed
	}

	pos := r.head.Load()
	for {
		s := &r.slots[pos&r.mask]
		seq := s.seq.Load()

		switch diff := int64(seq - pos); {
		case diff == 0:
			if r.head.CompareAndSwap(pos, pos+1) {
				s.rec = core.FlowRecord{}
				r.reserved.Add(1)
				return Reservation{ring: r, slot: s, pos: pos}, nil
			}
			pos = r.head.Load()
		case diff < 0:
			return Reservation{}, core.ErrRingFull
		default:
			pos = r.head.Load()
		}
	}
}

// TryRead returns the next committed record without blocking. ok is false
// when no published slot is available.
func (r *Ring) TryRead() (rec core.FlowRecord, ok bool) {
	pos := r.tail.Load()
	for {
		s := &r.slots[pos&r.mask]
		seq := s.seq.Load()

		switch diff := int64(seq - (pos + 1)); {
		case diff == 0:
			if !r.tail.CompareAndSwap(pos, pos+1) {
				pos = r.tail.Load()
				continue
			}
			state := s.state
			rec = s.rec
			s.seq.Store(pos + r.mask + 1)
			if r.parkedProducers.Load() > 0 {
				signal(r.space)
			}
			if state == stateDiscarded {
				pos++
				continue
			}
			return rec, true
		case diff < 0:
			return core.FlowRecord{}, false
		default:
			pos = r.tail.Load()
		}
	}
}

// Read blocks until a committed record is available, ctx is done, or the
// ring is closed and drained. Any number of goroutines may Read.
func (r *Ring) Read(ctx context.Context) (core.FlowRecord, error) {
	for {
		if rec, ok := r.TryRead(); ok {
			r.handOff()
			return rec, nil
		}

		r.parkedReaders.Add(1)
		// A commit that landed before the park was announced may have
		// woken nobody.
		if rec, ok := r.TryRead(); ok {
			r.parkedReaders.Add(-1)
			r.handOff()
			return rec, nil
		}
		select {
		case <-ctx.Done():
			r.parkedReaders.Add(-1)
			return core.FlowRecord{}, ctx.Err()
		case <-r.notify:
			r.parkedReaders.Add(-1)
		case <-r.done:
			r.parkedReaders.Add(-1)
			if rec, ok := r.TryRead(); ok {
				return rec, nil
			}
			return core.FlowRecord{}, core.ErrRingClosed
		}
	}
}

// handOff passes the wake-up on after a successful read: one notify may
// stand for a burst of commits while several readers are parked.
func (r *Ring) handOff() {
	if r.parkedReaders.Load() > 0 && r.Len() > 0 {
		r.wake()
	}
}

// Close stops further reservations. Readers drain what was published and
// then receive ErrRingClosed.
func (r *Ring) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.done)
	})
	return nil
}

// Len approximates the number of claimed but unread slots.
func (r *Ring) Len() int {
	head, tail := r.head.Load(), r.tail.Load()
	if head < tail {
		return 0
	}
	return int(head - tail)
}

// Stats returns a snapshot of the ring counters.
func (r *Ring) Stats() Stats {
	return Stats{
		Slots:     len(r.slots),
		Depth:     r.Len(),
		Reserved:  r.reserved.Load(),
		Committed: r.committed.Load(),
		Discarded: r.discarded.Load(),
		Dropped:   r.dropped.Load(),
	}
}

func (r *Ring) wake() {
	signal(r.notify)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
