package ringbuf

import "firestige.xyz/flat/internal/core"

// Reservation is a claimed ring slot. It is owned by the goroutine that
// reserved it and is finished by exactly one Commit or Discard.
type Reservation struct {
	ring *Ring
	slot *slot
	pos  uint64
}

// Record returns the slot's record for in-place filling. It starts zeroed.
func (res *Reservation) Record() *core.FlowRecord {
	if res.slot == nil {
		return nil
	}
	return &res.slot.rec
}

// Commit publishes the record to consumers.
func (res *Reservation) Commit() error {
	if err := res.publish(stateCommitted); err != nil {
		return err
	}
	res.ring.committed.Add(1)
	res.ring.wake()
	return nil
}

// Discard releases the slot without publishing a record.
func (res *Reservation) Discard() error {
	if err := res.publish(stateDiscarded); err != nil {
		return err
	}
	res.ring.discarded.Add(1)
	// Readers may be parked behind this slot.
	res.ring.wake()
	return nil
}

func (res *Reservation) publish(state uint32) error {
	s := res.slot
	// A published slot's sequence has moved past pos and never returns to it.
	if s == nil || s.seq.Load() != res.pos {
		return core.ErrReservationDone
	}
	s.state = state
	s.seq.Store(res.pos + 1)
	res.slot = nil
	return nil
}
