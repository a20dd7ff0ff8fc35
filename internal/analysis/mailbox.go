// SPDX-License-Identifier: MIT
package analysis

import "sync/atomic"

const (
	slotMask  = 0b011
	freshSlot = 0b100
)

// Mailbox is a single-slot, lock-free hand-off of analysis windows from the
// audio callback to a Worker. It is triple buffered: the poster, the taker and
// the published slot each own one preallocated window, so Post never waits on
// the taker and never allocates. A window posted before the previous one was
// taken overwrites it.
//
// Post must be called from a single goroutine, Take from a single (other)
// goroutine.
type Mailbox struct {
	slots [3][]float32
	seqs  [3]uint64

	write int           // Slot owned by the poster.
	read  int           // Slot owned by the taker.
	mid   atomic.Uint32 // Published slot index, plus freshSlot when untaken.

	ready  chan struct{}
	posted atomic.Uint64
	taken  atomic.Uint64
}

// NewMailbox allocates a mailbox for windows of windowSize samples.
func NewMailbox(windowSize int) *Mailbox {
	m := &Mailbox{
		write: 0,
		read:  1,
		ready: make(chan struct{}, 1),
	}
	m.mid.Store(2)
	for i := range m.slots {
		m.slots[i] = make([]float32, windowSize)
	}
	return m
}

// Size returns the window size the mailbox was allocated for.
func (m *Mailbox) Size() int {
	return len(m.slots[0])
}

// Post publishes a snapshot of window with its sequence number, replacing
// any snapshot not yet taken, and wakes the taker.
func (m *Mailbox) Post(window []float32, seq uint64) {
	copy(m.slots[m.write], window)
	m.seqs[m.write] = seq
	prev := m.mid.Swap(uint32(m.write) | freshSlot)
	m.write = int(prev & slotMask)
	m.posted.Add(1)

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Take returns the newest posted snapshot and its sequence number. ok is
// false when nothing new was posted since the last Take. The returned slice
// stays valid and unchanged until the next Take.
func (m *Mailbox) Take() (window []float32, seq uint64, ok bool) {
	if m.mid.Load()&freshSlot == 0 {
		return nil, 0, false
	}
	prev := m.mid.Swap(uint32(m.read))
	m.read = int(prev & slotMask)
	m.taken.Add(1)
	return m.slots[m.read], m.seqs[m.read], true
}

// Ready is signalled after Post. A single pending signal may cover several
// posts.
func (m *Mailbox) Ready() <-chan struct{} {
	return m.ready
}

// Dropped returns how many posted windows were overwritten before being taken.
func (m *Mailbox) Dropped() uint64 {
	posted := m.posted.Load()
	taken := m.taken.Load()
	if m.mid.Load()&freshSlot != 0 {
		taken++
	}
	if taken >= posted {
		return 0
	}
	return posted - taken
}
