// Package reorder implements the bounded, sequence-ordered staging area
// (C3) that a device's future arrivals sit in until the gap ahead of them
// closes.
package reorder

import (
	"sort"
	"time"

	"github.com/kessho/udp-telemetry-go/pkg/codec"
)

// Entry is one pending frame held in the buffer.
type Entry struct {
	Sequence uint32
	Frame    codec.Frame
	Arrival  time.Time
}

// Buffer is an ordered-by-sequence map bounded by a fixed capacity. When
// an insertion would exceed capacity, the lowest-sequence entry is
// evicted first — an acknowledged, counted data loss.
type Buffer struct {
	capacity int
	entries  map[uint32]Entry
	keys     []uint32 // kept sorted ascending
}

// NewBuffer creates an empty Buffer bounded at capacity entries.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		capacity: capacity,
		entries:  make(map[uint32]Entry),
	}
}

func (b *Buffer) insertKey(seq uint32) {
	i := sort.Search(len(b.keys), func(i int) bool { return b.keys[i] >= seq })
	b.keys = append(b.keys, 0)
	copy(b.keys[i+1:], b.keys[i:])
	b.keys[i] = seq
}

func (b *Buffer) removeKey(seq uint32) {
	i := sort.Search(len(b.keys), func(i int) bool { return b.keys[i] >= seq })
	if i < len(b.keys) && b.keys[i] == seq {
		b.keys = append(b.keys[:i], b.keys[i+1:]...)
	}
}

// Insert stages frame at seq, arriving at arrival. If seq is already
// present, this is a duplicate-buffer-hit: the existing entry (and its
// original arrival time) is kept and ok reports false. If the insertion
// would exceed capacity, the lowest-sequence entry is evicted first and
// its sequence is returned in evicted (evictedOk true).
func (b *Buffer) Insert(seq uint32, frame codec.Frame, arrival time.Time) (ok bool, evicted uint32, evictedOk bool) {
	if _, present := b.entries[seq]; present {
		return false, 0, false
	}

	if b.capacity > 0 && len(b.entries) >= b.capacity {
		evicted = b.keys[0]
		evictedOk = true
		delete(b.entries, evicted)
		b.keys = b.keys[1:]
	}

	b.entries[seq] = Entry{Sequence: seq, Frame: frame, Arrival: arrival}
	b.insertKey(seq)
	return true, evicted, evictedOk
}

// PeekMin returns the lowest-sequence pending entry without removing it.
func (b *Buffer) PeekMin() (Entry, bool) {
	if len(b.keys) == 0 {
		return Entry{}, false
	}
	return b.entries[b.keys[0]], true
}

// PopMin removes and returns the lowest-sequence pending entry.
func (b *Buffer) PopMin() (Entry, bool) {
	e, ok := b.PeekMin()
	if !ok {
		return Entry{}, false
	}
	delete(b.entries, e.Sequence)
	b.keys = b.keys[1:]
	return e, true
}

// Pop removes and returns the entry at seq, if present.
func (b *Buffer) Pop(seq uint32) (Entry, bool) {
	e, ok := b.entries[seq]
	if !ok {
		return Entry{}, false
	}
	delete(b.entries, seq)
	b.removeKey(seq)
	return e, true
}

// OldestArrival returns the earliest arrival timestamp among pending
// entries, independent of the active gap timer — used by the maintenance
// sweep's force-close safety net.
func (b *Buffer) OldestArrival() (time.Time, bool) {
	if len(b.entries) == 0 {
		return time.Time{}, false
	}
	oldest := time.Time{}
	first := true
	for _, e := range b.entries {
		if first || e.Arrival.Before(oldest) {
			oldest = e.Arrival
			first = false
		}
	}
	return oldest, true
}

// Len reports the number of pending entries.
func (b *Buffer) Len() int {
	return len(b.entries)
}
