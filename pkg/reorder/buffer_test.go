package reorder

import (
	"testing"
	"time"

	"github.com/kessho/udp-telemetry-go/pkg/codec"
)

func frame(seq uint32) codec.Frame {
	return codec.Frame{Version: codec.Version, Kind: codec.KindData, DeviceID: 1, Sequence: seq,
		Readings: []codec.Reading{{Kind: codec.SensorTemperature, Value: 1}}}
}

func TestInsertAndPeekMin(t *testing.T) {
	b := NewBuffer(10)
	now := time.Now()

	ok, _, evictedOk := b.Insert(5, frame(5), now)
	if !ok || evictedOk {
		t.Fatalf("unexpected insert result ok=%v evictedOk=%v", ok, evictedOk)
	}
	ok, _, _ = b.Insert(3, frame(3), now)
	if !ok {
		t.Fatal("expected insert to succeed")
	}
	ok, _, _ = b.Insert(7, frame(7), now)
	if !ok {
		t.Fatal("expected insert to succeed")
	}

	e, ok := b.PeekMin()
	if !ok || e.Sequence != 3 {
		t.Fatalf("expected min sequence 3, got %+v ok=%v", e, ok)
	}
	if b.Len() != 3 {
		t.Fatalf("expected len 3, got %d", b.Len())
	}
}

func TestInsertDuplicateRejected(t *testing.T) {
	b := NewBuffer(10)
	now := time.Now()
	b.Insert(5, frame(5), now)

	ok, evicted, evictedOk := b.Insert(5, frame(5), now.Add(time.Second))
	if ok || evictedOk || evicted != 0 {
		t.Fatalf("expected duplicate insert to report ok=false, got ok=%v evicted=%v evictedOk=%v", ok, evicted, evictedOk)
	}
	if b.Len() != 1 {
		t.Fatalf("expected len 1 after duplicate insert, got %d", b.Len())
	}
}

func TestInsertEvictsLowestKeyWhenFull(t *testing.T) {
	b := NewBuffer(2)
	now := time.Now()
	b.Insert(10, frame(10), now)
	b.Insert(20, frame(20), now)

	ok, evicted, evictedOk := b.Insert(15, frame(15), now)
	if !ok || !evictedOk || evicted != 10 {
		t.Fatalf("expected eviction of seq 10, got ok=%v evicted=%v evictedOk=%v", ok, evicted, evictedOk)
	}
	if b.Len() != 2 {
		t.Fatalf("expected len to stay at capacity 2, got %d", b.Len())
	}
	if _, ok := b.Pop(10); ok {
		t.Fatal("expected evicted sequence 10 to be gone")
	}
}

func TestPopMinOrdering(t *testing.T) {
	b := NewBuffer(10)
	now := time.Now()
	for _, seq := range []uint32{8, 2, 5, 1} {
		b.Insert(seq, frame(seq), now)
	}

	var order []uint32
	for b.Len() > 0 {
		e, ok := b.PopMin()
		if !ok {
			t.Fatal("expected entry")
		}
		order = append(order, e.Sequence)
	}

	want := []uint32{1, 2, 5, 8}
	for i, seq := range want {
		if order[i] != seq {
			t.Fatalf("expected ascending pop order %v, got %v", want, order)
		}
	}
}

func TestPopRemovesArbitraryKey(t *testing.T) {
	b := NewBuffer(10)
	now := time.Now()
	b.Insert(1, frame(1), now)
	b.Insert(2, frame(2), now)
	b.Insert(3, frame(3), now)

	e, ok := b.Pop(2)
	if !ok || e.Sequence != 2 {
		t.Fatalf("expected to pop sequence 2, got %+v ok=%v", e, ok)
	}
	if b.Len() != 2 {
		t.Fatalf("expected len 2 after pop, got %d", b.Len())
	}
	if _, ok := b.PeekMin(); !ok {
		t.Fatal("expected remaining entries")
	}
}

func TestOldestArrival(t *testing.T) {
	b := NewBuffer(10)
	t0 := time.Now()
	b.Insert(1, frame(1), t0.Add(2*time.Second))
	b.Insert(2, frame(2), t0)
	b.Insert(3, frame(3), t0.Add(time.Second))

	oldest, ok := b.OldestArrival()
	if !ok || !oldest.Equal(t0) {
		t.Fatalf("expected oldest arrival %v, got %v ok=%v", t0, oldest, ok)
	}
}

func TestOldestArrivalEmpty(t *testing.T) {
	b := NewBuffer(10)
	if _, ok := b.OldestArrival(); ok {
		t.Fatal("expected no oldest arrival on empty buffer")
	}
}
