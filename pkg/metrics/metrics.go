// Package metrics implements the metrics accumulator (C8): process-wide
// and per-device totals, plus the shutdown compliance verdict.
package metrics

import "time"

// Totals are the counters tracked both process-wide and per device.
type Totals struct {
	Packets    uint64
	Bytes      uint64
	Duplicates uint64
	Missing    uint64
	CPUTime    time.Duration
}

// ProcessErrors are process-wide counters for the dropped-datagram error
// kinds of spec.md §7 that never reach a device's per-device totals
// (they have no DeviceID, or an unauthorized one).
type ProcessErrors struct {
	DecodeFailures     uint64
	UnauthorizedDrops  uint64
}

// Verdict is the compliance check computed at shutdown: duplicate rate
// <= 1%, packets > 0, missing-fraction < 5%.
type Verdict struct {
	DuplicateRateOk   bool
	HasPacketsOk      bool
	MissingFractionOk bool
}

// Pass reports whether every compliance condition held.
func (v Verdict) Pass() bool {
	return v.DuplicateRateOk && v.HasPacketsOk && v.MissingFractionOk
}

// Accumulator tracks process totals and a per-device breakdown. It is
// only ever touched by the single receiver goroutine, so it carries no
// synchronization of its own (spec.md §5).
type Accumulator struct {
	Process Totals
	Errors  ProcessErrors
	byDevice map[uint16]*Totals
}

// New creates an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{byDevice: make(map[uint16]*Totals)}
}

func (a *Accumulator) device(id uint16) *Totals {
	t, ok := a.byDevice[id]
	if !ok {
		t = &Totals{}
		a.byDevice[id] = t
	}
	return t
}

// RecordPacket counts one received datagram of n bytes for device id,
// attributing elapsed processing time to the per-packet CPU total.
func (a *Accumulator) RecordPacket(id uint16, n int, elapsed time.Duration) {
	a.Process.Packets++
	a.Process.Bytes += uint64(n)
	a.Process.CPUTime += elapsed

	d := a.device(id)
	d.Packets++
	d.Bytes += uint64(n)
	d.CPUTime += elapsed
}

// RecordDecodeFailure counts one malformed datagram dropped by the codec
// before a Frame (and therefore a device id) could be determined.
func (a *Accumulator) RecordDecodeFailure() {
	a.Errors.DecodeFailures++
}

// RecordUnauthorizedDrop counts one datagram dropped because its device
// id was outside the configured accept-set.
func (a *Accumulator) RecordUnauthorizedDrop() {
	a.Errors.UnauthorizedDrops++
}

// RecordDuplicate counts one duplicate arrival for device id.
func (a *Accumulator) RecordDuplicate(id uint16) {
	a.Process.Duplicates++
	a.device(id).Duplicates++
}

// RecordMissing counts n synthesized (gap-filled) positions for device
// id.
func (a *Accumulator) RecordMissing(id uint16, n uint64) {
	a.Process.Missing += n
	a.device(id).Missing += n
}

// DeviceTotals returns the accumulated totals for id, or zero totals if
// the device was never observed.
func (a *Accumulator) DeviceTotals(id uint16) Totals {
	if t, ok := a.byDevice[id]; ok {
		return *t
	}
	return Totals{}
}

// DeviceIDs returns every device id with recorded totals, sorted
// ascending for deterministic reporting.
func (a *Accumulator) DeviceIDs() []uint16 {
	ids := make([]uint16, 0, len(a.byDevice))
	for id := range a.byDevice {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

// ComputeVerdict evaluates t against the compliance thresholds.
func ComputeVerdict(t Totals) Verdict {
	v := Verdict{HasPacketsOk: t.Packets > 0}
	if t.Packets == 0 {
		return v
	}
	dupRate := float64(t.Duplicates) / float64(t.Packets)
	v.DuplicateRateOk = dupRate <= 0.01

	total := t.Packets + t.Missing
	missingFrac := 0.0
	if total > 0 {
		missingFrac = float64(t.Missing) / float64(total)
	}
	v.MissingFractionOk = missingFrac < 0.05
	return v
}
