// Package reconciler implements the gap reconciler (C4): the per-device
// state machine that classifies each arriving frame, drains the reorder
// buffer, and drives interpolation when a gap must be closed.
package reconciler

import (
	"time"

	"github.com/kessho/udp-telemetry-go/pkg/codec"
	"github.com/kessho/udp-telemetry-go/pkg/metrics"
	"github.com/kessho/udp-telemetry-go/pkg/registry"
	"github.com/kessho/udp-telemetry-go/pkg/sink"
)

// RowSink is the subset of sink.CSVSink the reconciler writes through,
// kept as an interface so tests can substitute an in-memory recorder.
type RowSink interface {
	WriteRow(sink.Row) error
	WriteBatchDetail(sink.BatchDetail) error
}

// Reconciler is the per-process gap reconciler, driving every device's
// state machine off the shared registry.
type Reconciler struct {
	registry   *registry.Registry
	sink       RowSink
	metrics    *metrics.Accumulator
	gapTimeout time.Duration
}

// New creates a Reconciler. gapTimeout is T_gap (spec.md default 5s).
func New(reg *registry.Registry, rowSink RowSink, acc *metrics.Accumulator, gapTimeout time.Duration) *Reconciler {
	return &Reconciler{registry: reg, sink: rowSink, metrics: acc, gapTimeout: gapTimeout}
}

// aggregateReadings reduces a DATA frame's readings to a canonical triple,
// averaging same-kind readings together — the batch-mode canonical value
// and the non-batch single value are the same computation.
func aggregateReadings(f codec.Frame) registry.Values {
	var sums [4]float32
	var counts [4]int
	for _, r := range f.Readings {
		sums[r.Kind] += r.Value
		counts[r.Kind]++
	}
	var v registry.Values
	if counts[codec.SensorTemperature] > 0 {
		v.Temperature = sums[codec.SensorTemperature] / float32(counts[codec.SensorTemperature])
		v.TemperatureOk = true
	}
	if counts[codec.SensorHumidity] > 0 {
		v.Humidity = sums[codec.SensorHumidity] / float32(counts[codec.SensorHumidity])
		v.HumidityOk = true
	}
	if counts[codec.SensorVoltage] > 0 {
		v.Voltage = sums[codec.SensorVoltage] / float32(counts[codec.SensorVoltage])
		v.VoltageOk = true
	}
	return v
}

// batchSize returns the right-endpoint batch size k used by the
// interpolator: the number of readings per sensor kind in a batched
// frame, or 1 outside batch mode.
func batchSize(f codec.Frame) int {
	if !f.Batched() {
		return 1
	}
	var counts [4]int
	for _, r := range f.Readings {
		counts[r.Kind]++
	}
	k := 1
	for _, c := range counts {
		if c > k {
			k = c
		}
	}
	return k
}

func toOptional(v float32, ok bool) sink.Optional {
	if !ok {
		return sink.Optional{}
	}
	return sink.Some(v)
}

func rowFromValues(deviceID uint16, seq uint32, kind codec.Kind, dup, synth bool, now, arrival time.Time, v registry.Values) sink.Row {
	return sink.Row{
		WallClock:   now,
		ArrivalTime: arrival,
		DeviceID:    deviceID,
		Sequence:    seq,
		Kind:        kind,
		Duplicate:   dup,
		Synthesized: synth,
		Temperature: toOptional(v.Temperature, v.TemperatureOk),
		Humidity:    toOptional(v.Humidity, v.HumidityOk),
		Voltage:     toOptional(v.Voltage, v.VoltageOk),
	}
}

// writeRealBatchDetails emits one secondary-log row per reading in a real
// (non-synthesized) batched DATA frame, with per-batch mean/min/max for
// each sensor kind present.
func (r *Reconciler) writeRealBatchDetails(deviceID uint16, seq uint32, f codec.Frame) error {
	if f.Kind != codec.KindData || !f.Batched() {
		return nil
	}
	var sum, min, max [4]float32
	var count [4]int
	for _, rd := range f.Readings {
		if count[rd.Kind] == 0 {
			min[rd.Kind] = rd.Value
			max[rd.Kind] = rd.Value
		} else {
			if rd.Value < min[rd.Kind] {
				min[rd.Kind] = rd.Value
			}
			if rd.Value > max[rd.Kind] {
				max[rd.Kind] = rd.Value
			}
		}
		sum[rd.Kind] += rd.Value
		count[rd.Kind]++
	}
	for _, rd := range f.Readings {
		mean := sum[rd.Kind] / float32(count[rd.Kind])
		if err := r.sink.WriteBatchDetail(sink.BatchDetail{
			DeviceID:   deviceID,
			Sequence:   seq,
			SensorKind: rd.Kind,
			Value:      rd.Value,
			BatchMean:  mean,
			BatchMin:   min[rd.Kind],
			BatchMax:   max[rd.Kind],
		}); err != nil {
			return err
		}
	}
	return nil
}

// emit writes one non-synthesized row for frame at its own sequence,
// including any real-batch detail rows.
func (r *Reconciler) emit(d *registry.DeviceState, f codec.Frame, arrival, now time.Time, dup bool) error {
	var values registry.Values
	if f.Kind == codec.KindData {
		values = aggregateReadings(f)
	}
	row := rowFromValues(d.DeviceID, f.Sequence, f.Kind, dup, false, now, arrival, values)
	if err := r.sink.WriteRow(row); err != nil {
		return err
	}
	return r.writeRealBatchDetails(d.DeviceID, f.Sequence, f)
}

// advance applies the bookkeeping shared by the first-ever and in-order
// cases: advance L, refresh last-known values from a DATA frame, and
// clear any open gap.
func advance(d *registry.DeviceState, f codec.Frame) {
	d.HasLastEmitted = true
	d.LastEmitted = f.Sequence
	if f.Kind == codec.KindData {
		d.LastValues = aggregateReadings(f)
		d.HasRealReading = true
		d.BatchMode = f.Batched()
		d.BatchSize = batchSize(f)
	}
	d.CloseGap()
}

// drain consumes buffered frames while the buffer's minimum key equals
// L+1, emitting each as an in-order row.
func (r *Reconciler) drain(d *registry.DeviceState, now time.Time) error {
	for {
		e, ok := d.Buffer.PeekMin()
		if !ok || e.Sequence != d.LastEmitted+1 {
			return nil
		}
		d.Buffer.Pop(e.Sequence)
		if err := r.emit(d, e.Frame, e.Arrival, now, false); err != nil {
			return err
		}
		advance(d, e.Frame)
	}
}

// closeGap implements the "when stalled" procedure of spec.md §4.4:
// select a right endpoint, interpolate L+1..R-1, emit the synthesized
// rows, then drain the buffer starting at that endpoint. The right
// endpoint always comes from the buffer — callers insert any triggering
// frame before calling this, so a future arrival is never dropped.
func (r *Reconciler) closeGap(d *registry.DeviceState, now time.Time) (bool, error) {
	e, ok := d.Buffer.PeekMin()
	if !ok {
		return false, nil
	}
	rFrame := e.Frame

	R := rFrame.Sequence
	L := d.LastEmitted
	if R > L+1 {
		n := int(R - L - 1)

		right := registry.Values{}
		k := 1
		if rFrame.Kind == codec.KindData {
			right = aggregateReadings(rFrame)
			k = batchSize(rFrame)
		}

		left := d.LastValues
		if !d.HasRealReading {
			left = right
		}

		gf := Fill(left, right, n, k)

		for i := 0; i < n; i++ {
			seq := L + 1 + uint32(i)
			row := rowFromValues(d.DeviceID, seq, codec.KindData, false, true, now, now, gf.RowValues(i))
			if err := r.sink.WriteRow(row); err != nil {
				return false, err
			}
			if k > 1 {
				if err := r.writeSyntheticBatchDetails(d.DeviceID, seq, gf, i); err != nil {
					return false, err
				}
			}
		}

		r.metrics.RecordMissing(d.DeviceID, uint64(n))
		d.Counters.Missing += uint64(n)
		d.LastEmitted = R - 1
		d.HasLastEmitted = true
		d.CloseGap()
	}

	return true, r.drain(d, now)
}

func (r *Reconciler) writeSyntheticBatchDetails(deviceID uint16, seq uint32, gf GapFill, row int) error {
	components := []struct {
		kind codec.SensorKind
		cs   componentStep
	}{
		{codec.SensorTemperature, gf.Temperature},
		{codec.SensorHumidity, gf.Humidity},
		{codec.SensorVoltage, gf.Voltage},
	}
	for _, c := range components {
		if !c.cs.present {
			continue
		}
		subs := c.cs.subs[row]
		min, max := subs[0], subs[0]
		var sum float32
		for _, v := range subs {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
			sum += v
		}
		mean := sum / float32(len(subs))
		for _, v := range subs {
			if err := r.sink.WriteBatchDetail(sink.BatchDetail{
				DeviceID:   deviceID,
				Sequence:   seq,
				SensorKind: c.kind,
				Value:      v,
				BatchMean:  mean,
				BatchMin:   min,
				BatchMax:   max,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Handle classifies and processes one decoded frame arriving at time
// arrival, per the state machine in spec.md §4.4.
func (r *Reconciler) Handle(f codec.Frame, arrival time.Time) error {
	d := r.registry.Get(f.DeviceID)
	now := arrival

	if f.Kind == codec.KindInit {
		d.LastValues = registry.Values{}
		d.HasRealReading = false
		d.HasLastEmitted = true
		d.LastEmitted = f.Sequence
		d.CloseGap()
		if err := r.emit(d, f, arrival, now, false); err != nil {
			return err
		}
		return r.drain(d, now)
	}

	s := f.Sequence

	switch {
	case !d.HasLastEmitted:
		if err := r.emit(d, f, arrival, now, false); err != nil {
			return err
		}
		advance(d, f)
		return r.drain(d, now)

	case s <= d.LastEmitted:
		r.metrics.RecordDuplicate(f.DeviceID)
		d.Counters.Duplicates++
		return r.emit(d, f, arrival, now, true)

	case s == d.LastEmitted+1:
		if err := r.emit(d, f, arrival, now, false); err != nil {
			return err
		}
		advance(d, f)
		return r.drain(d, now)

	default: // future arrival
		_, evicted, evictedOk := d.Buffer.Insert(s, f, arrival)
		if evictedOk {
			_ = evicted
			d.Counters.Evictions++
		}
		if d.GapOpen && now.Sub(d.GapOpenedAt) > r.gapTimeout {
			_, err := r.closeGap(d, now)
			return err
		}
		d.OpenGap(arrival)
		return nil
	}
}

// MaintenanceSweep drives the periodic tick of spec.md §4.4/§4.7: every
// device with a stalled gap (now - gap_opened_at > T_gap) is closed, and
// the force-close safety net fires when the oldest buffered entry is
// older than 2*T_gap regardless of gap_opened_at.
func (r *Reconciler) MaintenanceSweep(now time.Time) error {
	for _, d := range r.registry.All() {
		stalled := d.GapOpen && now.Sub(d.GapOpenedAt) > r.gapTimeout
		forceClose := false
		if oldest, ok := d.Buffer.OldestArrival(); ok && now.Sub(oldest) > 2*r.gapTimeout {
			forceClose = true
		}
		if !stalled && !forceClose {
			continue
		}
		if _, err := r.closeGap(d, now); err != nil {
			return err
		}
	}
	return nil
}
