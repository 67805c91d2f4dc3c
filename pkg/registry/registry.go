// Package registry owns the per-device state records the reconciler reads
// and mutates. It mirrors the teacher's session-table pattern (one map
// keyed by connection identity, lazily populated, iterated for periodic
// maintenance) but keyed on device id instead of network address.
package registry

import (
	"time"

	"github.com/kessho/udp-telemetry-go/pkg/reorder"
)

// Values is the last-known real reading triple. Any component may be
// absent (Ok=false) if its producing device never emits that sensor kind.
type Values struct {
	Temperature    float32
	TemperatureOk  bool
	Humidity       float32
	HumidityOk     bool
	Voltage        float32
	VoltageOk      bool
}

// Counters are the per-device accounting totals the reconciler updates
// directly as it classifies frames. Received/bytes accounting lives only
// in metrics.Accumulator, which the ingress loop feeds per datagram.
type Counters struct {
	Duplicates uint64
	Missing    uint64
	Evictions  uint64
}

// DeviceState is the per-device record created lazily on first sighting.
type DeviceState struct {
	DeviceID       uint16
	HasLastEmitted bool
	LastEmitted    uint32
	LastValues     Values
	// HasRealReading reports whether LastValues was ever populated by an
	// actual DATA frame (as opposed to never having one, or having been
	// reset by an INIT). Gap-fill treats an entirely absent left endpoint
	// as equal to the right endpoint (spec.md §4.5).
	HasRealReading bool
	Buffer         *reorder.Buffer
	GapOpenedAt    time.Time
	GapOpen        bool
	BatchMode      bool
	BatchSize      int
	Counters       Counters
}

func newDeviceState(id uint16, bufferCap int) *DeviceState {
	return &DeviceState{
		DeviceID: id,
		Buffer:   reorder.NewBuffer(bufferCap),
	}
}

// OpenGap records the instant a gap was first observed, if one is not
// already open.
func (d *DeviceState) OpenGap(at time.Time) {
	if !d.GapOpen {
		d.GapOpen = true
		d.GapOpenedAt = at
	}
}

// CloseGap clears the open-gap marker.
func (d *DeviceState) CloseGap() {
	d.GapOpen = false
}

// Registry maps device id to DeviceState, creating records on demand.
type Registry struct {
	bufferCap int
	devices   map[uint16]*DeviceState
}

// New creates an empty Registry. bufferCap bounds every device's reorder
// buffer (spec'd as B).
func New(bufferCap int) *Registry {
	return &Registry{
		bufferCap: bufferCap,
		devices:   make(map[uint16]*DeviceState),
	}
}

// Get returns the DeviceState for id, creating it if this is the first
// sighting. Creation alone never emits a row.
func (r *Registry) Get(id uint16) *DeviceState {
	d, ok := r.devices[id]
	if !ok {
		d = newDeviceState(id, r.bufferCap)
		r.devices[id] = d
	}
	return d
}

// All returns every currently tracked device, sorted by device id for
// deterministic maintenance sweeps.
func (r *Registry) All() []*DeviceState {
	out := make([]*DeviceState, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	// Map iteration order in Go is randomized; sort by device id so
	// repeated sweeps are reproducible.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].DeviceID > out[j].DeviceID; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Len reports the number of tracked devices.
func (r *Registry) Len() int {
	return len(r.devices)
}
