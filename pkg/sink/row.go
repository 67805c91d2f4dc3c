// Package sink implements the row sink (C6): the fixed-schema primary log
// and the per-reading secondary batch-detail log.
package sink

import (
	"time"

	"github.com/kessho/udp-telemetry-go/pkg/codec"
)

// Optional is an explicit-null numeric value: the null marker is distinct
// from zero, matching spec.md §4.6.
type Optional struct {
	Value float32
	Valid bool
}

func Some(v float32) Optional { return Optional{Value: v, Valid: true} }

// Row is one emitted record: a real packet, a duplicate, or a
// gap-synthesized row.
type Row struct {
	WallClock   time.Time
	ArrivalTime time.Time
	DeviceID    uint16
	Sequence    uint32
	Kind        codec.Kind
	Duplicate   bool
	Synthesized bool
	Temperature Optional
	Humidity    Optional
	Voltage     Optional
}

// BatchDetail is one sub-reading row sent to the secondary sink when the
// originating (real or synthesized) row came from a batched frame.
type BatchDetail struct {
	DeviceID   uint16
	Sequence   uint32
	SensorKind codec.SensorKind
	Value      float32
	BatchMean  float32
	BatchMin   float32
	BatchMax   float32
}
