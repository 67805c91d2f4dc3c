package codec

import (
	"encoding/binary"
	"math"
)

// writer accumulates header and payload bytes in network byte order,
// mirroring the teacher protocol's BitStream but scoped to exactly the
// fields this wire format needs.
type writer struct {
	buf []byte
}

func newWriter(capacity int) *writer {
	return &writer{buf: make([]byte, 0, capacity)}
}

func (w *writer) byte(b uint8) {
	w.buf = append(w.buf, b)
}

func (w *writer) uint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) uint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) float32(v float32) {
	w.uint32(math.Float32bits(v))
}

// Encode validates f against every wire invariant and, if valid, produces
// its exact byte representation: a 13-byte header followed by a DATA
// payload when f.Kind == KindData.
func Encode(f Frame, accept AcceptSet) ([]byte, error) {
	if f.Version != Version {
		return nil, ErrInvalidVersion
	}
	if !f.Kind.valid() {
		return nil, ErrUnknownKind
	}
	if !accept.allows(f.DeviceID) {
		return nil, ErrUnauthorizedDevice
	}
	if err := validateShape(f.Kind, f.Readings); err != nil {
		return nil, err
	}

	payloadSize := 0
	if f.Kind == KindData {
		payloadSize = 1 + len(f.Readings)*readingSize
	}
	if headerSize+payloadSize > maxFrame {
		return nil, ErrPayloadOverflow
	}

	w := newWriter(headerSize + payloadSize)
	w.byte(f.Version)
	w.byte(uint8(f.Kind))
	w.uint16(f.DeviceID)
	w.uint32(f.Sequence)
	w.byte(f.Flags)
	w.uint32(f.Timestamp)

	if f.Kind == KindData {
		w.byte(uint8(len(f.Readings)))
		for _, r := range f.Readings {
			w.byte(uint8(r.Kind))
			w.float32(r.Value)
		}
	}

	return w.buf, nil
}
