package codec

import "errors"

// Sentinel errors returned by Encode and Decode. Both directions reuse the
// same set so a single invariant failure always surfaces under one name
// regardless of which side caught it.
var (
	ErrInvalidVersion    = errors.New("codec: invalid version")
	ErrUnknownKind       = errors.New("codec: unknown frame kind")
	ErrUnauthorizedDevice = errors.New("codec: device id not in accept-set")
	ErrBadPayloadForKind = errors.New("codec: readings present/absent for wrong kind")
	ErrPayloadOverflow   = errors.New("codec: payload exceeds size limit")
	ErrBadSensorKind     = errors.New("codec: unknown sensor kind")
	ErrNonFiniteValue    = errors.New("codec: reading value is not finite")
	ErrTruncated         = errors.New("codec: datagram truncated")
	ErrTrailingBytes     = errors.New("codec: trailing bytes after payload")
)
