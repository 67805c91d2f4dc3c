package codec

import "testing"

func validDataFrame(n int) Frame {
	readings := make([]Reading, n)
	kinds := []SensorKind{SensorTemperature, SensorHumidity, SensorVoltage}
	for i := range readings {
		readings[i] = Reading{Kind: kinds[i%len(kinds)], Value: float32(i) + 0.5}
	}
	return Frame{
		Version:   Version,
		Kind:      KindData,
		DeviceID:  7,
		Sequence:  42,
		Flags:     0,
		Timestamp: 1000,
		Readings:  readings,
	}
}

func TestRoundTrip(t *testing.T) {
	for n := 1; n <= 37; n++ {
		f := validDataFrame(n)
		data, err := Encode(f, nil)
		if err != nil {
			t.Fatalf("n=%d: Encode failed: %v", n, err)
		}
		wantLen := 13 + 1 + 5*n
		if len(data) != wantLen {
			t.Errorf("n=%d: encoded length = %d, want %d", n, len(data), wantLen)
		}
		if len(data) > 200 {
			t.Errorf("n=%d: encoded length %d exceeds 200", n, len(data))
		}
		got, err := Decode(data, nil)
		if err != nil {
			t.Fatalf("n=%d: Decode failed: %v", n, err)
		}
		if got.DeviceID != f.DeviceID || got.Sequence != f.Sequence || got.Kind != f.Kind {
			t.Errorf("n=%d: round trip mismatch: got %+v, want %+v", n, got, f)
		}
		if len(got.Readings) != n {
			t.Fatalf("n=%d: got %d readings, want %d", n, len(got.Readings), n)
		}
		for i, r := range got.Readings {
			if r != f.Readings[i] {
				t.Errorf("n=%d: reading %d = %+v, want %+v", n, i, r, f.Readings[i])
			}
		}
	}
}

func TestRoundTripControlFrames(t *testing.T) {
	for _, kind := range []Kind{KindInit, KindHeartbeat} {
		f := Frame{Version: Version, Kind: kind, DeviceID: 1, Sequence: 5, Timestamp: 99}
		data, err := Encode(f, nil)
		if err != nil {
			t.Fatalf("kind=%s: Encode failed: %v", kind, err)
		}
		if len(data) != 13 {
			t.Errorf("kind=%s: encoded length = %d, want 13", kind, len(data))
		}
		got, err := Decode(data, nil)
		if err != nil {
			t.Fatalf("kind=%s: Decode failed: %v", kind, err)
		}
		if got.Kind != kind || len(got.Readings) != 0 {
			t.Errorf("kind=%s: got %+v", kind, got)
		}
	}
}

func TestEncodeRejection(t *testing.T) {
	base := validDataFrame(2)

	cases := []struct {
		name string
		f    Frame
	}{
		{"wrong version", func() Frame { f := base; f.Version = 2; return f }()},
		{"unknown kind", func() Frame { f := base; f.Kind = Kind(9); return f }()},
		{"init with readings", Frame{Version: Version, Kind: KindInit, Readings: []Reading{{Kind: SensorTemperature, Value: 1}}}},
		{"heartbeat with readings", Frame{Version: Version, Kind: KindHeartbeat, Readings: []Reading{{Kind: SensorTemperature, Value: 1}}}},
		{"data with no readings", Frame{Version: Version, Kind: KindData}},
		{"38 readings", validDataFrame(38)},
		{"unknown sensor kind", func() Frame {
			f := base
			r := append([]Reading(nil), f.Readings...)
			r[0].Kind = SensorKind(9)
			f.Readings = r
			return f
		}()},
		{"NaN value", func() Frame {
			f := base
			r := append([]Reading(nil), f.Readings...)
			r[0].Value = float32(nan())
			f.Readings = r
			return f
		}()},
		{"+Inf value", func() Frame {
			f := base
			r := append([]Reading(nil), f.Readings...)
			r[0].Value = float32(inf())
			f.Readings = r
			return f
		}()},
	}

	for _, c := range cases {
		if _, err := Encode(c.f, nil); err == nil {
			t.Errorf("%s: Encode succeeded, want error", c.name)
		}
	}
}

func TestDecodeRejection(t *testing.T) {
	valid, err := Encode(validDataFrame(2), nil)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	if _, err := Decode(append(append([]byte(nil), valid...), 0x00), nil); err == nil {
		t.Error("trailing byte: Decode succeeded, want error")
	}
	if _, err := Decode(valid[:len(valid)-1], nil); err == nil {
		t.Error("truncated: Decode succeeded, want error")
	}

	zeroCount := append([]byte(nil), valid[:13]...)
	zeroCount = append(zeroCount, 0x00)
	if _, err := Decode(zeroCount, nil); err == nil {
		t.Error("reading_count=0: Decode succeeded, want error")
	}
}

func TestAcceptSet(t *testing.T) {
	accept := NewAcceptSet(1, 2, 3)
	f := Frame{Version: Version, Kind: KindHeartbeat, DeviceID: 99}
	if _, err := Encode(f, accept); err != ErrUnauthorizedDevice {
		t.Errorf("Encode with unauthorized device: got %v, want ErrUnauthorizedDevice", err)
	}
	f.DeviceID = 2
	if _, err := Encode(f, accept); err != nil {
		t.Errorf("Encode with authorized device failed: %v", err)
	}
}

func nan() float64 {
	var z float64
	return z / z
}

func inf() float64 {
	return 1.0 / zero()
}

func zero() float64 {
	var z float64
	return z
}

func BenchmarkEncodeDecode(b *testing.B) {
	f := validDataFrame(10)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, err := Encode(f, nil)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := Decode(data, nil); err != nil {
			b.Fatal(err)
		}
	}
}
