// Package emitsim drives a single simulated sensor device: it opens a
// UDP socket to a collector, sends an INIT frame, then emits DATA (and
// optionally HEARTBEAT) frames on a fixed cadence until its configured
// run duration elapses. Values walk randomly around a per-sensor
// baseline using a seeded math/rand source so a run is reproducible.
package emitsim

import (
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/kessho/udp-telemetry-go/internal/config"
	"github.com/kessho/udp-telemetry-go/pkg/codec"
	"github.com/kessho/udp-telemetry-go/pkg/logger"
)

// baseline holds the starting point and per-tick drift bound for one
// simulated sensor channel.
type baseline struct {
	kind   codec.SensorKind
	value  float32
	jitter float32
}

func defaultBaselines() []baseline {
	return []baseline{
		{kind: codec.SensorTemperature, value: 21.0, jitter: 0.4},
		{kind: codec.SensorHumidity, value: 45.0, jitter: 1.0},
		{kind: codec.SensorVoltage, value: 3.30, jitter: 0.02},
	}
}

// Emitter simulates one device's traffic to a collector.
type Emitter struct {
	cfg       config.Emitter
	conn      *net.UDPConn
	rng       *rand.Rand
	sequence  uint32
	baselines []baseline
}

// New dials the collector and prepares a deterministic emitter.
func New(cfg config.Emitter) (*Emitter, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(cfg.ServerHost), Port: cfg.ServerPort}
	if addr.IP == nil {
		resolved, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort))
		if err != nil {
			return nil, fmt.Errorf("emitsim: resolve collector address: %w", err)
		}
		addr = resolved
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("emitsim: dial collector: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(cfg.DeviceID) + 1
	}

	return &Emitter{
		cfg:       cfg,
		conn:      conn,
		rng:       rand.New(rand.NewSource(int64(seed))),
		baselines: defaultBaselines(),
	}, nil
}

// Close releases the underlying UDP socket.
func (e *Emitter) Close() error {
	return e.conn.Close()
}

// Run drives the send loop until cfg.Duration elapses, sampling readings
// on every cfg.Interval tick and interleaving HEARTBEAT frames when
// enabled. Without batching each sample is sent as one DATA frame; with
// batching, samples accumulate and are sent as one DATA frame per
// cfg.BatchingInterval tick.
func (e *Emitter) Run() error {
	if err := e.sendInit(); err != nil {
		return err
	}

	dataTicker := time.NewTicker(e.cfg.Interval)
	defer dataTicker.Stop()

	var heartbeatTicker *time.Ticker
	if e.cfg.EnableHeartbeat && e.cfg.HeartbeatInterval > 0 {
		heartbeatTicker = time.NewTicker(e.cfg.HeartbeatInterval)
		defer heartbeatTicker.Stop()
	}

	var batchTicker *time.Ticker
	var pending []codec.Reading // flat accumulation; a sensor kind appearing k times signals a k-step batch
	if e.cfg.EnableBatching && e.cfg.BatchingInterval > 0 {
		batchTicker = time.NewTicker(e.cfg.BatchingInterval)
		defer batchTicker.Stop()
	}

	deadline := time.Now().Add(e.cfg.Duration)
	dataTicks := 0

	for {
		if e.cfg.Duration > 0 && time.Now().After(deadline) {
			if len(pending) > 0 {
				if err := e.sendData(pending); err != nil {
					return err
				}
			}
			logger.Info("device %d: run duration elapsed, stopping", e.cfg.DeviceID)
			return nil
		}

		var heartbeatChan <-chan time.Time
		if heartbeatTicker != nil {
			heartbeatChan = heartbeatTicker.C
		}
		var batchChan <-chan time.Time
		if batchTicker != nil {
			batchChan = batchTicker.C
		}

		select {
		case <-dataTicker.C:
			readings := e.sampleOne()
			dataTicks++

			if e.cfg.EnableBatching {
				pending = append(pending, readings...)
			} else {
				if err := e.sendData(readings); err != nil {
					return err
				}
			}

			if e.cfg.EnableHeartbeat && heartbeatTicker == nil && e.cfg.PeriodHeartbeat > 0 &&
				dataTicks%e.cfg.PeriodHeartbeat == 0 {
				if err := e.sendHeartbeat(); err != nil {
					return err
				}
			}

		case <-batchChan:
			if len(pending) > 0 {
				if err := e.sendData(pending); err != nil {
					return err
				}
				pending = nil
			}

		case <-heartbeatChan:
			if err := e.sendHeartbeat(); err != nil {
				return err
			}
		}
	}
}

// sampleOne advances every baseline by one random-walk step and returns
// one reading per sensor channel, mirroring a device that reports all
// of its channels together each tick. In batched mode several calls'
// worth of readings accumulate into pending before being flattened into
// one frame, so a sensor kind appears k times for a k-step batch.
func (e *Emitter) sampleOne() []codec.Reading {
	readings := make([]codec.Reading, 0, len(e.baselines))
	for i := range e.baselines {
		b := &e.baselines[i]
		delta := (e.rng.Float32()*2 - 1) * b.jitter
		b.value += delta
		readings = append(readings, codec.Reading{Kind: b.kind, Value: b.value})
	}
	return readings
}

func (e *Emitter) sendInit() error {
	f := codec.Frame{
		Version:   codec.Version,
		Kind:      codec.KindInit,
		DeviceID:  e.cfg.DeviceID,
		Sequence:  e.nextSequence(),
		Timestamp: nowUnix(),
	}
	return e.send(f)
}

func (e *Emitter) sendHeartbeat() error {
	f := codec.Frame{
		Version:   codec.Version,
		Kind:      codec.KindHeartbeat,
		DeviceID:  e.cfg.DeviceID,
		Sequence:  e.nextSequence(),
		Timestamp: nowUnix(),
	}
	return e.send(f)
}

// sendData emits one DATA frame carrying readings, setting FlagBatched
// whenever any sensor kind appears more than once (spec.md's batch
// encoding: k sub-readings per kind in one frame).
func (e *Emitter) sendData(readings []codec.Reading) error {
	counts := make(map[codec.SensorKind]int, 3)
	for _, r := range readings {
		counts[r.Kind]++
	}
	var flags uint8
	for _, c := range counts {
		if c > 1 {
			flags = codec.FlagBatched
			break
		}
	}

	f := codec.Frame{
		Version:   codec.Version,
		Kind:      codec.KindData,
		DeviceID:  e.cfg.DeviceID,
		Sequence:  e.nextSequence(),
		Flags:     flags,
		Timestamp: nowUnix(),
		Readings:  readings,
	}
	return e.send(f)
}

func (e *Emitter) send(f codec.Frame) error {
	datagram, err := codec.Encode(f, nil)
	if err != nil {
		return fmt.Errorf("emitsim: encode %s frame: %w", f.Kind, err)
	}
	if _, err := e.conn.Write(datagram); err != nil {
		return fmt.Errorf("emitsim: send %s frame: %w", f.Kind, err)
	}
	return nil
}

func (e *Emitter) nextSequence() uint32 {
	seq := e.sequence
	e.sequence++
	return seq
}

func nowUnix() uint32 {
	return uint32(time.Now().Unix())
}
