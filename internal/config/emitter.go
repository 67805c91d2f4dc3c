package config

import (
	"flag"
	"strconv"
	"strings"
	"time"
)

// Emitter holds the emitter CLI surface.
type Emitter struct {
	DeviceID          uint16
	ServerHost        string
	ServerPort        int
	Interval          time.Duration
	Duration          time.Duration
	Seed              uint64
	EnableHeartbeat   bool
	HeartbeatInterval time.Duration
	PeriodHeartbeat   int
	EnableBatching    bool
	BatchingInterval  time.Duration
}

// ParseEmitter parses args into an Emitter config with spec.md §6's
// defaults.
func ParseEmitter(args []string) (Emitter, error) {
	fs := flag.NewFlagSet("emitter", flag.ContinueOnError)

	deviceID := fs.Uint("device-id", 1, "numeric device id")
	host := fs.String("server-host", "127.0.0.1", "collector host")
	port := fs.Int("server-port", 5000, "collector UDP port")
	interval := fs.Float64("interval", 1.0, "seconds between readings")
	duration := fs.Float64("duration", 60.0, "total run duration in seconds")
	seed := fs.Uint64("seed", 0, "RNG seed (0 picks a fixed deterministic default)")
	enableHeartbeat := fs.Bool("enable-heartbeat", false, "interleave HEARTBEAT frames")
	heartbeatInterval := fs.Float64("heartbeat-interval", 5.0, "seconds between heartbeats")
	periodHeartbeat := fs.Int("period-heartbeat", 5, "when heartbeat-interval is 0, emit a heartbeat every N data ticks")
	enableBatching := fs.Bool("enable-batching", false, "group readings into batched DATA frames")
	batchingInterval := fs.Float64("batching-interval", 1.0, "seconds between batch flushes")

	if err := fs.Parse(args); err != nil {
		return Emitter{}, err
	}

	return Emitter{
		DeviceID:          uint16(*deviceID),
		ServerHost:        *host,
		ServerPort:        *port,
		Interval:          time.Duration(*interval * float64(time.Second)),
		Duration:          time.Duration(*duration * float64(time.Second)),
		Seed:              *seed,
		EnableHeartbeat:   *enableHeartbeat,
		HeartbeatInterval: time.Duration(*heartbeatInterval * float64(time.Second)),
		PeriodHeartbeat:   *periodHeartbeat,
		EnableBatching:    *enableBatching,
		BatchingInterval:  time.Duration(*batchingInterval * float64(time.Second)),
	}, nil
}

func parseDeviceIDs(csv string) []uint16 {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	ids := make([]uint16, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			continue
		}
		ids = append(ids, uint16(v))
	}
	return ids
}
