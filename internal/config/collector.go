// Package config parses the collector and emitter CLI surfaces (spec.md
// §6) in the teacher's loadConfig style: a flat Config struct populated
// with sane defaults and overridden by flags.
package config

import (
	"flag"
	"time"
)

// Collector holds the collector CLI surface.
type Collector struct {
	Port         int
	LogFile      string
	MaxBuffer    int
	MaxGapWait   time.Duration
	AutoShutdown time.Duration // 0 means never auto-shut
	DeviceIDs    []uint16
}

// ParseCollector parses args (typically os.Args[1:]) into a Collector
// config with spec.md §6's defaults.
func ParseCollector(args []string) (Collector, error) {
	fs := flag.NewFlagSet("collector", flag.ContinueOnError)

	port := fs.Int("port", 5000, "UDP bind port")
	logFile := fs.String("log-file", "telemetry.csv", "primary output log path")
	maxBuffer := fs.Int("max-buffer", 1000, "reorder buffer capacity per device")
	maxGapWait := fs.Int("max-gap-wait", 5, "T_gap in seconds")
	autoShutdown := fs.Int("auto-shutdown", 0, "idle-exit threshold in seconds (0 = never)")
	devices := fs.String("devices", "", "comma-separated accept-set of device ids (empty = accept all)")

	if err := fs.Parse(args); err != nil {
		return Collector{}, err
	}

	cfg := Collector{
		Port:       *port,
		LogFile:    *logFile,
		MaxBuffer:  *maxBuffer,
		MaxGapWait: time.Duration(*maxGapWait) * time.Second,
	}
	if *autoShutdown > 0 {
		cfg.AutoShutdown = time.Duration(*autoShutdown) * time.Second
	}
	cfg.DeviceIDs = parseDeviceIDs(*devices)

	return cfg, nil
}
