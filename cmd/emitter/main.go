// Command emitter simulates a single telemetry sensor device, sending
// UDP frames to a collector on a fixed cadence for a bounded run.
package main

import (
	"os"

	"github.com/kessho/udp-telemetry-go/internal/config"
	"github.com/kessho/udp-telemetry-go/internal/emitsim"
	"github.com/kessho/udp-telemetry-go/pkg/logger"
)

const version = "1.0.0"

func main() {
	logger.Banner("UDP Telemetry Emitter", version)

	cfg, err := config.ParseEmitter(os.Args[1:])
	if err != nil {
		logger.Fatal("invalid configuration: %v", err)
	}

	logger.Info("Device ID: %d", cfg.DeviceID)
	logger.Info("Target: %s:%d", cfg.ServerHost, cfg.ServerPort)
	logger.Info("Interval: %s, duration: %s", cfg.Interval, cfg.Duration)
	if cfg.EnableHeartbeat {
		logger.Info("Heartbeat enabled: interval=%s period=%d", cfg.HeartbeatInterval, cfg.PeriodHeartbeat)
	}
	if cfg.EnableBatching {
		logger.Info("Batching enabled: interval=%s", cfg.BatchingInterval)
	}

	e, err := emitsim.New(cfg)
	if err != nil {
		logger.Fatal("could not start emitter: %v", err)
	}
	defer e.Close()

	if err := e.Run(); err != nil {
		logger.Fatal("emitter exited: %v", err)
	}
	logger.Success("Emitter finished cleanly")
}
