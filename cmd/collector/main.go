// Command collector runs the UDP telemetry collector: it decodes
// datagrams from sensor emitters, reconstructs a per-device ordered
// stream, and appends one row per reconstructed sequence position to a
// CSV log.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/kessho/udp-telemetry-go/internal/config"
	"github.com/kessho/udp-telemetry-go/internal/ingress"
	"github.com/kessho/udp-telemetry-go/internal/sockopt"
	"github.com/kessho/udp-telemetry-go/pkg/codec"
	"github.com/kessho/udp-telemetry-go/pkg/logger"
	"github.com/kessho/udp-telemetry-go/pkg/metrics"
	"github.com/kessho/udp-telemetry-go/pkg/reconciler"
	"github.com/kessho/udp-telemetry-go/pkg/registry"
	"github.com/kessho/udp-telemetry-go/pkg/sink"
)

const version = "1.0.0"

// desiredReceiveBuffer is the kernel socket buffer target requested via
// internal/sockopt; failure to raise it is logged, not fatal.
const desiredReceiveBuffer = 4 << 20

func main() {
	logger.Banner("UDP Telemetry Collector", version)

	cfg, err := config.ParseCollector(os.Args[1:])
	if err != nil {
		logger.Fatal("invalid configuration: %v", err)
	}

	logger.Info("Bind port: %d", cfg.Port)
	logger.Info("Primary log: %s", cfg.LogFile)
	logger.Info("Reorder buffer capacity: %d", cfg.MaxBuffer)
	logger.Info("Gap timeout: %s", cfg.MaxGapWait)
	if cfg.AutoShutdown > 0 {
		logger.Info("Auto-shutdown after %s idle", cfg.AutoShutdown)
	} else {
		logger.Info("Auto-shutdown: disabled")
	}
	if len(cfg.DeviceIDs) > 0 {
		logger.Info("Accept-set: %v", cfg.DeviceIDs)
	} else {
		logger.Info("Accept-set: all devices accepted")
	}

	if err := run(cfg); err != nil {
		logger.Fatal("collector exited: %v", err)
	}
	logger.Success("Collector stopped cleanly")
}

func run(cfg config.Collector) error {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: cfg.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("bind UDP socket: %w", err)
	}
	defer conn.Close()

	if err := sockopt.SetReceiveBuffer(conn, desiredReceiveBuffer); err != nil {
		logger.Warn("could not raise socket receive buffer: %v", err)
	}

	rowSink, err := sink.Open(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("open log files: %w", err)
	}
	defer rowSink.Close()

	accept := codec.NewAcceptSet(cfg.DeviceIDs...)
	reg := registry.New(cfg.MaxBuffer)
	acc := metrics.New()
	recon := reconciler.New(reg, rowSink, acc, cfg.MaxGapWait)

	loop := &ingress.Loop{
		Conn:         conn,
		Accept:       accept,
		Reconciler:   recon,
		Metrics:      acc,
		AutoShutdown: cfg.AutoShutdown,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	errChan := make(chan error, 1)
	go func() {
		errChan <- loop.Run()
	}()

	select {
	case err := <-errChan:
		writeSummary(rowSink, acc, reg)
		return err
	case sig := <-sigChan:
		logger.Warn("received signal: %v", sig)
		logger.Info("shutting down gracefully...")
		conn.Close()
		<-errChan
		writeSummary(rowSink, acc, reg)
		return nil
	}
}

func writeSummary(rowSink *sink.CSVSink, acc *metrics.Accumulator, reg *registry.Registry) {
	if err := rowSink.WriteSentinel(); err != nil {
		logger.Error("failed to write summary sentinel: %v", err)
		return
	}

	verdict := metrics.ComputeVerdict(acc.Process)
	metricRows := [][3]string{
		{"packets_received", fmt.Sprint(acc.Process.Packets), "count"},
		{"bytes_received", fmt.Sprint(acc.Process.Bytes), "bytes"},
		{"duplicates", fmt.Sprint(acc.Process.Duplicates), "count"},
		{"missing_positions", fmt.Sprint(acc.Process.Missing), "count"},
		{"cpu_time", acc.Process.CPUTime.String(), "duration"},
		{"decode_failures", fmt.Sprint(acc.Errors.DecodeFailures), "count"},
		{"unauthorized_drops", fmt.Sprint(acc.Errors.UnauthorizedDrops), "count"},
		{"compliance_verdict", fmt.Sprint(verdict.Pass()), "bool"},
	}
	for _, row := range metricRows {
		if err := rowSink.WriteSummaryMetric(row[0], row[1], row[2]); err != nil {
			logger.Error("failed to write summary metric %s: %v", row[0], err)
			return
		}
	}

	for _, id := range acc.DeviceIDs() {
		t := acc.DeviceTotals(id)
		dv := metrics.ComputeVerdict(t)
		prefix := fmt.Sprintf("device_%d_", id)
		rows := [][3]string{
			{prefix + "packets", fmt.Sprint(t.Packets), "count"},
			{prefix + "duplicates", fmt.Sprint(t.Duplicates), "count"},
			{prefix + "missing", fmt.Sprint(t.Missing), "count"},
			{prefix + "verdict", fmt.Sprint(dv.Pass()), "bool"},
		}
		for _, row := range rows {
			if err := rowSink.WriteSummaryMetric(row[0], row[1], row[2]); err != nil {
				logger.Error("failed to write device summary %s: %v", row[0], err)
				return
			}
		}
	}

	logger.Success("Metrics summary: packets=%d duplicates=%d missing=%d devices=%d verdict_pass=%v",
		acc.Process.Packets, acc.Process.Duplicates, acc.Process.Missing, reg.Len(), verdict.Pass())
}
