// Package integration_test drives a real collector pipeline over a
// loopback UDP socket, the way tests/tui_test.go exercises a built
// binary end-to-end rather than one package in isolation.
package integration_test

import (
	"encoding/csv"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kessho/udp-telemetry-go/internal/ingress"
	"github.com/kessho/udp-telemetry-go/pkg/codec"
	"github.com/kessho/udp-telemetry-go/pkg/metrics"
	"github.com/kessho/udp-telemetry-go/pkg/reconciler"
	"github.com/kessho/udp-telemetry-go/pkg/registry"
	"github.com/kessho/udp-telemetry-go/pkg/sink"
)

// collectorHandle holds a running loopback collector and the means to stop
// it and read its results once its single receiver goroutine has exited —
// acc is only safe to inspect after stop() returns (spec.md §5: the
// accumulator is owned exclusively by that goroutine while it runs).
type collectorHandle struct {
	addr *net.UDPAddr
	acc  *metrics.Accumulator
	stop func()
}

func startCollector(t *testing.T, gapTimeout time.Duration, logPath string) collectorHandle {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)

	rowSink, err := sink.Open(logPath)
	require.NoError(t, err)

	reg := registry.New(100)
	acc := metrics.New()
	recon := reconciler.New(reg, rowSink, acc, gapTimeout)
	loop := &ingress.Loop{Conn: conn, Accept: codec.NewAcceptSet(), Reconciler: recon, Metrics: acc}

	done := make(chan error, 1)
	go func() { done <- loop.Run() }()

	return collectorHandle{
		addr: conn.LocalAddr().(*net.UDPAddr),
		acc:  acc,
		stop: func() {
			conn.Close()
			<-done
			require.NoError(t, rowSink.Close())
		},
	}
}

func sendFrame(t *testing.T, client *net.UDPConn, f codec.Frame) {
	t.Helper()
	datagram, err := codec.Encode(f, nil)
	require.NoError(t, err)
	_, err = client.Write(datagram)
	require.NoError(t, err)
}

// waitForRows polls logPath, which the collector's goroutine is actively
// appending to, until it holds at least want CSV records. This reads the
// file through its own handle rather than touching any struct the
// collector goroutine owns, so it needs no synchronization with it.
func waitForRows(t *testing.T, logPath string, want int, timeout time.Duration) [][]string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if f, err := os.Open(logPath); err == nil {
			records, readErr := csv.NewReader(f).ReadAll()
			f.Close()
			if readErr == nil && len(records) >= want {
				return records
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d CSV records in %s", want, logPath)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// TestCollectorReconstructsOrderedStreamOverLoopback sends an INIT frame,
// an in-order DATA frame, and a duplicate of it to a real collector
// pipeline over a real UDP socket, then asserts the primary CSV log holds
// exactly the rows the reconciler should have produced.
func TestCollectorReconstructsOrderedStreamOverLoopback(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "telemetry.csv")

	h := startCollector(t, 5*time.Second, logPath)

	client, err := net.DialUDP("udp", nil, h.addr)
	require.NoError(t, err)
	defer client.Close()

	sendFrame(t, client, codec.Frame{Version: codec.Version, Kind: codec.KindInit, DeviceID: 1, Sequence: 0})
	sendFrame(t, client, codec.Frame{
		Version: codec.Version, Kind: codec.KindData, DeviceID: 1, Sequence: 1,
		Readings: []codec.Reading{{Kind: codec.SensorTemperature, Value: 21.5}},
	})
	sendFrame(t, client, codec.Frame{
		Version: codec.Version, Kind: codec.KindData, DeviceID: 1, Sequence: 1,
		Readings: []codec.Reading{{Kind: codec.SensorTemperature, Value: 21.5}},
	})

	records := waitForRows(t, logPath, 4, 2*time.Second)
	h.stop()

	require.Len(t, records, 4, "header + INIT row + DATA row + duplicate row")
	require.Equal(t, "INIT", records[1][4])
	require.Equal(t, "1", records[2][3], "sequence column of the real DATA row")
	require.Equal(t, "false", records[2][5], "real DATA row is not a duplicate")
	require.Equal(t, "1", records[3][3], "sequence column of the replayed row")
	require.Equal(t, "true", records[3][5], "replayed row must be flagged duplicate")

	require.EqualValues(t, 1, h.acc.Process.Duplicates)
	require.False(t, metrics.ComputeVerdict(h.acc.Process).Pass(),
		"1 duplicate in 3 packets exceeds the 1% duplicate-rate threshold")
}

// TestCollectorClosesStalledGapOverLoopback sends a first DATA frame, then
// skips ahead to a later sequence, and asserts the maintenance sweep path
// eventually synthesizes the missing row once the gap timeout elapses.
func TestCollectorClosesStalledGapOverLoopback(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "telemetry.csv")

	// A short gap timeout keeps this test bounded: the ingress loop's
	// internal receive-timeout/maintenance-sweep cadence runs roughly once
	// a second, so the gap timeout must clear well inside that window.
	h := startCollector(t, 50*time.Millisecond, logPath)

	client, err := net.DialUDP("udp", nil, h.addr)
	require.NoError(t, err)
	defer client.Close()

	sendFrame(t, client, codec.Frame{
		Version: codec.Version, Kind: codec.KindData, DeviceID: 2, Sequence: 0,
		Readings: []codec.Reading{{Kind: codec.SensorHumidity, Value: 40}},
	})
	sendFrame(t, client, codec.Frame{
		Version: codec.Version, Kind: codec.KindData, DeviceID: 2, Sequence: 2,
		Readings: []codec.Reading{{Kind: codec.SensorHumidity, Value: 50}},
	})

	records := waitForRows(t, logPath, 4, 3*time.Second)
	h.stop()

	require.Len(t, records, 4, "header + real seq 0 + synthesized seq 1 + real seq 2")
	require.Equal(t, "0", records[1][3])
	require.Equal(t, "1", records[2][3])
	require.Equal(t, "true", records[2][6], "gap_synthesized column must be set")
	require.Equal(t, "2", records[3][3])

	require.EqualValues(t, 1, h.acc.Process.Missing)
}
