// Package ingress implements the ingress loop (C7): a single-threaded
// cooperative receiver that drives the pipeline synchronously for each
// datagram and periodically invokes reconciler maintenance, in the
// teacher's listen()/updateLoop() style (source/server/server.go) but
// collapsed onto one goroutine since spec.md §5 requires no concurrent
// mutation of device state.
package ingress

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/kessho/udp-telemetry-go/pkg/codec"
	"github.com/kessho/udp-telemetry-go/pkg/logger"
	"github.com/kessho/udp-telemetry-go/pkg/metrics"
	"github.com/kessho/udp-telemetry-go/pkg/reconciler"
)

// sweepEveryN bounds how many decoded datagrams may pass between
// maintenance sweeps even under continuous traffic (spec.md §4.4 trigger
// 2); dropped datagrams are not counted.
const sweepEveryN = 100

const receiveTimeout = 1 * time.Second

// Loop owns the UDP socket and drives the collector pipeline.
type Loop struct {
	Conn         *net.UDPConn
	Accept       codec.AcceptSet
	Reconciler   *reconciler.Reconciler
	Metrics      *metrics.Accumulator
	AutoShutdown time.Duration // 0 means never auto-shut

	sincesweep int
}

// Run blocks until a socket I/O error, a sink write error, or an
// auto-shutdown idle timeout. It returns nil only on a clean auto-shutdown
// exit; any other return is the fatal error that ended the loop, per
// spec.md §7.
func (l *Loop) Run() error {
	buf := make([]byte, 2048)
	lastActivity := time.Now()

	for {
		if err := l.Conn.SetReadDeadline(time.Now().Add(receiveTimeout)); err != nil {
			return fmt.Errorf("ingress: set read deadline: %w", err)
		}

		n, addr, err := l.Conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if l.AutoShutdown > 0 && time.Since(lastActivity) > l.AutoShutdown {
					logger.Info("ingress: idle threshold exceeded, shutting down")
					return nil
				}
				if err := l.Reconciler.MaintenanceSweep(time.Now()); err != nil {
					return fmt.Errorf("ingress: maintenance sweep: %w", err)
				}
				continue
			}
			return fmt.Errorf("ingress: socket read: %w", err)
		}

		lastActivity = time.Now()
		datagram := append([]byte(nil), buf[:n]...)

		start := time.Now()
		frame, decErr := codec.Decode(datagram, l.Accept)
		elapsed := time.Since(start)

		if decErr != nil {
			if errors.Is(decErr, codec.ErrUnauthorizedDevice) {
				l.Metrics.RecordUnauthorizedDrop()
			} else {
				l.Metrics.RecordDecodeFailure()
			}
			logger.Warn("ingress: dropping datagram from %s: %v", addr, decErr)
			continue
		}

		l.Metrics.RecordPacket(frame.DeviceID, n, elapsed)

		if err := l.Reconciler.Handle(frame, time.Now()); err != nil {
			return fmt.Errorf("ingress: sink write: %w", err)
		}

		l.sincesweep++
		if l.sincesweep >= sweepEveryN {
			l.sincesweep = 0
			if err := l.Reconciler.MaintenanceSweep(time.Now()); err != nil {
				return fmt.Errorf("ingress: maintenance sweep: %w", err)
			}
		}
	}
}
