//go:build linux

// Package sockopt tunes kernel socket buffer sizes on the UDP listening
// socket, the same low-level syscall layer ehrlich-b-go-ublk reaches for
// (there io_uring setup, here socket buffer sizing) via golang.org/x/sys.
package sockopt

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// SetReceiveBuffer requests an n-byte kernel receive buffer (SO_RCVBUF)
// for the UDP socket, reducing datagram drops under bursty sensor fan-in.
// It is a best-effort tuning knob: the kernel may cap the request (at
// net.core.rmem_max) without reporting an error, and only a failed
// setsockopt call is returned. Callers may log that error and continue,
// since the collector still functions with the kernel default.
func SetReceiveBuffer(conn *net.UDPConn, n int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("sockopt: SyscallConn: %w", err)
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, n)
	})
	if err != nil {
		return fmt.Errorf("sockopt: Control: %w", err)
	}
	if sockErr != nil {
		return fmt.Errorf("sockopt: SO_RCVBUF: %w", sockErr)
	}
	return nil
}
