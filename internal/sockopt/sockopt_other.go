//go:build !linux

package sockopt

import "net"

// SetReceiveBuffer is a no-op outside Linux: the socket-buffer tuning
// syscall this package wraps is Linux-specific, and the collector runs
// fine on the kernel default receive buffer elsewhere.
func SetReceiveBuffer(conn *net.UDPConn, n int) error {
	return nil
}
