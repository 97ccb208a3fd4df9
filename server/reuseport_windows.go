//go:build windows

package server

import "syscall"

// Windows has no direct SO_REUSEPORT equivalent exposed the same way as
// BSD sockets; non-exclusive listening falls back to the platform default.
func reusePortControl(network, address string, c syscall.RawConn) error {
	return nil
}
