package server

import (
	"context"
	"net"
)

// listen binds network/addr honoring cfg.Exclusive (spec §6.2: "disallow
// port sharing"). Exclusive is the default and is just a plain net.Listen —
// the OS already refuses a second bind to the same address. Non-exclusive
// sets SO_REUSEPORT on the listening socket (via reusePortControl, platform-
// specific) so several server processes can share one port, the same
// tradeoff Node's net.Server.listen({exclusive}) option exposes.
func (s *Server) listen(network, addr string) (net.Listener, error) {
	if s.cfg.Exclusive {
		return net.Listen(network, addr)
	}
	lc := net.ListenConfig{Control: reusePortControl}
	return lc.Listen(context.Background(), network, addr)
}
