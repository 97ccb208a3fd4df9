// Package loadbalance picks a server instance from the set a
// registry.Registry reports live, for clients that reconnect across a pool
// of JSON-RPC server processes rather than one fixed address.
//
// Two strategies are implemented:
//   - RoundRobin:     Stateless servers, equal-capacity instances
//   - WeightedRandom: Heterogeneous instances (different CPU/memory)
package loadbalance

import (
	"fmt"

	"jaysonic/registry"
)

// Balancer picks one server instance from the set the client's connect/
// reconnect logic (client.Client, spec §4.5) is choosing among.
type Balancer interface {
	// Pick selects one instance from the available list.
	// Called on every connect/reconnect attempt — must be goroutine-safe.
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New builds the Balancer named by strategy, the counterpart to
// config.ClientConfig's BalanceStrategy field: a client configured by TOML
// names a strategy by string rather than constructing a Balancer value
// directly, and New resolves that name for WithDiscoveryConfig.
func New(strategy string) (Balancer, error) {
	switch strategy {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	default:
		return nil, fmt.Errorf("jaysonic: unknown balance strategy %q", strategy)
	}
}
