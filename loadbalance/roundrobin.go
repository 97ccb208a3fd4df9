package loadbalance

import (
	"sync/atomic"

	"jaysonic/registry"
	"jaysonic/rpcerr"
)

// RoundRobinBalancer distributes reconnect attempts evenly across the
// instances a registry.Registry currently reports for a service, skipping
// any instance whose advertised Weight is negative — a server.Advertise
// caller sets a negative weight to mean "draining, stop sending new
// connections here" without deregistering outright. Uses an atomic counter
// for lock-free, goroutine-safe operation across a Client's concurrent
// connect/reconnect attempts.
//
// Best for: stateless servers where all instances have similar capacity.
type RoundRobinBalancer struct {
	counter int64
}

func (b *RoundRobinBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	usable := excludeDraining(instances)
	if len(usable) == 0 {
		return nil, rpcerr.Newf(rpcerr.InternalError, "loadbalance: no usable instances in pool of %d", len(instances))
	}
	index := atomic.AddInt64(&b.counter, 1) % int64(len(usable))
	return usable[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}

// excludeDraining returns pointers into instances for every entry whose
// Weight is not negative, preserving order.
func excludeDraining(instances []registry.ServiceInstance) []*registry.ServiceInstance {
	usable := make([]*registry.ServiceInstance, 0, len(instances))
	for i := range instances {
		if instances[i].Weight < 0 {
			continue
		}
		usable = append(usable, &instances[i])
	}
	return usable
}
