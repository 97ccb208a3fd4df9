package loadbalance

import (
	"math/rand"

	"jaysonic/registry"
	"jaysonic/rpcerr"
)

// defaultWeight is substituted for any instance whose advertised Weight is
// the zero value. registry.ServiceInstance.Weight has no required setter —
// a caller that registers through etcd without setting it (or a test fixture
// that never bothers) gets an instance that is neither draining nor
// unusually favored, rather than one that can never be picked.
const defaultWeight = 1

// WeightedRandomBalancer picks an instance with probability proportional to
// its advertised Weight, for pools of heterogeneous server instances.
// Negative weight marks an instance as draining (see RoundRobinBalancer) and
// excludes it entirely; zero weight falls back to defaultWeight rather than
// making the instance unreachable.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	usable := excludeDraining(instances)
	if len(usable) == 0 {
		return nil, rpcerr.Newf(rpcerr.InternalError, "loadbalance: no usable instances in pool of %d", len(instances))
	}

	totalWeight := 0
	for _, inst := range usable {
		totalWeight += effectiveWeight(inst)
	}
	if totalWeight <= 0 {
		return nil, rpcerr.New(rpcerr.InternalError)
	}

	r := rand.Intn(totalWeight)
	for _, inst := range usable {
		r -= effectiveWeight(inst)
		if r < 0 {
			return inst, nil
		}
	}

	// Unreachable: the loop above always finds the instance whose weight
	// range contains r before r can go negative past totalWeight.
	return usable[len(usable)-1], nil
}

func effectiveWeight(inst *registry.ServiceInstance) int {
	if inst.Weight == 0 {
		return defaultWeight
	}
	return inst.Weight
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
