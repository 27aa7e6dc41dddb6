package gossip

import (
	"math/rand"
	"sort"
)

// WeightedPeer is a gossip peer along with its consensus stake weight, used
// to bias active-set selection toward higher-stake nodes without excluding
// low-stake ones entirely.
type WeightedPeer struct {
	Address string
	Stake   uint64
}

// StakeWeightedShuffle returns peers ordered by a weighted random
// permutation: each draw picks among the remaining peers with probability
// proportional to stake, using rng as the source of randomness so callers
// can make selection deterministic in tests. Peers with zero stake are
// treated as having the minimum nonzero weight so they are still reachable,
// just less likely to be drawn early.
func StakeWeightedShuffle(peers []WeightedPeer, rng *rand.Rand) []WeightedPeer {
	if len(peers) == 0 {
		return nil
	}

	pool := make([]WeightedPeer, len(peers))
	copy(pool, peers)

	minStake := uint64(1)
	for _, p := range pool {
		if p.Stake > 0 && p.Stake < minStake {
			minStake = p.Stake
		}
	}
	for i := range pool {
		if pool[i].Stake == 0 {
			pool[i].Stake = minStake
		}
	}

	out := make([]WeightedPeer, 0, len(pool))
	for len(pool) > 0 {
		var total uint64
		for _, p := range pool {
			total += p.Stake
		}
		if total == 0 {
			out = append(out, pool...)
			break
		}
		draw := rng.Uint64() % total
		var cum uint64
		idx := 0
		for i, p := range pool {
			cum += p.Stake
			if draw < cum {
				idx = i
				break
			}
		}
		out = append(out, pool[idx])
		pool = append(pool[:idx], pool[idx+1:]...)
	}
	return out
}

// SelectActiveSet picks the top fanout*2 peers from a stake-weighted
// shuffle, excluding any address present in pruned. pruned implements the
// rule that a peer pruned during this rotation tick cannot immediately
// reappear in the same tick's active set.
func SelectActiveSet(peers []WeightedPeer, fanout int, pruned map[string]struct{}, rng *rand.Rand) []string {
	shuffled := StakeWeightedShuffle(peers, rng)
	limit := fanout * 2
	out := make([]string, 0, limit)
	for _, p := range shuffled {
		if _, isPruned := pruned[p.Address]; isPruned {
			continue
		}
		out = append(out, p.Address)
		if len(out) >= limit {
			break
		}
	}
	sort.Strings(out)
	return out
}
