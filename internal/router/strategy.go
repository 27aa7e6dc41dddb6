package router

import (
	"sync"

	"github.com/clustercore/cluster/pkg/types"
	"github.com/spaolacci/murmur3"
)

// Strategy is one of the router's load-balancing algorithms.
type Strategy int

const (
	RoundRobin Strategy = iota
	LeastConnections
	LeastResponseTime
	WeightedRoundRobin
	IpHash
	Geographic
	ResourceBased
	Adaptive
)

// Selector picks one backend from an eligible set according to a
// Strategy. Selectors that need per-service state (round robin counters,
// weighted cursors) hold it internally, keyed by service name.
type Selector struct {
	mu        sync.Mutex
	rrCounter map[string]uint64
	wrrCursor map[string]int
}

// NewSelector creates a Selector with empty per-service state.
func NewSelector() *Selector {
	return &Selector{
		rrCounter: make(map[string]uint64),
		wrrCursor: make(map[string]int),
	}
}

// Select picks a backend from candidates (already filtered to the
// eligible set) for req under strategy. candidates must be non-empty.
func (s *Selector) Select(strategy Strategy, serviceName string, candidates []types.BackendServer, req types.ConnectionRequest) types.BackendServer {
	switch strategy {
	case RoundRobin:
		return s.roundRobin(serviceName, candidates)
	case LeastConnections:
		return leastConnections(candidates)
	case LeastResponseTime:
		return leastResponseTime(candidates)
	case WeightedRoundRobin:
		return s.weightedRoundRobin(serviceName, candidates)
	case IpHash:
		return ipHash(candidates, req.ClientIP)
	case Geographic:
		return geographic(candidates, req.TargetRegion)
	case ResourceBased:
		return resourceBased(candidates)
	case Adaptive:
		return adaptive(candidates, req.TargetRegion)
	default:
		return s.roundRobin(serviceName, candidates)
	}
}

func (s *Selector) roundRobin(serviceName string, candidates []types.BackendServer) types.BackendServer {
	s.mu.Lock()
	n := s.rrCounter[serviceName]
	s.rrCounter[serviceName]++
	s.mu.Unlock()
	return candidates[int(n)%len(candidates)]
}

func (s *Selector) weightedRoundRobin(serviceName string, candidates []types.BackendServer) types.BackendServer {
	totalWeight := 0
	for _, c := range candidates {
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		totalWeight += w
	}
	if totalWeight == 0 {
		return candidates[0]
	}

	s.mu.Lock()
	cursor := s.wrrCursor[serviceName]
	s.wrrCursor[serviceName] = (cursor + 1) % totalWeight
	s.mu.Unlock()

	remaining := cursor
	for _, c := range candidates {
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		if remaining < w {
			return c
		}
		remaining -= w
	}
	return candidates[len(candidates)-1]
}

func leastConnections(candidates []types.BackendServer) types.BackendServer {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.CurrentConnections < best.CurrentConnections {
			best = c
		}
	}
	return best
}

func leastResponseTime(candidates []types.BackendServer) types.BackendServer {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.AvgResponseMs < best.AvgResponseMs {
			best = c
		}
	}
	return best
}

func ipHash(candidates []types.BackendServer, clientIP string) types.BackendServer {
	idx := int(murmur3.Sum32([]byte(clientIP))) % len(candidates)
	if idx < 0 {
		idx += len(candidates)
	}
	return candidates[idx]
}

func geographic(candidates []types.BackendServer, targetRegion string) types.BackendServer {
	for _, c := range candidates {
		if c.Region == targetRegion {
			return c
		}
	}
	return leastConnections(candidates)
}

// resourceBased picks the backend with the highest health score, which
// already blends the backend's own resource utilization.
func resourceBased(candidates []types.BackendServer) types.BackendServer {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.HealthScore > best.HealthScore {
			best = c
		}
	}
	return best
}

// adaptive scores each candidate as a weighted composite of health, spare
// connection capacity, response time, and region match, picking the
// highest-scoring server.
func adaptive(candidates []types.BackendServer, targetRegion string) types.BackendServer {
	best := candidates[0]
	bestScore := adaptiveScore(best, targetRegion)
	for _, c := range candidates[1:] {
		if score := adaptiveScore(c, targetRegion); score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best
}

func adaptiveScore(c types.BackendServer, targetRegion string) float64 {
	loadFactor := 1.0
	if c.MaxConnections > 0 {
		loadFactor = 1 - float64(c.CurrentConnections)/float64(c.MaxConnections)
		if loadFactor < 0 {
			loadFactor = 0
		}
	}
	responseFactor := 1 / (1 + c.AvgResponseMs/100)
	regionMatch := 0.0
	if targetRegion != "" && c.Region == targetRegion {
		regionMatch = 1.0
	}
	return 0.3*c.HealthScore + 0.3*loadFactor + 0.2*responseFactor + 0.2*regionMatch
}
