// Package topology tracks cluster-wide node placement, named partitions,
// cross-region network links, and registered services.
package topology

import (
	"sync"

	"github.com/clustercore/cluster/internal/config"
	"github.com/clustercore/cluster/pkg/errors"
)

// Node is a tracked cluster member's placement metadata.
type Node struct {
	NodeID       string
	Region       string
	Capabilities []string
	Active       bool
}

// Partition is a named subset of nodes that must retain a strict majority
// of active members to be considered healthy.
type Partition struct {
	Name    string
	Members map[string]struct{}
}

// Link is a directed cross-region network edge.
type Link struct {
	FromRegion string
	ToRegion   string
	LatencyMs  float64
	BandwidthMbps float64
	Active     bool
}

// ReliabilityScore computes (max(0,1-latency/1000) + min(1,bandwidth/1000)) / 2.
func (l Link) ReliabilityScore() float64 {
	latencyTerm := 1 - l.LatencyMs/1000
	if latencyTerm < 0 {
		latencyTerm = 0
	}
	bandwidthTerm := l.BandwidthMbps / 1000
	if bandwidthTerm > 1 {
		bandwidthTerm = 1
	}
	return (latencyTerm + bandwidthTerm) / 2
}

// Service is a registered named endpoint reachable through the topology.
type Service struct {
	Name   string
	NodeID string
	Region string
}

// Manager holds the node registry, partitions, link graph, and service
// registry for the whole cluster.
type Manager struct {
	mu sync.RWMutex

	cfg config.TopologyConfig

	nodes        map[string]*Node
	byRegion     map[string]map[string]struct{}
	byCapability map[string]map[string]struct{}

	partitions map[string]*Partition
	links      map[string]map[string]*Link // fromRegion -> toRegion -> Link
	services   map[string][]Service
}

// New creates an empty Manager.
func New(cfg config.TopologyConfig) *Manager {
	return &Manager{
		cfg:          cfg,
		nodes:        make(map[string]*Node),
		byRegion:     make(map[string]map[string]struct{}),
		byCapability: make(map[string]map[string]struct{}),
		partitions:   make(map[string]*Partition),
		links:        make(map[string]map[string]*Link),
		services:     make(map[string][]Service),
	}
}

// RegisterNode adds or replaces a node's placement metadata and updates
// the region/capability indices.
func (m *Manager) RegisterNode(n Node) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.nodes[n.NodeID]; ok {
		m.removeFromIndicesLocked(old)
	}
	nc := n
	m.nodes[n.NodeID] = &nc

	if m.byRegion[n.Region] == nil {
		m.byRegion[n.Region] = make(map[string]struct{})
	}
	m.byRegion[n.Region][n.NodeID] = struct{}{}

	for _, cap := range n.Capabilities {
		if m.byCapability[cap] == nil {
			m.byCapability[cap] = make(map[string]struct{})
		}
		m.byCapability[cap][n.NodeID] = struct{}{}
	}
}

func (m *Manager) removeFromIndicesLocked(n *Node) {
	if set, ok := m.byRegion[n.Region]; ok {
		delete(set, n.NodeID)
	}
	for _, cap := range n.Capabilities {
		if set, ok := m.byCapability[cap]; ok {
			delete(set, n.NodeID)
		}
	}
}

// SetNodeActive flips a node's active flag.
func (m *Manager) SetNodeActive(nodeID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[nodeID]; ok {
		n.Active = active
	}
}

// NodesInRegion returns node IDs registered in region.
func (m *Manager) NodesInRegion(region string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byRegion[region]))
	for id := range m.byRegion[region] {
		out = append(out, id)
	}
	return out
}

// NodesWithCapability returns node IDs advertising capability.
func (m *Manager) NodesWithCapability(capability string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byCapability[capability]))
	for id := range m.byCapability[capability] {
		out = append(out, id)
	}
	return out
}

// DefinePartition creates or replaces a named partition's membership.
func (m *Manager) DefinePartition(name string, memberIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := make(map[string]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		members[id] = struct{}{}
	}
	m.partitions[name] = &Partition{Name: name, Members: members}
}

// PartitionHealthy reports whether a strict majority of a partition's
// members are active.
func (m *Manager) PartitionHealthy(name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.partitions[name]
	if !ok {
		return false, errors.New(errors.ErrCodePartitionNotFound, "unknown partition").
			WithComponent("topology").WithOperation("partition_healthy")
	}
	if len(p.Members) == 0 {
		return false, nil
	}
	active := 0
	for id := range p.Members {
		if n, ok := m.nodes[id]; ok && n.Active {
			active++
		}
	}
	return active*2 > len(p.Members), nil
}

// SetLink creates or replaces a directed region-to-region link, marking it
// inactive if its reliability score falls below the configured threshold.
func (m *Manager) SetLink(link Link) {
	m.mu.Lock()
	defer m.mu.Unlock()

	threshold := m.cfg.LinkReliabilityThreshold
	if threshold <= 0 {
		threshold = 0.8
	}
	link.Active = link.ReliabilityScore() >= threshold

	if m.links[link.FromRegion] == nil {
		m.links[link.FromRegion] = make(map[string]*Link)
	}
	l := link
	m.links[link.FromRegion][link.ToRegion] = &l
}

// PathExists reports whether an active-link path exists from one region to
// another via breadth-first search.
func (m *Manager) PathExists(from, to string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if from == to {
		return true
	}
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for dest, link := range m.links[cur] {
			if !link.Active || visited[dest] {
				continue
			}
			if dest == to {
				return true
			}
			visited[dest] = true
			queue = append(queue, dest)
		}
	}
	return false
}

// RegisterService adds a service instance to the registry.
func (m *Manager) RegisterService(svc Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[svc.Name] = append(m.services[svc.Name], svc)
}

// ServiceInstances returns all registered instances of a service name.
func (m *Manager) ServiceInstances(name string) []Service {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Service(nil), m.services[name]...)
}
