// Package clusterstate holds the node registry cmd/clusterd wires into the
// failover controller's HealthSource/FailoverActionHandler needs and the
// multi-master coordinator's HealthSource need, so both subsystems observe
// the same view of peer health without depending on each other directly.
package clusterstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clustercore/cluster/internal/multimaster"
	"github.com/clustercore/cluster/internal/topology"
	"github.com/clustercore/cluster/pkg/types"
)

// Registry tracks the last-known NodeHealth for every peer the gossip
// service or health probes have observed, and implements the action
// handler the failover controller invokes on promotion/demotion/redirect.
type Registry struct {
	mu       sync.RWMutex
	health   map[string]types.NodeHealth
	masters  *multimaster.Coordinator
	topo     *topology.Manager
	selfNode string
}

// New builds a Registry wired to the topology manager (for traffic
// redirection bookkeeping). The multi-master coordinator is attached
// afterward via SetCoordinator, since the coordinator itself depends on the
// registry as its HealthSource.
func New(selfNode string, topo *topology.Manager) *Registry {
	return &Registry{
		health:   make(map[string]types.NodeHealth),
		topo:     topo,
		selfNode: selfNode,
	}
}

// SetCoordinator attaches the multi-master coordinator once constructed.
func (r *Registry) SetCoordinator(masters *multimaster.Coordinator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.masters = masters
}

// Update records a fresh health snapshot for a node, as observed via gossip
// contact info/vote callbacks or an external health probe.
func (r *Registry) Update(h types.NodeHealth) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health[h.NodeID] = h
}

// GetNodeHealth implements both multimaster.HealthSource and the read side
// of types.FailoverActionHandler.
func (r *Registry) GetNodeHealth(ctx context.Context, nodeID string) (types.NodeHealth, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.health[nodeID]
	if !ok {
		return types.NodeHealth{}, fmt.Errorf("no health observed for node %s", nodeID)
	}
	return h, nil
}

// PromoteNodeToLeader grants the node the global role via the multi-master
// coordinator; the next reconciliation tick may re-derive region leadership.
func (r *Registry) PromoteNodeToLeader(ctx context.Context, nodeID string) error {
	r.mu.RLock()
	masters := r.masters
	r.mu.RUnlock()
	return masters.Promote(ctx, nodeID, types.RoleGlobal)
}

// DemoteNodeFromLeader clears the node's global role assignment.
func (r *Registry) DemoteNodeFromLeader(ctx context.Context, nodeID string) error {
	r.mu.RLock()
	masters := r.masters
	r.mu.RUnlock()
	masters.Demote(nodeID)
	return nil
}

// RedirectTraffic marks the losing node inactive and the winning node
// active in the topology. It does not touch region links or the router's
// backend sets.
func (r *Registry) RedirectTraffic(ctx context.Context, from, to string) error {
	r.topo.SetNodeActive(from, false)
	r.topo.SetNodeActive(to, true)
	return nil
}

// IsolateFailedNode removes the node from the active topology so it stops
// receiving gossip pushes and router traffic.
func (r *Registry) IsolateFailedNode(ctx context.Context, nodeID string) error {
	r.topo.SetNodeActive(nodeID, false)
	r.mu.Lock()
	h := r.health[nodeID]
	h.Available = false
	r.health[nodeID] = h
	r.mu.Unlock()
	return nil
}

// RestoreNodeToCluster reactivates a node previously isolated after a
// successful recovery probe.
func (r *Registry) RestoreNodeToCluster(ctx context.Context, nodeID string) error {
	r.topo.SetNodeActive(nodeID, true)
	r.mu.Lock()
	h := r.health[nodeID]
	h.Available = true
	h.Responsive = true
	h.LastHeartbeatMs = time.Now().UnixMilli()
	r.health[nodeID] = h
	r.mu.Unlock()
	return nil
}
