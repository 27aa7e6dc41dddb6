// Package multimaster coordinates the set of nodes eligible to hold
// per-function master roles (RPC, Ledger, Gossip, Shard, Global) across
// regions and shards, and reconciles a single global consensus view
// across them.
package multimaster

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clustercore/cluster/internal/config"
	"github.com/clustercore/cluster/pkg/errors"
	"github.com/clustercore/cluster/pkg/types"
	"github.com/google/uuid"
)

// SyncRequestKind identifies what a cross-master sync request carries.
type SyncRequestKind int

const (
	SyncLedger SyncRequestKind = iota
	SyncState
	SyncConfig
	SyncFull
)

// SyncRequest is a cross-master synchronization request between nodes
// holding overlapping role responsibility.
type SyncRequest struct {
	RequestID string
	Kind      SyncRequestKind
	FromNode  string
	ToNode    string
	Timeout   time.Duration
	CreatedAt time.Time
}

// NewSyncRequest builds a SyncRequest with a fresh request ID.
func NewSyncRequest(kind SyncRequestKind, fromNode, toNode string, timeout time.Duration, createdAt time.Time) SyncRequest {
	return SyncRequest{
		RequestID: uuid.NewString(),
		Kind:      kind,
		FromNode:  fromNode,
		ToNode:    toNode,
		Timeout:   timeout,
		CreatedAt: createdAt,
	}
}

// Event is a bounded-lifetime record of a coordination action, garbage
// collected after cfg.EventRetention.
type Event struct {
	EventID   string
	Timestamp time.Time
	Kind      string
	NodeID    string
	Detail    string
}

// HealthSource supplies node health for promotion and global-leader
// decisions without coupling this package to the failover controller.
type HealthSource interface {
	GetNodeHealth(ctx context.Context, nodeID string) (types.NodeHealth, error)
}

// PerformanceMetrics is a master's self-reported workload snapshot, used to
// identify which active master is closest to saturation.
type PerformanceMetrics struct {
	MasterID              string
	TransactionsProcessed uint64
	RPCRequestsHandled    uint64
	ConsensusOperations   uint64
	AverageResponseTime   time.Duration
	CPUUtilization        float64
	MemoryUtilization     float64
	NetworkBandwidthUsed  uint64
	ErrorRate             float64
	LastUpdate            time.Time
}

// CoordinatorStats summarizes the coordinator's current view of the cluster
// for operator dashboards and status endpoints.
type CoordinatorStats struct {
	TotalMasters        int
	ActiveMasters       int
	TotalEvents         int
	SuccessfulFailovers int
	Bottleneck          string
}

// Coordinator maintains the role registry and global consensus state.
type Coordinator struct {
	mu sync.Mutex

	cfg    config.MultiMasterConfig
	health HealthSource

	nodes   map[string]*types.MasterNode
	state   types.GlobalConsensusState
	events  []Event
	metrics map[string]PerformanceMetrics

	stopCh chan struct{}
	wg     sync.WaitGroup
	now    func() time.Time
}

// New creates a Coordinator.
func New(health HealthSource, cfg config.MultiMasterConfig) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		health: health,
		nodes:  make(map[string]*types.MasterNode),
		state: types.GlobalConsensusState{
			RoleAssignments: make(map[string]types.MasterRole),
			RegionLeaders:   make(map[string]string),
			ShardMasters:    make(map[string]string),
		},
		metrics: make(map[string]PerformanceMetrics),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
}

// RegisterNode adds or updates a node's role assignment.
func (c *Coordinator) RegisterNode(node types.MasterNode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := node
	c.nodes[node.NodeID] = &n
	c.state.RoleAssignments[node.NodeID] = node.Role
	c.recordEventLocked("register", node.NodeID, node.Role.String())
}

// Start launches the periodic global consensus loop and event GC loop.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(2)
	go c.consensusLoop(ctx)
	go c.gcLoop(ctx)
}

// Stop halts background loops.
func (c *Coordinator) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Coordinator) consensusLoop(ctx context.Context) {
	defer c.wg.Done()
	interval := c.cfg.GlobalCoordinationPeriod
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reconcile(ctx)
		}
	}
}

func (c *Coordinator) gcLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.gcEvents()
		}
	}
}

// reconcile elects the fittest active, healthy master as global leader and
// records a region leader for each region that has none yet. It does not
// change role assignments, replace an existing region leader, or fill in
// the shard-to-master mapping. The global leader need not
// itself hold a min_masters_for_consensus role assignment — it only needs
// to be an active, healthy master; its job is cross-region reconciliation,
// not serving any one shard's consensus quorum.
func (c *Coordinator) reconcile(ctx context.Context) {
	c.mu.Lock()
	nodeIDs := make([]string, 0, len(c.nodes))
	for id := range c.nodes {
		nodeIDs = append(nodeIDs, id)
	}
	c.mu.Unlock()

	type scored struct {
		id     string
		region string
		score  float64
	}
	var active []scored
	for _, id := range nodeIDs {
		health, err := c.health.GetNodeHealth(ctx, id)
		if err != nil || !health.Available || !health.Responsive {
			continue
		}
		c.mu.Lock()
		region := ""
		if n, ok := c.nodes[id]; ok {
			region = n.Region
		}
		c.mu.Unlock()
		active = append(active, scored{id: id, region: region, score: health.FitnessScore()})
	}
	if len(active) == 0 {
		return
	}
	sort.Slice(active, func(i, j int) bool { return active[i].score > active[j].score })

	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.GlobalLeader = active[0].id
	for _, a := range active {
		if _, ok := c.state.RegionLeaders[a.region]; !ok {
			c.state.RegionLeaders[a.region] = a.id
		}
	}
	c.state.ConsensusTerm++
	c.state.StateVersion++
	c.state.LastUpdateMs = c.now().UnixMilli()
	c.recordEventLocked("reconcile", c.state.GlobalLeader, "elected global leader")
}

// CanPromote reports whether a node has spare capacity to take on an
// additional master role: CPU and memory both below 0.8.
func CanPromote(health types.NodeHealth) bool {
	return health.CPU < 0.8 && health.Memory < 0.8
}

// Promote assigns role to nodeID if it has capacity and the region/shard
// caps allow another master.
func (c *Coordinator) Promote(ctx context.Context, nodeID string, role types.MasterRole) error {
	health, err := c.health.GetNodeHealth(ctx, nodeID)
	if err != nil {
		return err
	}
	if !CanPromote(health) {
		return errors.New(errors.ErrCodeConnectionLimit, "node lacks capacity for additional master role").
			WithComponent("multimaster").WithOperation("promote")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[nodeID]
	if !ok {
		return errors.New(errors.ErrCodeNodeNotFound, "unknown node").
			WithComponent("multimaster").WithOperation("promote")
	}
	if err := c.checkCapsLocked(n.Region, n.ShardID); err != nil {
		return err
	}

	n.Role = role
	c.state.RoleAssignments[nodeID] = role
	c.recordEventLocked("promote", nodeID, role.String())
	return nil
}

func (c *Coordinator) checkCapsLocked(region, shardID string) error {
	regionCount := 0
	shardCount := 0
	for _, n := range c.nodes {
		if n.Role == types.RoleNone {
			continue
		}
		if n.Region == region {
			regionCount++
		}
		if n.ShardID == shardID {
			shardCount++
		}
	}
	if c.cfg.MaxMastersPerRegion > 0 && regionCount >= c.cfg.MaxMastersPerRegion {
		return errors.New(errors.ErrCodeConnectionLimit, "region master cap reached").
			WithComponent("multimaster").WithOperation("promote")
	}
	if c.cfg.MaxMastersPerShard > 0 && shardCount >= c.cfg.MaxMastersPerShard {
		return errors.New(errors.ErrCodeConnectionLimit, "shard master cap reached").
			WithComponent("multimaster").WithOperation("promote")
	}
	return nil
}

// Demote clears a node's role assignment.
func (c *Coordinator) Demote(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.nodes[nodeID]; ok {
		n.Role = types.RoleNone
	}
	c.state.RoleAssignments[nodeID] = types.RoleNone
	c.recordEventLocked("demote", nodeID, "")
}

func (c *Coordinator) recordEventLocked(kind, nodeID, detail string) {
	c.events = append(c.events, Event{
		EventID:   uuid.NewString(),
		Timestamp: c.now(),
		Kind:      kind,
		NodeID:    nodeID,
		Detail:    detail,
	})
}

func (c *Coordinator) gcEvents() {
	c.mu.Lock()
	defer c.mu.Unlock()
	retention := c.cfg.EventRetention
	if retention <= 0 {
		retention = time.Hour
	}
	cutoff := c.now().Add(-retention)
	kept := c.events[:0]
	for _, e := range c.events {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	c.events = kept
}

// State returns a copy of the current global consensus state.
func (c *Coordinator) State() types.GlobalConsensusState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events returns a copy of the retained event log.
func (c *Coordinator) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// UpdateMasterPerformance records a master's latest self-reported workload
// snapshot, overwriting any previous one for the same master ID.
func (c *Coordinator) UpdateMasterPerformance(metrics PerformanceMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics[metrics.MasterID] = metrics
}

// MasterPerformanceMetrics returns a copy of every tracked master's latest
// performance snapshot.
func (c *Coordinator) MasterPerformanceMetrics() []PerformanceMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PerformanceMetrics, 0, len(c.metrics))
	for _, m := range c.metrics {
		out = append(out, m)
	}
	return out
}

// IdentifyPerformanceBottleneck returns the master with the lowest composite
// score across CPU, memory, response time and error rate, or "" if no
// metrics have been reported yet. Composite score is the average of four
// 0..1 sub-scores, each 1.0 at no load and falling toward 0 as the
// corresponding dimension saturates; response time saturates at 1s.
func (c *Coordinator) IdentifyPerformanceBottleneck() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	bottleneck, _ := c.worstMasterLocked()
	return bottleneck
}

func compositeScore(m PerformanceMetrics) float64 {
	cpuScore := 1.0 - m.CPUUtilization
	memScore := 1.0 - m.MemoryUtilization
	responseScore := 1.0 - float64(m.AverageResponseTime.Milliseconds())/1000.0
	if responseScore < 0 {
		responseScore = 0
	}
	errorScore := 1.0 - m.ErrorRate
	return (cpuScore + memScore + responseScore + errorScore) / 4.0
}

func (c *Coordinator) worstMasterLocked() (string, float64) {
	if len(c.metrics) == 0 {
		return "", 1.0
	}
	var bottleneck string
	worst := 1.0
	for id, m := range c.metrics {
		if score := compositeScore(m); score < worst {
			worst = score
			bottleneck = id
		}
	}
	return bottleneck, worst
}

// Statistics returns a snapshot of coordination-wide counters for operator
// dashboards and status endpoints.
func (c *Coordinator) Statistics() CoordinatorStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	active := 0
	for _, n := range c.nodes {
		if n.Role != types.RoleNone {
			active++
		}
	}
	successfulFailovers := 0
	for _, e := range c.events {
		if e.Kind == "promote" {
			successfulFailovers++
		}
	}

	bottleneck, _ := c.worstMasterLocked()

	return CoordinatorStats{
		TotalMasters:        len(c.nodes),
		ActiveMasters:       active,
		TotalEvents:         len(c.events),
		SuccessfulFailovers: successfulFailovers,
		Bottleneck:          bottleneck,
	}
}
