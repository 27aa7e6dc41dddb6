package multimaster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clustercore/cluster/internal/config"
	"github.com/clustercore/cluster/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakeHealthSource struct {
	health map[string]types.NodeHealth
}

func (f *fakeHealthSource) GetNodeHealth(ctx context.Context, nodeID string) (types.NodeHealth, error) {
	h, ok := f.health[nodeID]
	if !ok {
		return types.NodeHealth{}, errors.New("not found")
	}
	return h, nil
}

func testMultiMasterConfig() config.MultiMasterConfig {
	return config.MultiMasterConfig{
		MaxMastersPerRegion:    2,
		MaxMastersPerShard:     2,
		MinMastersForConsensus: 1,
	}
}

func TestReconcileElectsFittestAsGlobalLeader(t *testing.T) {
	health := &fakeHealthSource{health: map[string]types.NodeHealth{
		"a": {Available: true, Responsive: true, CPU: 50, Memory: 50},
		"b": {Available: true, Responsive: true, CPU: 5, Memory: 5},
	}}
	c := New(health, testMultiMasterConfig())
	c.RegisterNode(types.MasterNode{NodeID: "a", Region: "us"})
	c.RegisterNode(types.MasterNode{NodeID: "b", Region: "us"})

	c.reconcile(context.Background())

	if c.State().GlobalLeader != "b" {
		t.Fatalf("expected b (lower resource usage, higher fitness) to be global leader, got %s", c.State().GlobalLeader)
	}
}

func TestGlobalLeaderNeedNotHoldRoleAssignment(t *testing.T) {
	health := &fakeHealthSource{health: map[string]types.NodeHealth{
		"a": {Available: true, Responsive: true, CPU: 1, Memory: 1},
	}}
	c := New(health, testMultiMasterConfig())
	c.RegisterNode(types.MasterNode{NodeID: "a", Region: "us", Role: types.RoleNone})

	c.reconcile(context.Background())

	if c.State().GlobalLeader != "a" {
		t.Fatal("expected a to become global leader despite holding no other role")
	}
}

func TestPromoteRejectsOverCapacityNode(t *testing.T) {
	health := &fakeHealthSource{health: map[string]types.NodeHealth{
		"a": {CPU: 0.9, Memory: 0.9},
	}}
	c := New(health, testMultiMasterConfig())
	c.RegisterNode(types.MasterNode{NodeID: "a", Region: "us"})

	if err := c.Promote(context.Background(), "a", types.RoleShard); err == nil {
		t.Fatal("expected promotion to fail for a node over capacity thresholds")
	}
}

func TestPromoteRespectsRegionCap(t *testing.T) {
	health := &fakeHealthSource{health: map[string]types.NodeHealth{
		"a": {CPU: 0.1, Memory: 0.1},
		"b": {CPU: 0.1, Memory: 0.1},
		"c": {CPU: 0.1, Memory: 0.1},
	}}
	cfg := testMultiMasterConfig()
	cfg.MaxMastersPerRegion = 2
	c := New(health, cfg)
	c.RegisterNode(types.MasterNode{NodeID: "a", Region: "us", Role: types.RoleShard})
	c.RegisterNode(types.MasterNode{NodeID: "b", Region: "us", Role: types.RoleShard})
	c.RegisterNode(types.MasterNode{NodeID: "c", Region: "us"})

	if err := c.Promote(context.Background(), "c", types.RoleGossip); err == nil {
		t.Fatal("expected promotion to fail once region master cap is reached")
	}
}

func TestDemoteClearsRole(t *testing.T) {
	health := &fakeHealthSource{health: map[string]types.NodeHealth{"a": {}}}
	c := New(health, testMultiMasterConfig())
	c.RegisterNode(types.MasterNode{NodeID: "a", Region: "us", Role: types.RoleShard})
	c.Demote("a")

	if c.State().RoleAssignments["a"] != types.RoleNone {
		t.Fatal("expected role cleared after demote")
	}
}

func TestEventsGarbageCollected(t *testing.T) {
	health := &fakeHealthSource{health: map[string]types.NodeHealth{}}
	c := New(health, testMultiMasterConfig())
	c.RegisterNode(types.MasterNode{NodeID: "a"})

	c.mu.Lock()
	for i := range c.events {
		c.events[i].Timestamp = time.Now().Add(-2 * time.Hour)
	}
	c.mu.Unlock()

	c.gcEvents()
	if len(c.Events()) != 0 {
		t.Fatalf("expected all old events collected, got %d", len(c.Events()))
	}
}

func TestIdentifyPerformanceBottleneckPicksLowestCompositeScore(t *testing.T) {
	health := &fakeHealthSource{health: map[string]types.NodeHealth{}}
	c := New(health, testMultiMasterConfig())

	c.UpdateMasterPerformance(PerformanceMetrics{MasterID: "a", CPUUtilization: 0.1, MemoryUtilization: 0.1, ErrorRate: 0.0})
	c.UpdateMasterPerformance(PerformanceMetrics{MasterID: "b", CPUUtilization: 0.95, MemoryUtilization: 0.9, ErrorRate: 0.5})

	if got := c.IdentifyPerformanceBottleneck(); got != "b" {
		t.Fatalf("expected b (worst composite score) identified as bottleneck, got %q", got)
	}
}

func TestIdentifyPerformanceBottleneckEmptyWithNoMetrics(t *testing.T) {
	health := &fakeHealthSource{health: map[string]types.NodeHealth{}}
	c := New(health, testMultiMasterConfig())
	if got := c.IdentifyPerformanceBottleneck(); got != "" {
		t.Fatalf("expected empty bottleneck with no reported metrics, got %q", got)
	}
}

func TestMasterPerformanceMetricsReturnsAllReported(t *testing.T) {
	health := &fakeHealthSource{health: map[string]types.NodeHealth{}}
	c := New(health, testMultiMasterConfig())
	c.UpdateMasterPerformance(PerformanceMetrics{MasterID: "a"})
	c.UpdateMasterPerformance(PerformanceMetrics{MasterID: "b"})

	metrics := c.MasterPerformanceMetrics()
	if len(metrics) != 2 {
		t.Fatalf("expected 2 reported metrics, got %d", len(metrics))
	}
}

func TestStatisticsReflectsRegisteredAndActiveMasters(t *testing.T) {
	health := &fakeHealthSource{health: map[string]types.NodeHealth{}}
	c := New(health, testMultiMasterConfig())
	c.RegisterNode(types.MasterNode{NodeID: "a", Region: "us", Role: types.RoleShard})
	c.RegisterNode(types.MasterNode{NodeID: "b", Region: "us"})

	stats := c.Statistics()
	require.Equal(t, 2, stats.TotalMasters)
	require.Equal(t, 1, stats.ActiveMasters)
}

func TestNewSyncRequestAssignsDistinctRequestIDs(t *testing.T) {
	a := NewSyncRequest(SyncLedger, "n1", "n2", time.Second, time.Now())
	b := NewSyncRequest(SyncLedger, "n1", "n2", time.Second, time.Now())
	require.NotEmpty(t, a.RequestID)
	require.NotEqual(t, a.RequestID, b.RequestID)
}

func TestRegisterNodeEventCarriesAnEventID(t *testing.T) {
	health := &fakeHealthSource{health: map[string]types.NodeHealth{}}
	c := New(health, testMultiMasterConfig())
	c.RegisterNode(types.MasterNode{NodeID: "a"})

	events := c.Events()
	require.Len(t, events, 1)
	require.NotEmpty(t, events[0].EventID)
}
