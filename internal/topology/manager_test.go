package topology

import (
	"testing"

	"github.com/clustercore/cluster/internal/config"
)

func testTopologyConfig() config.TopologyConfig {
	return config.TopologyConfig{LinkReliabilityThreshold: 0.8}
}

func TestRegisterNodeIndexesRegionAndCapability(t *testing.T) {
	m := New(testTopologyConfig())
	m.RegisterNode(Node{NodeID: "n1", Region: "us-east", Capabilities: []string{"rpc"}, Active: true})
	m.RegisterNode(Node{NodeID: "n2", Region: "us-east", Capabilities: []string{"ledger"}, Active: true})

	if got := m.NodesInRegion("us-east"); len(got) != 2 {
		t.Fatalf("expected 2 nodes in us-east, got %d", len(got))
	}
	if got := m.NodesWithCapability("rpc"); len(got) != 1 || got[0] != "n1" {
		t.Fatalf("expected [n1] for rpc capability, got %v", got)
	}
}

func TestPartitionHealthyRequiresStrictMajority(t *testing.T) {
	m := New(testTopologyConfig())
	m.RegisterNode(Node{NodeID: "a", Active: true})
	m.RegisterNode(Node{NodeID: "b", Active: true})
	m.RegisterNode(Node{NodeID: "c", Active: false})
	m.DefinePartition("shard-1", []string{"a", "b", "c"})

	healthy, err := m.PartitionHealthy("shard-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !healthy {
		t.Fatal("expected 2/3 active to be a strict majority and therefore healthy")
	}

	m.SetNodeActive("b", false)
	healthy, _ = m.PartitionHealthy("shard-1")
	if healthy {
		t.Fatal("expected 1/3 active to not be a strict majority")
	}
}

func TestPartitionHealthyUnknownPartition(t *testing.T) {
	m := New(testTopologyConfig())
	if _, err := m.PartitionHealthy("nope"); err == nil {
		t.Fatal("expected error for unknown partition")
	}
}

func TestSetLinkMarksInactiveBelowThreshold(t *testing.T) {
	m := New(testTopologyConfig())
	m.SetLink(Link{FromRegion: "us", ToRegion: "eu", LatencyMs: 900, BandwidthMbps: 10})
	if m.links["us"]["eu"].Active {
		t.Fatal("expected low-reliability link to be marked inactive")
	}

	m.SetLink(Link{FromRegion: "us", ToRegion: "ap", LatencyMs: 10, BandwidthMbps: 1000})
	if !m.links["us"]["ap"].Active {
		t.Fatal("expected high-reliability link to be marked active")
	}
}

func TestPathExistsViaActiveLinksOnly(t *testing.T) {
	m := New(testTopologyConfig())
	m.SetLink(Link{FromRegion: "us", ToRegion: "eu", LatencyMs: 10, BandwidthMbps: 1000})
	m.SetLink(Link{FromRegion: "eu", ToRegion: "ap", LatencyMs: 10, BandwidthMbps: 1000})

	if !m.PathExists("us", "ap") {
		t.Fatal("expected path us -> eu -> ap to exist via active links")
	}

	m.SetLink(Link{FromRegion: "eu", ToRegion: "ap", LatencyMs: 999, BandwidthMbps: 1})
	if m.PathExists("us", "ap") {
		t.Fatal("expected path to disappear once the eu->ap link goes inactive")
	}
}

func TestServiceRegistryRoundTrip(t *testing.T) {
	m := New(testTopologyConfig())
	m.RegisterService(Service{Name: "rpc", NodeID: "n1", Region: "us"})
	m.RegisterService(Service{Name: "rpc", NodeID: "n2", Region: "eu"})

	instances := m.ServiceInstances("rpc")
	if len(instances) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(instances))
	}
}
