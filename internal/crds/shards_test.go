package crds

import (
	"testing"

	"github.com/clustercore/cluster/pkg/types"
)

func TestNewShardsRoundsUpToPowerOfTwo(t *testing.T) {
	s := NewShards(5)
	if s.NumShards() != 8 {
		t.Fatalf("expected 8 shards for n=5, got %d", s.NumShards())
	}
	s = NewShards(1)
	if s.NumShards() != 1 {
		t.Fatalf("expected 1 shard for n=1, got %d", s.NumShards())
	}
}

func TestShardsAddRemove(t *testing.T) {
	s := NewShards(4)
	label := types.CrdsValueLabel{Kind: types.KindContactInfo, Origin: "peer-a"}

	s.Add("peer-a", label)
	origins := s.OriginsInShard("peer-a")
	found := false
	for _, o := range origins {
		if o == "peer-a" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected peer-a in its own shard after Add")
	}

	s.Remove("peer-a", label)
	origins = s.OriginsInShard("peer-a")
	for _, o := range origins {
		if o == "peer-a" {
			t.Fatal("expected peer-a removed from shard after last label removed")
		}
	}
}

func TestShardsSameOriginSameShard(t *testing.T) {
	s := NewShards(8)
	idx1 := s.index("peer-a")
	idx2 := s.index("peer-a")
	if idx1 != idx2 {
		t.Fatal("hashing the same origin twice should yield the same shard")
	}
}

func TestSampleReturnsDistinctOriginsUpToMax(t *testing.T) {
	s := NewShards(4)
	for i := 0; i < 10; i++ {
		origin := string(rune('a' + i))
		s.Add(origin, types.CrdsValueLabel{Kind: types.KindContactInfo, Origin: origin})
	}

	sample := s.Sample(5)
	if len(sample) != 5 {
		t.Fatalf("expected 5 sampled origins, got %d", len(sample))
	}
	seen := make(map[string]bool)
	for _, o := range sample {
		if seen[o] {
			t.Fatalf("expected distinct origins in a sample, got duplicate %s", o)
		}
		seen[o] = true
	}
}

func TestSampleCapsAtAvailableOrigins(t *testing.T) {
	s := NewShards(4)
	s.Add("only-origin", types.CrdsValueLabel{Kind: types.KindContactInfo, Origin: "only-origin"})

	sample := s.Sample(10)
	if len(sample) != 1 {
		t.Fatalf("expected sample capped at 1 available origin, got %d", len(sample))
	}
}
