// Package crds implements the cluster's gossip value store: a keyed,
// versioned set of signed per-origin records with conflict resolution,
// sharded indexing, and bulk trimming.
package crds

import (
	"sort"
	"sync"

	"github.com/clustercore/cluster/pkg/errors"
	"github.com/clustercore/cluster/pkg/types"
)

// InsertOutcome reports what insert() did to the table.
type InsertOutcome int

const (
	Inserted InsertOutcome = iota
	Updated
)

func (o InsertOutcome) String() string {
	if o == Updated {
		return "updated"
	}
	return "inserted"
}

// Stats is a point-in-time snapshot of table activity, safe to read without
// blocking the table.
type Stats struct {
	Inserts        uint64
	Updates        uint64
	DidNotOverride uint64
	SignatureBad   uint64
	Trimmed        uint64
}

// Table is the CRDS table: one VersionedCrdsValue per CrdsValueLabel.
type Table struct {
	mu       sync.RWMutex
	entries  map[types.CrdsValueLabel]*types.VersionedCrdsValue
	byOrigin map[string]map[types.CrdsValueLabel]struct{}
	shards   *Shards
	ordinal  uint64
	selfID   string
	stats    Stats
}

// NewTable creates an empty table. selfID identifies this node's own
// origin pubkey so self-originated entries are exempt from trimming.
func NewTable(selfID string, numShards int) *Table {
	return &Table{
		entries:  make(map[types.CrdsValueLabel]*types.VersionedCrdsValue),
		byOrigin: make(map[string]map[types.CrdsValueLabel]struct{}),
		shards:   NewShards(numShards),
		selfID:   selfID,
	}
}

// verifySignature is a seam for signature checking; CrdsValue.Signature is
// opaque to this package, so a non-empty signature is treated as present.
// Real verification against the origin's known public key happens at the
// gossip service boundary, which has access to peer identity material.
func verifySignature(v types.CrdsValue) bool {
	return len(v.Signature) > 0
}

// Insert applies the §3 override rule for v's label. route is retained on
// the versioned wrapper only via caller bookkeeping (FromPullResponse);
// other route values are used solely for gossip-service metrics, so they
// are not stored on the table itself.
func (t *Table) Insert(v types.CrdsValue, nowMs int64, route types.Route) (InsertOutcome, error) {
	if !verifySignature(v) {
		t.mu.Lock()
		t.stats.SignatureBad++
		t.mu.Unlock()
		return 0, errors.New(errors.ErrCodeSignatureInvalid, "crds value signature invalid").
			WithComponent("crds").WithOperation("insert")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	existing, exists := t.entries[v.Label]
	if exists && !v.Overrides(existing.Value) {
		t.stats.DidNotOverride++
		return 0, errors.New(errors.ErrCodeDidNotOverride, "value does not override existing entry").
			WithComponent("crds").WithOperation("insert")
	}

	t.ordinal++
	vv := &types.VersionedCrdsValue{
		Ordinal:          t.ordinal,
		Value:            v,
		LocalTimestampMs: nowMs,
		FromPullResponse: route == types.RoutePullResponse,
	}
	t.entries[v.Label] = vv

	origins, ok := t.byOrigin[v.Label.Origin]
	if !ok {
		origins = make(map[types.CrdsValueLabel]struct{})
		t.byOrigin[v.Label.Origin] = origins
	}
	origins[v.Label] = struct{}{}

	t.shards.Add(v.Label.Origin, v.Label)

	if exists {
		t.stats.Updates++
		return Updated, nil
	}
	t.stats.Inserts++
	return Inserted, nil
}

// Get returns the current value for a label, if present.
func (t *Table) Get(label types.CrdsValueLabel) (types.VersionedCrdsValue, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	vv, ok := t.entries[label]
	if !ok {
		return types.VersionedCrdsValue{}, false
	}
	return *vv, true
}

// GetRecords returns every current record for an origin, unordered.
func (t *Table) GetRecords(origin string) []types.VersionedCrdsValue {
	t.mu.RLock()
	defer t.mu.RUnlock()

	labels := t.byOrigin[origin]
	out := make([]types.VersionedCrdsValue, 0, len(labels))
	for label := range labels {
		if vv, ok := t.entries[label]; ok {
			out = append(out, *vv)
		}
	}
	return out
}

// GetEntriesAfter returns up to limit entries with ordinal > after, sorted
// ascending by ordinal. Used to feed push gossip.
func (t *Table) GetEntriesAfter(after uint64, limit int) []types.VersionedCrdsValue {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.VersionedCrdsValue, 0, limit)
	for _, vv := range t.entries {
		if vv.Ordinal > after {
			out = append(out, *vv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// GetContactInfos returns every current ContactInfo record.
func (t *Table) GetContactInfos() []types.VersionedCrdsValue {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.VersionedCrdsValue, 0)
	for label, vv := range t.entries {
		if label.Kind == types.KindContactInfo {
			out = append(out, *vv)
		}
	}
	return out
}

// NumNodes returns the count of distinct ContactInfo labels.
func (t *Table) NumNodes() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for label := range t.entries {
		if label.Kind == types.KindContactInfo {
			n++
		}
	}
	return n
}

// Trim deletes non-self entries older than timeoutMs relative to now and
// returns the count removed. Self-originated records are never trimmed;
// the gossip service is responsible for refreshing them instead.
func (t *Table) Trim(nowMs int64, timeoutMs int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for label, vv := range t.entries {
		if label.Origin == t.selfID {
			continue
		}
		if nowMs-vv.LocalTimestampMs > timeoutMs {
			delete(t.entries, label)
			if origins, ok := t.byOrigin[label.Origin]; ok {
				delete(origins, label)
				if len(origins) == 0 {
					delete(t.byOrigin, label.Origin)
				}
			}
			t.shards.Remove(label.Origin, label)
			removed++
		}
	}
	t.stats.Trimmed += uint64(removed)
	return removed
}

// Stats returns a copy of the table's activity counters.
func (t *Table) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats
}

// Len returns the current number of distinct labels in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
