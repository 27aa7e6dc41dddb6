// Package crds holds the cluster's gossip-replicated value store.
//
// Every node maintains one Table keyed by (origin, kind, sub_index). Writes
// arrive from three places: the node's own state (contact info, votes),
// push gossip from peers, and pull responses answering this node's own
// anti-entropy requests. Table.Insert applies the override rule from
// types.CrdsValue.Overrides so that replaying the same update from multiple
// paths converges on one answer regardless of arrival order.
//
// Shards exists purely to keep pull-request bloom filter construction from
// serializing on one table-wide lock; it carries no authority over what the
// table actually holds.
package crds
