// Package gossip disseminates crds.Table entries across the cluster.
//
// Four timers drive the protocol: push sends recent table entries to the
// current active set, pull asks a random peer subset for anything this
// node is missing (via a bloom filter so the request stays small), trim
// expires stale non-self entries out of the table, and ping/pong checks
// that active-set peers are still reachable. A fifth timer rotates the
// active set from the full known-peer list using a stake-weighted
// shuffle, honoring prune messages received since the last rotation so a
// peer that asked to be pruned cannot reappear in the same tick.
package gossip
