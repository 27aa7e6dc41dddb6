// Package multimaster tracks which nodes hold which per-function master
// roles (RPC, Ledger, Gossip, Shard, Global) across regions and shards,
// enforces the per-region/per-shard master caps, and periodically
// reconciles a GlobalConsensusState naming the current global leader and
// region leaders. Shard masters are not computed by the reconcile loop.
//
// The global leader is simply the highest-fitness active master; it does
// not need to also hold a region or shard role, since its job (reconciling
// state across masters) is orthogonal to serving any one shard's quorum.
package multimaster
