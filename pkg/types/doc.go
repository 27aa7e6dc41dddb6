// Package types provides the core data structures shared across the cluster
// coordination subsystems.
//
// # Architecture overview
//
// Six subsystems share the types defined here as their wire-adjacent value
// objects: the CRDS table (internal/crds), the gossip service
// (internal/gossip), the Raft consensus engine (internal/consensus), the
// failover controller (internal/failover), the multi-master coordinator
// (internal/multimaster), and the distributed request router
// (internal/router). None of these types carry behavior beyond small,
// deterministic helpers (Overrides, FitnessScore, Eligible) that multiple
// subsystems need to agree on identically.
//
// # Ownership
//
// Each subsystem exclusively owns its own tables built from these types;
// cross-subsystem access happens through method calls that copy snapshots
// or hold a brief critical section, never through shared mutable state.
package types
