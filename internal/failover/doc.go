// Package failover runs the seven-state controller that watches node
// health, isolates a failing node, promotes the fittest healthy candidate
// in its place, and later attempts to restore the failed node once it
// recovers. Replacement selection uses types.NodeHealth.FitnessScore, the
// same weighted CPU/memory/disk/latency/error formula the multi-master
// coordinator uses to pick its global leader. The router does not use it;
// its strategies score backends by their own BackendServer fields.
//
// All cluster-affecting actions (promote, demote, redirect, isolate,
// restore) cross types.FailoverActionHandler so the controller never
// holds its own mutex while calling out to the rest of the node.
package failover
