// Package replication pushes committed state to a set of replication
// targets under one of three consistency strategies: Synchronous (every
// target must ack), QuorumBased (a configurable subset must ack), and
// Asynchronous (fire all sends and report success once at least one was
// attempted, never waiting on delivery). Batches carry a checksum per
// entry so a target can detect a corrupted transfer before applying it.
package replication
