// Package consensus implements Raft leader election and log replication
// over the real types.ClusterCommunication transport.
//
// Engine never calls the transport expecting a synchronous reply: sending
// a VoteRequest or AppendEntries RPC is fire-and-forget from the engine's
// perspective, and the caller's transport layer is responsible for
// delivering the peer's eventual response back into
// HandleVoteResponse/HandleAppendEntriesResponse. The election and
// heartbeat loops follow the textbook Raft safety rules: a candidate only
// wins a vote if its log is at least as up to date as the voter's, and a
// leader only advances its commit index past an entry from the current
// term.
package consensus
