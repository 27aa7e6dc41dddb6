package types

import "context"

// ClusterCommunication abstracts sending Raft RPCs to a peer.
// internal/transport.HTTPRPCClient is the implementation in this module; the
// contract is at-most-once delivery that may arbitrarily lose messages but
// must never corrupt a payload.
type ClusterCommunication interface {
	SendVoteRequest(ctx context.Context, peerID string, req VoteRequest) error
	SendVoteResponse(ctx context.Context, peerID string, resp VoteResponse) error
	SendAppendEntries(ctx context.Context, peerID string, req AppendEntriesRequest) error
	SendAppendEntriesResponse(ctx context.Context, peerID string, resp AppendEntriesResponse) error
}

// VoteRequest is the Raft RequestVote RPC payload.
type VoteRequest struct {
	Term         uint64
	CandidateID  string
	LastLogIndex uint64
	LastLogTerm  uint64
}

// VoteResponse is the Raft RequestVote RPC reply.
type VoteResponse struct {
	Term        uint64
	VoteGranted bool
}

// AppendEntriesRequest is the Raft AppendEntries RPC payload.
type AppendEntriesRequest struct {
	Term         uint64
	LeaderID     string
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []LogEntry
	LeaderCommit uint64
}

// AppendEntriesResponse is the Raft AppendEntries RPC reply.
type AppendEntriesResponse struct {
	Term    uint64
	Success bool
}

// ReplicationTransport abstracts the replication manager's wire operations,
// independent of the Raft transport.
type ReplicationTransport interface {
	SendBatch(ctx context.Context, targetID string, batch ReplicationBatch) error
	SendHeartbeat(ctx context.Context, targetID string) error
	RequestSync(ctx context.Context, targetID string, fromIndex uint64) error
}

// ReplicationEntry is one entry inside a ReplicationBatch.
type ReplicationEntry struct {
	Index     uint64
	Term      uint64
	Data      []byte
	Timestamp int64
	Checksum  uint64
}

// ReplicationBatch is the unit of work sent to replication targets.
type ReplicationBatch struct {
	Entries    []ReplicationEntry
	StartIndex uint64
	EndIndex   uint64
	BatchID    string
}

// FailoverActionHandler is the failover controller's boundary to the rest of
// the node: promotion, demotion, traffic redirection, isolation and
// restoration all cross this interface so the controller never calls them
// while holding its state mutex.
type FailoverActionHandler interface {
	PromoteNodeToLeader(ctx context.Context, nodeID string) error
	DemoteNodeFromLeader(ctx context.Context, nodeID string) error
	RedirectTraffic(ctx context.Context, from, to string) error
	IsolateFailedNode(ctx context.Context, nodeID string) error
	RestoreNodeToCluster(ctx context.Context, nodeID string) error
	GetNodeHealth(ctx context.Context, nodeID string) (NodeHealth, error)
}

// StateMachineCallback is invoked by the consensus apply loop with each
// committed entry's payload, in index order, exactly once per commit.
type StateMachineCallback func(payload []byte)

// ContactInfoCallback is invoked whenever a fresh ContactInfo CrdsValue is
// inserted into the gossip table.
type ContactInfoCallback func(origin string, info ContactInfoData)

// VoteCallback is invoked whenever a fresh Vote CrdsValue is inserted.
type VoteCallback func(origin string, vote VoteData)
