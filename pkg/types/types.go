// Package types holds the value types shared across the cluster coordination
// subsystems: CRDS records, consensus log entries, health snapshots, and
// routing primitives.
package types

import "time"

// CrdsValueKind identifies the variant payload carried by a CrdsValue.
type CrdsValueKind int

const (
	KindContactInfo CrdsValueKind = iota
	KindVote
	KindLowestSlot
	KindEpochSlots
	KindNodeInstance
	KindSnapshotHashes
	KindRestartLastVotedForkSlots
	KindRestartHeaviestFork
)

func (k CrdsValueKind) String() string {
	switch k {
	case KindContactInfo:
		return "ContactInfo"
	case KindVote:
		return "Vote"
	case KindLowestSlot:
		return "LowestSlot"
	case KindEpochSlots:
		return "EpochSlots"
	case KindNodeInstance:
		return "NodeInstance"
	case KindSnapshotHashes:
		return "SnapshotHashes"
	case KindRestartLastVotedForkSlots:
		return "RestartLastVotedForkSlots"
	case KindRestartHeaviestFork:
		return "RestartHeaviestFork"
	default:
		return "Unknown"
	}
}

// CrdsValueLabel uniquely identifies a gossiped record. SubIndex is
// meaningful for indexed kinds (Vote, EpochSlots) and zero otherwise.
type CrdsValueLabel struct {
	Kind     CrdsValueKind
	Origin   string
	SubIndex uint64
}

// Route records where a CrdsValue arrived from, kept for metrics and
// rebroadcast decisions.
type Route int

const (
	RouteLocalMessage Route = iota
	RoutePullRequest
	RoutePullResponse
	RoutePushMessage
)

// ContactInfoData is the payload of a ContactInfo CrdsValue: the
// multi-address, multi-port shape the cluster uses internally (see
// internal/gossip/legacy.go for the single-address wire adapter).
type ContactInfoData struct {
	Outset    uint64            // node instance epoch; strictly increasing wins ties
	Addresses map[string]string // tag -> "host:port", e.g. "gossip", "rpc", "tvu"
	ShredVersion uint16
}

// VoteData is the payload of a Vote CrdsValue.
type VoteData struct {
	Slot      uint64
	Hash      string
	Timestamp int64
}

// CrdsValue is a signed, content-addressed gossip record.
type CrdsValue struct {
	Label       CrdsValueLabel
	Signature   []byte
	WallclockMs int64
	ContactInfo *ContactInfoData
	Vote        *VoteData
	Raw         []byte // opaque payload for kinds not modeled above
	ContentHash string // SHA-256(signature || serialized payload), hex
}

// VersionedCrdsValue wraps a CrdsValue with node-local bookkeeping.
type VersionedCrdsValue struct {
	Ordinal          uint64
	Value            CrdsValue
	LocalTimestampMs int64
	NumPushReceipts  uint32
	FromPullResponse bool
}

// Overrides reports whether v strictly overrides other under the §3 rule:
// ContactInfo compares Outset first, then both kinds fall back to
// WallclockMs, then a lexicographic content-hash tiebreak.
func (v CrdsValue) Overrides(other CrdsValue) bool {
	if v.Label.Kind == KindContactInfo && v.ContactInfo != nil && other.ContactInfo != nil {
		if v.ContactInfo.Outset != other.ContactInfo.Outset {
			return v.ContactInfo.Outset > other.ContactInfo.Outset
		}
	}
	if v.WallclockMs != other.WallclockMs {
		return v.WallclockMs > other.WallclockMs
	}
	return v.ContentHash > other.ContentHash
}

// LogEntry is a single entry in the Raft replicated log.
type LogEntry struct {
	Term      uint64
	Index     uint64
	Payload   []byte
	Committed bool
}

// NodeState is a Raft node's role.
type NodeState int

const (
	Follower NodeState = iota
	Candidate
	Leader
)

func (s NodeState) String() string {
	switch s {
	case Follower:
		return "Follower"
	case Candidate:
		return "Candidate"
	case Leader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// NodeHealth is a point-in-time health snapshot used by the failover
// controller and multi-master coordinator's fitness scoring.
type NodeHealth struct {
	NodeID          string
	Responsive      bool
	LastHeartbeatMs int64
	CPU             float64
	Memory          float64
	Disk            float64
	NetLatencyMs    float64
	ErrorCount      int64
	IsLeader        bool
	Available       bool
}

// FitnessScore implements the weighted blend shared by §4.5 replacement
// selection and §4.6 global-leader election:
// 0.3(100-cpu) + 0.3(100-mem) + 0.2(100-disk) + 0.1(100-latency/10) + 0.1(100-min(100,errors))
func (h NodeHealth) FitnessScore() float64 {
	errTerm := float64(h.ErrorCount)
	if errTerm > 100 {
		errTerm = 100
	}
	return 0.3*(100-h.CPU) + 0.3*(100-h.Memory) + 0.2*(100-h.Disk) +
		0.1*(100-h.NetLatencyMs/10) + 0.1*(100-errTerm)
}

// MasterRole is one of the roles a node may hold in the multi-master scheme.
// A node may hold multiple roles simultaneously.
type MasterRole int

const (
	RoleNone MasterRole = iota
	RoleRPC
	RoleLedger
	RoleGossip
	RoleShard
	RoleGlobal
)

func (r MasterRole) String() string {
	switch r {
	case RoleRPC:
		return "RPC"
	case RoleLedger:
		return "Ledger"
	case RoleGossip:
		return "Gossip"
	case RoleShard:
		return "Shard"
	case RoleGlobal:
		return "Global"
	default:
		return "None"
	}
}

// MasterNode describes a node's role assignment within a region/shard.
type MasterNode struct {
	NodeID        string
	Address       string
	Port          int
	Role          MasterRole
	ShardID       string
	Region        string
	LastHeartbeat time.Time
	LoadScore     float64
	Healthy       bool
}

// GlobalConsensusState is the process-wide, monotonically-versioned
// reconciliation state held by the multi-master coordinator.
type GlobalConsensusState struct {
	GlobalLeader     string
	RoleAssignments  map[string]MasterRole // node_id -> role
	RegionLeaders    map[string]string     // region -> node_id
	ShardMasters     map[string]string     // shard_id -> node_id
	ConsensusTerm    uint64
	StateVersion     uint64
	LastUpdateMs     int64
}

// BackendServer is a router-managed candidate for request dispatch.
type BackendServer struct {
	ServerID           string
	Address            string
	Port               int
	Region             string
	Weight             int
	CurrentConnections int64
	MaxConnections     int64
	AvgResponseMs      float64
	HealthScore        float64
	Active             bool
	Draining           bool
	LastHealthCheck    time.Time
}

// Eligible reports whether the server may currently receive traffic, per
// §3: active, not draining, health_score > 0.5, and (checked by the caller,
// which holds the circuit breaker) the breaker closed.
func (b BackendServer) Eligible(circuitClosed bool) bool {
	return b.Active && !b.Draining && b.HealthScore > 0.5 && circuitClosed
}

// ConnectionRequest is an inbound request awaiting a routing decision.
type ConnectionRequest struct {
	RequestID    string
	ServiceName  string
	ClientIP     string
	SessionID    string
	TargetRegion string
	Timestamp    time.Time
}

// ConnectionResponse is the outcome of a routing decision.
type ConnectionResponse struct {
	ServerID     string
	Address      string
	Port         int
	Success      bool
	ErrorMessage string
	ResponseTime time.Duration
}
