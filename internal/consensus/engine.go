// Package consensus implements the cluster's Raft engine: leader election,
// log replication, and commit-safe application of proposals to a node's
// state machine.
package consensus

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/clustercore/cluster/internal/config"
	"github.com/clustercore/cluster/pkg/retry"
	"github.com/clustercore/cluster/pkg/types"
)

// Stats is a snapshot of engine activity and current role.
type Stats struct {
	State            types.NodeState
	Term             uint64
	Leader           string
	LastApplied      uint64
	CommitIndex      uint64
	ElectionsStarted uint64
	ElectionsWon     uint64
	VotesCast        uint64
	HeartbeatsSent   uint64
	ProposalsApplied uint64
	ProposalsFailed  uint64
}

// Engine runs a single Raft node against a fixed set of peer IDs.
type Engine struct {
	mu sync.Mutex

	nodeID string
	peers  []string
	cfg    config.ConsensusConfig
	comm   types.ClusterCommunication
	onApply types.StateMachineCallback

	state       types.NodeState
	currentTerm uint64
	votedFor    string
	log         *Log

	commitIndex uint64
	lastApplied uint64

	nextIndex  map[string]uint64
	matchIndex map[string]uint64
	votesGranted map[string]bool

	leaderID string
	rng      *rand.Rand

	pending map[string]*pendingProposal

	stats Stats

	electionDeadline time.Time
	lastHeartbeatSent time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
	now    func() time.Time
}

type pendingProposal struct {
	id        string
	data      []byte
	logIndex  uint64
	term      uint64
	attempts  int
	createdAt time.Time
	resultCh  chan error
}

// New creates a Raft engine for nodeID among the given peer IDs (excluding
// itself). comm is used to send RPCs; the caller's transport layer must
// route inbound RPCs to HandleVoteRequest/HandleAppendEntries and route
// inbound responses to HandleVoteResponse/HandleAppendEntriesResponse.
func New(nodeID string, peers []string, comm types.ClusterCommunication, cfg config.ConsensusConfig) *Engine {
	e := &Engine{
		nodeID:     nodeID,
		peers:      peers,
		cfg:        cfg,
		comm:       comm,
		state:      types.Follower,
		log:        NewLog(),
		nextIndex:  make(map[string]uint64),
		matchIndex: make(map[string]uint64),
		votesGranted: make(map[string]bool),
		pending:    make(map[string]*pendingProposal),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(len(nodeID)))),
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}
	e.resetElectionDeadline()
	return e
}

// OnApply registers the state machine callback invoked for each committed
// entry, in index order, exactly once.
func (e *Engine) OnApply(cb types.StateMachineCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onApply = cb
}

// Start launches the election-timeout and heartbeat background loops.
func (e *Engine) Start() {
	e.wg.Add(2)
	go e.electionLoop()
	go e.heartbeatLoop()
}

// Stop halts the background loops.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

func (e *Engine) resetElectionDeadline() {
	lo := e.cfg.ElectionTimeoutMin
	hi := e.cfg.ElectionTimeoutMax
	if hi <= lo {
		hi = lo + time.Millisecond
	}
	jitter := time.Duration(e.rng.Int63n(int64(hi - lo)))
	e.electionDeadline = e.now().Add(lo + jitter)
}

func (e *Engine) electionLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.mu.Lock()
			expired := e.state != types.Leader && e.now().After(e.electionDeadline)
			e.mu.Unlock()
			if expired {
				e.startElection()
			}
		}
	}
}

func (e *Engine) heartbeatLoop() {
	defer e.wg.Done()
	interval := e.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.mu.Lock()
			isLeader := e.state == types.Leader
			e.mu.Unlock()
			if isLeader {
				e.sendAppendEntriesToAll(true)
			}
			e.retryPendingProposals()
		}
	}
}

// startElection converts to Candidate, votes for itself, and requests
// votes from every peer.
func (e *Engine) startElection() {
	e.mu.Lock()
	e.state = types.Candidate
	e.currentTerm++
	e.votedFor = e.nodeID
	e.votesGranted = map[string]bool{e.nodeID: true}
	e.stats.ElectionsStarted++
	e.resetElectionDeadline()
	term := e.currentTerm
	lastIndex := e.log.LastIndex()
	lastTerm := e.log.LastTerm()
	peers := append([]string(nil), e.peers...)
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ProposalTimeout)
	defer cancel()

	req := types.VoteRequest{Term: term, CandidateID: e.nodeID, LastLogIndex: lastIndex, LastLogTerm: lastTerm}
	for _, peer := range peers {
		_ = e.comm.SendVoteRequest(ctx, peer, req)
	}

	// With no peers the self-vote already satisfies majority(); no response
	// will ever arrive to trigger HandleVoteResponse's promotion, so check
	// here too.
	e.mu.Lock()
	if e.state == types.Candidate && term == e.currentTerm && len(e.votesGranted) >= e.majority() {
		e.becomeLeaderLocked()
	}
	e.mu.Unlock()
}

// HandleVoteRequest decides whether to grant a vote, per the up-to-date
// log rule and the already-voted-this-term rule, and returns the response
// the caller's transport should send back via SendVoteResponse.
func (e *Engine) HandleVoteRequest(req types.VoteRequest) types.VoteResponse {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.Term > e.currentTerm {
		e.becomeFollowerLocked(req.Term)
	}

	if req.Term < e.currentTerm {
		return types.VoteResponse{Term: e.currentTerm, VoteGranted: false}
	}

	canVote := e.votedFor == "" || e.votedFor == req.CandidateID
	logOK := e.log.UpToDate(req.LastLogTerm, req.LastLogIndex)

	if canVote && logOK {
		e.votedFor = req.CandidateID
		e.stats.VotesCast++
		e.resetElectionDeadline()
		return types.VoteResponse{Term: e.currentTerm, VoteGranted: true}
	}
	return types.VoteResponse{Term: e.currentTerm, VoteGranted: false}
}

// HandleVoteResponse processes a vote response from peerID and promotes
// the node to Leader once a majority has been granted.
func (e *Engine) HandleVoteResponse(peerID string, resp types.VoteResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if resp.Term > e.currentTerm {
		e.becomeFollowerLocked(resp.Term)
		return
	}
	if e.state != types.Candidate || resp.Term != e.currentTerm || !resp.VoteGranted {
		return
	}

	e.votesGranted[peerID] = true
	if len(e.votesGranted) >= e.majority() {
		e.becomeLeaderLocked()
	}
}

func (e *Engine) majority() int {
	return (len(e.peers)+1)/2 + 1
}

func (e *Engine) becomeLeaderLocked() {
	e.state = types.Leader
	e.leaderID = e.nodeID
	e.stats.ElectionsWon++
	for _, p := range e.peers {
		e.nextIndex[p] = e.log.LastIndex() + 1
		e.matchIndex[p] = 0
	}
}

func (e *Engine) becomeFollowerLocked(term uint64) {
	e.state = types.Follower
	e.currentTerm = term
	e.votedFor = ""
	e.leaderID = ""
	e.resetElectionDeadline()
}

// IsLeader reports whether this node currently believes itself leader.
func (e *Engine) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == types.Leader
}

// CurrentTerm returns the node's current term.
func (e *Engine) CurrentTerm() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTerm
}

// Stats returns a snapshot of engine state and counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.State = e.state
	s.Term = e.currentTerm
	s.Leader = e.leaderID
	s.CommitIndex = e.commitIndex
	s.LastApplied = e.lastApplied
	return s
}

func retryConfigFor(cfg config.ConsensusConfig) retry.Config {
	rc := retry.DefaultConfig()
	if cfg.MaxRetries > 0 {
		rc.MaxAttempts = cfg.MaxRetries
	}
	return rc
}
