package consensus

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/clustercore/cluster/pkg/errors"
	"github.com/clustercore/cluster/pkg/types"
)

// sendAppendEntriesToAll replicates the leader's log tail to every peer.
// heartbeatOnly still carries any unreplicated entries; it only controls
// whether this call was triggered by the heartbeat timer versus a fresh
// proposal, which matters for metrics but not correctness.
func (e *Engine) sendAppendEntriesToAll(heartbeatOnly bool) {
	e.mu.Lock()
	if e.state != types.Leader {
		e.mu.Unlock()
		return
	}
	term := e.currentTerm
	leaderCommit := e.commitIndex
	peers := append([]string(nil), e.peers...)
	next := make(map[string]uint64, len(peers))
	for _, p := range peers {
		next[p] = e.nextIndex[p]
	}
	e.stats.HeartbeatsSent++
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ProposalTimeout)
	defer cancel()

	for _, peer := range peers {
		ni := next[peer]
		if ni == 0 {
			ni = 1
		}
		prevIndex := ni - 1
		prevTerm, _ := e.log.TermAt(prevIndex)
		entries := e.log.EntriesFrom(ni)

		req := types.AppendEntriesRequest{
			Term:         term,
			LeaderID:     e.nodeID,
			PrevLogIndex: prevIndex,
			PrevLogTerm:  prevTerm,
			Entries:      entries,
			LeaderCommit: leaderCommit,
		}
		_ = e.comm.SendAppendEntries(ctx, peer, req)
	}
}

// HandleAppendEntries applies the replication RPC from a leader, including
// the log-matching check and truncation of conflicting suffixes.
func (e *Engine) HandleAppendEntries(req types.AppendEntriesRequest) types.AppendEntriesResponse {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.Term < e.currentTerm {
		return types.AppendEntriesResponse{Term: e.currentTerm, Success: false}
	}
	if req.Term > e.currentTerm || e.state != types.Follower {
		e.becomeFollowerLocked(req.Term)
	}
	e.leaderID = req.LeaderID
	e.resetElectionDeadline()

	if req.PrevLogIndex > 0 {
		term, ok := e.log.TermAt(req.PrevLogIndex)
		if !ok || term != req.PrevLogTerm {
			return types.AppendEntriesResponse{Term: e.currentTerm, Success: false}
		}
	}

	for _, entry := range req.Entries {
		existingTerm, ok := e.log.TermAt(entry.Index)
		if ok && existingTerm != entry.Term {
			e.log.TruncateAfter(entry.Index - 1)
		}
		if !ok || existingTerm != entry.Term {
			e.log.Append(entry.Term, entry.Payload)
		}
	}

	if req.LeaderCommit > e.commitIndex {
		newCommit := req.LeaderCommit
		if e.log.LastIndex() < newCommit {
			newCommit = e.log.LastIndex()
		}
		e.commitIndex = newCommit
		e.log.MarkCommitted(e.commitIndex)
	}

	return types.AppendEntriesResponse{Term: e.currentTerm, Success: true}
}

// HandleAppendEntriesResponse advances matchIndex/nextIndex for peerID and
// recomputes the commit index. A rejected response backs nextIndex off by
// one and relies on the next heartbeat to retry with an earlier prevIndex.
func (e *Engine) HandleAppendEntriesResponse(peerID string, resp types.AppendEntriesResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if resp.Term > e.currentTerm {
		e.becomeFollowerLocked(resp.Term)
		return
	}
	if e.state != types.Leader {
		return
	}

	if !resp.Success {
		if e.nextIndex[peerID] > 1 {
			e.nextIndex[peerID]--
		}
		return
	}

	e.matchIndex[peerID] = e.log.LastIndex()
	e.nextIndex[peerID] = e.matchIndex[peerID] + 1
	e.advanceCommitIndexLocked()
}

// advanceCommitIndexLocked implements the Raft safety rule: commit the
// highest index replicated to a majority, but only if that entry was
// written during the current term. Entries from prior terms are committed
// only as a side effect of a current-term entry at a higher index
// reaching majority.
func (e *Engine) advanceCommitIndexLocked() {
	matchIndexes := make([]uint64, 0, len(e.peers)+1)
	matchIndexes = append(matchIndexes, e.log.LastIndex()) // leader's own match
	for _, p := range e.peers {
		matchIndexes = append(matchIndexes, e.matchIndex[p])
	}
	sort.Slice(matchIndexes, func(i, j int) bool { return matchIndexes[i] > matchIndexes[j] })

	candidate := matchIndexes[e.majority()-1]
	if candidate <= e.commitIndex {
		return
	}
	term, ok := e.log.TermAt(candidate)
	if !ok || term != e.currentTerm {
		return
	}
	e.commitIndex = candidate
	e.log.MarkCommitted(e.commitIndex)
	e.applyCommittedLocked()
}

func (e *Engine) applyCommittedLocked() {
	for e.lastApplied < e.commitIndex {
		e.lastApplied++
		entry, ok := e.log.EntryAt(e.lastApplied)
		if !ok {
			break
		}
		cb := e.onApply
		if cb != nil {
			cb(entry.Payload)
		}
	}
}

// Propose appends data to the leader's log and blocks until it commits,
// fails after the configured proposal timeout, or the retry budget is
// exhausted. Only the leader can accept proposals.
func (e *Engine) Propose(ctx context.Context, id string, data []byte) error {
	e.mu.Lock()
	if e.state != types.Leader {
		e.mu.Unlock()
		return errors.New(errors.ErrCodeInvariantViolated, "propose called on non-leader").
			WithComponent("consensus").WithOperation("propose")
	}
	term := e.currentTerm
	index := e.log.Append(term, data)
	p := &pendingProposal{id: id, data: data, logIndex: index, term: term, createdAt: e.now(), resultCh: make(chan error, 1)}
	e.pending[id] = p
	e.mu.Unlock()

	e.sendAppendEntriesToAll(false)

	timeout := e.cfg.ProposalTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.failProposal(id)
			return ctx.Err()
		case <-timer.C:
			e.mu.Lock()
			p, stillPending := e.pending[id]
			committed := p != nil && e.commitIndex >= p.logIndex
			e.mu.Unlock()
			if committed {
				e.mu.Lock()
				delete(e.pending, id)
				e.stats.ProposalsApplied++
				e.mu.Unlock()
				return nil
			}
			if !stillPending {
				return fmt.Errorf("proposal %s no longer pending", id)
			}
			e.mu.Lock()
			p.attempts++
			exceeded := p.attempts >= retryConfigFor(e.cfg).MaxAttempts
			e.mu.Unlock()
			if exceeded {
				e.failProposal(id)
				return errors.New(errors.ErrCodeRetryExhausted, "proposal retry budget exhausted").
					WithComponent("consensus").WithOperation("propose").WithDetail("proposal_id", id)
			}
			e.sendAppendEntriesToAll(false)
			timer.Reset(timeout)
		}
	}
}

func (e *Engine) failProposal(id string) {
	e.mu.Lock()
	delete(e.pending, id)
	e.stats.ProposalsFailed++
	e.mu.Unlock()
}

// retryPendingProposals re-sends AppendEntries for proposals that have not
// yet committed, called from the heartbeat loop so retries piggyback on
// the normal replication cadence rather than running their own timers.
func (e *Engine) retryPendingProposals() {
	e.mu.Lock()
	hasPending := len(e.pending) > 0
	isLeader := e.state == types.Leader
	e.mu.Unlock()
	if hasPending && isLeader {
		e.sendAppendEntriesToAll(false)
	}
}
