// Package replication fans committed entries out to replication targets
// under a selectable consistency strategy, independent of the Raft
// transport.
package replication

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"

	"github.com/clustercore/cluster/internal/config"
	"github.com/clustercore/cluster/pkg/errors"
	"github.com/clustercore/cluster/pkg/types"
)

// Strategy selects how many targets must acknowledge a batch before
// Replicate returns success.
type Strategy int

const (
	Synchronous Strategy = iota
	Asynchronous
	QuorumBased
)

// ParseStrategy maps a ReplicationConfig.Strategy string to a Strategy,
// defaulting to QuorumBased for an unrecognized value.
func ParseStrategy(s string) Strategy {
	switch s {
	case "synchronous":
		return Synchronous
	case "asynchronous":
		return Asynchronous
	default:
		return QuorumBased
	}
}

// Target tracks a replication destination's lifecycle.
type Target struct {
	NodeID          string
	LastAppliedIndex uint64
	LastHeartbeatMs int64
	RetryCount      int
	Active          bool
}

// Stats is a snapshot of manager activity.
type Stats struct {
	BatchesSent     uint64
	BatchesFailed   uint64
	TargetsActive   int
	TargetsInactive int
}

// Manager replicates batches of entries to a fixed target set.
type Manager struct {
	mu        sync.Mutex
	strategy  Strategy
	cfg       config.ReplicationConfig
	transport types.ReplicationTransport
	targets   map[string]*Target
	nextIndex uint64
	stats     Stats
}

// New creates a Manager over transport using strategy and cfg.
func New(transport types.ReplicationTransport, cfg config.ReplicationConfig) *Manager {
	return &Manager{
		strategy:  ParseStrategy(cfg.Strategy),
		cfg:       cfg,
		transport: transport,
		targets:   make(map[string]*Target),
	}
}

// AddTarget registers a replication target as active.
func (m *Manager) AddTarget(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[nodeID] = &Target{NodeID: nodeID, Active: true}
}

// RemoveTarget forgets a target entirely.
func (m *Manager) RemoveTarget(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.targets, nodeID)
}

func checksum(data []byte) uint64 {
	sum := sha256.Sum256(data)
	return binary.BigEndian.Uint64(sum[:8])
}

// Replicate batches payloads starting at the manager's next index and
// sends them to every active target, applying the configured consistency
// strategy to decide success. Per the batching-with-checksums requirement,
// every entry carries a checksum the target can use to detect corruption.
func (m *Manager) Replicate(ctx context.Context, payloads [][]byte) error {
	m.mu.Lock()
	batch := m.buildBatchLocked(payloads)
	targets := m.activeTargetsLocked()
	strategy := m.strategy
	m.mu.Unlock()

	if len(targets) == 0 {
		return errors.New(errors.ErrCodeNoEligibleBackend, "no active replication targets").
			WithComponent("replication").WithOperation("replicate")
	}

	switch strategy {
	case Synchronous:
		return m.replicateSynchronous(ctx, batch, targets)
	case Asynchronous:
		return m.replicateAsynchronous(ctx, batch, targets)
	default:
		return m.replicateQuorum(ctx, batch, targets)
	}
}

func (m *Manager) buildBatchLocked(payloads [][]byte) types.ReplicationBatch {
	start := m.nextIndex + 1
	entries := make([]types.ReplicationEntry, 0, len(payloads))
	for i, p := range payloads {
		idx := start + uint64(i)
		entries = append(entries, types.ReplicationEntry{
			Index:     idx,
			Data:      p,
			Timestamp: time.Now().UnixMilli(),
			Checksum:  checksum(p),
		})
	}
	m.nextIndex = start + uint64(len(payloads)) - 1
	return types.ReplicationBatch{
		Entries:    entries,
		StartIndex: start,
		EndIndex:   m.nextIndex,
		BatchID:    batchID(start, m.nextIndex),
	}
}

func batchID(start, end uint64) string {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], start)
	binary.BigEndian.PutUint64(buf[8:], end)
	sum := sha256.Sum256(buf)
	return string(sum[:8])
}

func (m *Manager) activeTargetsLocked() []string {
	out := make([]string, 0, len(m.targets))
	for id, t := range m.targets {
		if t.Active {
			out = append(out, id)
		}
	}
	return out
}

func (m *Manager) sendToTarget(ctx context.Context, nodeID string, batch types.ReplicationBatch) error {
	err := m.transport.SendBatch(ctx, nodeID, batch)
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.targets[nodeID]
	if !ok {
		return err
	}
	if err != nil {
		target.RetryCount++
		if target.RetryCount >= m.cfg.MaxRetryCount && m.cfg.MaxRetryCount > 0 {
			target.Active = false
		}
		m.stats.BatchesFailed++
		return err
	}
	target.RetryCount = 0
	target.LastAppliedIndex = batch.EndIndex
	target.LastHeartbeatMs = time.Now().UnixMilli()
	m.stats.BatchesSent++
	return nil
}

// replicateSynchronous requires every active target to succeed.
func (m *Manager) replicateSynchronous(ctx context.Context, batch types.ReplicationBatch, targets []string) error {
	for _, t := range targets {
		if err := m.sendToTarget(ctx, t, batch); err != nil {
			return errors.New(errors.ErrCodeTransportFailure, "synchronous replication failed").
				WithComponent("replication").WithOperation("replicate").WithCause(err)
		}
	}
	return nil
}

// replicateAsynchronous fires sends to every target without waiting for
// results, and reports success as long as at least one send was
// attempted — it never blocks on delivery confirmation.
func (m *Manager) replicateAsynchronous(ctx context.Context, batch types.ReplicationBatch, targets []string) error {
	if len(targets) == 0 {
		return errors.New(errors.ErrCodeNoEligibleBackend, "no targets to attempt").
			WithComponent("replication").WithOperation("replicate")
	}
	for _, t := range targets {
		go func(nodeID string) {
			_ = m.sendToTarget(context.Background(), nodeID, batch)
		}(t)
	}
	return nil
}

// replicateQuorum waits for a quorum of targets (cfg.QuorumSize, or
// majority of active targets if unset) to succeed, collecting results
// concurrently.
func (m *Manager) replicateQuorum(ctx context.Context, batch types.ReplicationBatch, targets []string) error {
	required := m.cfg.QuorumSize
	if required <= 0 {
		required = len(targets)/2 + 1
	}
	if required > len(targets) {
		required = len(targets)
	}

	results := make(chan error, len(targets))
	for _, t := range targets {
		go func(nodeID string) {
			results <- m.sendToTarget(ctx, nodeID, batch)
		}(t)
	}

	succeeded := 0
	for i := 0; i < len(targets); i++ {
		if err := <-results; err == nil {
			succeeded++
			if succeeded >= required {
				return nil
			}
		}
	}
	return errors.New(errors.ErrCodeRetryExhausted, "quorum not reached for replication batch").
		WithComponent("replication").WithOperation("replicate")
}

// RequestSync asks a target to resynchronize from its last applied index.
func (m *Manager) RequestSync(ctx context.Context, nodeID string) error {
	m.mu.Lock()
	target, ok := m.targets[nodeID]
	from := uint64(0)
	if ok {
		from = target.LastAppliedIndex
	}
	m.mu.Unlock()
	if !ok {
		return errors.New(errors.ErrCodeNodeNotFound, "unknown replication target").
			WithComponent("replication").WithOperation("request_sync")
	}
	return m.transport.RequestSync(ctx, nodeID, from)
}

// Stats returns a copy of the manager's counters plus current target
// liveness split.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.TargetsActive = 0
	s.TargetsInactive = 0
	for _, t := range m.targets {
		if t.Active {
			s.TargetsActive++
		} else {
			s.TargetsInactive++
		}
	}
	return s
}
