// Package failover detects unhealthy nodes and drives traffic away from
// them toward a fitness-ranked replacement, recovering failed nodes back
// into rotation once they stabilize.
package failover

import (
	"container/ring"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clustercore/cluster/internal/config"
	"github.com/clustercore/cluster/pkg/errors"
	"github.com/clustercore/cluster/pkg/types"
)

// State is one of the controller's seven operating modes.
type State int

const (
	Normal State = iota
	DetectingFailure
	ElectingReplacement
	SwitchingTraffic
	RecoveryInProgress
	FailedOver
	Emergency
)

func (s State) String() string {
	switch s {
	case Normal:
		return "Normal"
	case DetectingFailure:
		return "DetectingFailure"
	case ElectingReplacement:
		return "ElectingReplacement"
	case SwitchingTraffic:
		return "SwitchingTraffic"
	case RecoveryInProgress:
		return "RecoveryInProgress"
	case FailedOver:
		return "FailedOver"
	case Emergency:
		return "Emergency"
	default:
		return "Unknown"
	}
}

const historySize = 100

// defaultSettlePeriod is how long the controller waits in FailedOver before
// settling back to Normal when cfg.SettlePeriod is unset.
const defaultSettlePeriod = 2 * time.Second

// Event records one controller transition for operator review.
type Event struct {
	Timestamp time.Time
	From      State
	To        State
	NodeID    string
	Reason    string
}

// FailoverStats is a snapshot of the controller's outcome counters and
// current state, read by consumers without blocking the controller.
type FailoverStats struct {
	CurrentState        State
	SuccessfulFailovers uint64
	FailedFailovers     uint64
}

// FailoverOutcomeCallback is invoked with "successful" or "failed" each time
// runFailover concludes, for metrics export.
type FailoverOutcomeCallback func(outcome string)

// Controller drives the failover state machine over a fixed node set.
type Controller struct {
	mu sync.Mutex

	cfg     config.FailoverConfig
	handler types.FailoverActionHandler

	state            State
	failingNode      string
	consecutiveFails map[string]int
	lastFailoverAt   time.Time
	lastRecoveryAt   map[string]time.Time

	successfulFailovers uint64
	failedFailovers     uint64
	onOutcome           FailoverOutcomeCallback

	history *ring.Ring

	stopCh chan struct{}
	wg     sync.WaitGroup
	now    func() time.Time
}

// New creates a Controller driven by handler under cfg.
func New(handler types.FailoverActionHandler, cfg config.FailoverConfig) *Controller {
	return &Controller{
		cfg:              cfg,
		handler:          handler,
		state:            Normal,
		consecutiveFails: make(map[string]int),
		lastRecoveryAt:   make(map[string]time.Time),
		history:          ring.New(historySize),
		stopCh:           make(chan struct{}),
		now:              time.Now,
	}
}

// OnOutcome registers a callback invoked after every completed failover
// attempt with "successful" or "failed", for a caller (e.g. internal/metrics)
// to export as a counter.
func (c *Controller) OnOutcome(cb FailoverOutcomeCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOutcome = cb
}

// Stats returns a snapshot of the controller's current state and outcome
// counters.
func (c *Controller) Stats() FailoverStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FailoverStats{
		CurrentState:        c.state,
		SuccessfulFailovers: c.successfulFailovers,
		FailedFailovers:     c.failedFailovers,
	}
}

// Start launches the periodic health-check loop.
func (c *Controller) Start(ctx context.Context, nodeIDs []string) {
	c.wg.Add(1)
	go c.healthCheckLoop(ctx, nodeIDs)
}

// Stop halts the background loop.
func (c *Controller) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Controller) healthCheckLoop(ctx context.Context, nodeIDs []string) {
	defer c.wg.Done()
	interval := c.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAll(ctx, nodeIDs)
		}
	}
}

func (c *Controller) checkAll(ctx context.Context, nodeIDs []string) {
	for _, id := range nodeIDs {
		health, err := c.handler.GetNodeHealth(ctx, id)
		if err != nil || !health.Responsive {
			c.recordFailure(ctx, id, nodeIDs)
			continue
		}
		c.recordSuccess(id)
	}
}

func (c *Controller) recordSuccess(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFails[nodeID] = 0
}

func (c *Controller) recordFailure(ctx context.Context, nodeID string, candidates []string) {
	c.mu.Lock()
	c.consecutiveFails[nodeID]++
	count := c.consecutiveFails[nodeID]
	threshold := c.cfg.MaxConsecutiveFailures
	if threshold <= 0 {
		threshold = 1
	}
	shouldAct := count >= threshold && c.state == Normal
	if shouldAct {
		c.transitionLocked(DetectingFailure, nodeID, "consecutive health check failures")
	}
	c.mu.Unlock()

	if shouldAct {
		c.runFailover(ctx, nodeID, candidates)
	}
}

func (c *Controller) transitionLocked(to State, nodeID, reason string) {
	from := c.state
	c.state = to
	c.failingNode = nodeID
	c.history.Value = Event{Timestamp: c.now(), From: from, To: to, NodeID: nodeID, Reason: reason}
	c.history = c.history.Next()
}

func (c *Controller) inCooldownLocked() bool {
	return c.now().Sub(c.lastFailoverAt) < c.cfg.FailoverCooldown
}

// runFailover executes the DetectingFailure -> ElectingReplacement ->
// SwitchingTraffic -> FailedOver path, or escalates to Emergency if no
// eligible replacement exists. Any action-handler error along the way is
// treated as a failed failover and returns the controller to Normal rather
// than leaving it stuck mid-procedure. On success, the controller settles
// back to Normal on its own after a brief period.
func (c *Controller) runFailover(ctx context.Context, failed string, candidateIDs []string) {
	if !c.cfg.EnableAutomaticFailover {
		return
	}

	c.mu.Lock()
	if c.inCooldownLocked() {
		c.mu.Unlock()
		return
	}
	c.transitionLocked(ElectingReplacement, failed, "selecting replacement by fitness score")
	c.mu.Unlock()

	replacement, err := c.selectReplacement(ctx, failed, candidateIDs)
	if err != nil {
		c.recordOutcome(Emergency, failed, "no eligible replacement: "+err.Error(), false)
		return
	}

	c.mu.Lock()
	c.transitionLocked(SwitchingTraffic, failed, "redirecting traffic to "+replacement)
	c.mu.Unlock()

	failedHealth, _ := c.handler.GetNodeHealth(ctx, failed)

	if err := c.handler.IsolateFailedNode(ctx, failed); err != nil {
		c.recordOutcome(Normal, failed, "isolate failed: "+err.Error(), false)
		return
	}
	if failedHealth.IsLeader {
		if err := c.handler.DemoteNodeFromLeader(ctx, failed); err != nil {
			c.recordOutcome(Normal, failed, "demote failed: "+err.Error(), false)
			return
		}
	}
	if err := c.handler.PromoteNodeToLeader(ctx, replacement); err != nil {
		c.recordOutcome(Normal, failed, "promote failed: "+err.Error(), false)
		return
	}
	if err := c.handler.RedirectTraffic(ctx, failed, replacement); err != nil {
		c.recordOutcome(Normal, failed, "redirect failed: "+err.Error(), false)
		return
	}

	c.mu.Lock()
	c.transitionLocked(FailedOver, failed, "failover complete, new leader "+replacement)
	c.lastFailoverAt = c.now()
	c.mu.Unlock()
	c.recordOutcome(Normal, failed, "", true)
	c.scheduleSettle(failed)
}

// recordOutcome bumps the matching outcome counter and invokes the
// registered callback outside the lock. For a failed attempt it also
// transitions to toState with reason; the caller has already transitioned
// to FailedOver for a successful one.
func (c *Controller) recordOutcome(toState State, nodeID, reason string, success bool) {
	c.mu.Lock()
	if !success {
		c.transitionLocked(toState, nodeID, reason)
		c.failedFailovers++
	} else {
		c.successfulFailovers++
	}
	cb := c.onOutcome
	c.mu.Unlock()

	if cb == nil {
		return
	}
	if success {
		cb("successful")
	} else {
		cb("failed")
	}
}

// scheduleSettle transitions the controller from FailedOver back to Normal
// once SettlePeriod has elapsed, provided no newer procedure has since moved
// it elsewhere.
func (c *Controller) scheduleSettle(nodeID string) {
	settle := c.cfg.SettlePeriod
	if settle <= 0 {
		settle = defaultSettlePeriod
	}
	time.AfterFunc(settle, func() {
		c.mu.Lock()
		if c.state == FailedOver && c.failingNode == nodeID {
			c.transitionLocked(Normal, nodeID, "settle period elapsed")
		}
		c.mu.Unlock()
	})
}

// selectReplacement picks the highest fitness-scoring healthy, available
// candidate other than the failed node.
func (c *Controller) selectReplacement(ctx context.Context, failed string, candidateIDs []string) (string, error) {
	type scored struct {
		id    string
		score float64
	}
	var candidates []scored
	for _, id := range candidateIDs {
		if id == failed {
			continue
		}
		health, err := c.handler.GetNodeHealth(ctx, id)
		if err != nil || !health.Available || !health.Responsive {
			continue
		}
		candidates = append(candidates, scored{id: id, score: health.FitnessScore()})
	}
	if len(candidates) == 0 {
		return "", errors.New(errors.ErrCodeNoEligibleBackend, "no healthy candidate available for failover").
			WithComponent("failover").WithOperation("select_replacement")
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	return candidates[0].id, nil
}

// AttemptRecovery tries to restore a failed node back into the cluster,
// throttled to once per node per RecoveryRetryInterval.
func (c *Controller) AttemptRecovery(ctx context.Context, nodeID string) error {
	c.mu.Lock()
	last, tried := c.lastRecoveryAt[nodeID]
	interval := c.cfg.RecoveryRetryInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if tried && c.now().Sub(last) < interval {
		c.mu.Unlock()
		return errors.New(errors.ErrCodeRetryExhausted, "recovery attempted too recently for this node").
			WithComponent("failover").WithOperation("attempt_recovery")
	}
	c.lastRecoveryAt[nodeID] = c.now()
	c.transitionLocked(RecoveryInProgress, nodeID, "attempting restore to cluster")
	c.mu.Unlock()

	health, err := c.handler.GetNodeHealth(ctx, nodeID)
	if err != nil || !health.Responsive {
		return errors.New(errors.ErrCodeTransportFailure, "recovery health check failed").
			WithComponent("failover").WithOperation("attempt_recovery").WithCause(err)
	}

	if err := c.handler.RestoreNodeToCluster(ctx, nodeID); err != nil {
		return err
	}

	c.mu.Lock()
	c.consecutiveFails[nodeID] = 0
	if c.failingNode == nodeID {
		c.transitionLocked(Normal, nodeID, "node recovered")
	}
	c.mu.Unlock()
	return nil
}

// CurrentState returns the controller's current state.
func (c *Controller) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns up to historySize most recent transitions, oldest first.
func (c *Controller) History() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Event
	c.history.Do(func(v interface{}) {
		if v != nil {
			out = append(out, v.(Event))
		}
	})
	return out
}

// TriggerNodeFailureTest forces nodeID past the consecutive-failure
// threshold and runs the normal failover path against candidateIDs,
// bypassing the health-check ticker so integration tests don't need to
// wait on real timers.
func (c *Controller) TriggerNodeFailureTest(ctx context.Context, nodeID string, candidateIDs []string) {
	threshold := c.cfg.MaxConsecutiveFailures
	if threshold <= 0 {
		threshold = 1
	}
	c.mu.Lock()
	c.consecutiveFails[nodeID] = threshold
	c.transitionLocked(DetectingFailure, nodeID, "forced failure (test hook)")
	c.mu.Unlock()

	c.runFailover(ctx, nodeID, candidateIDs)
}

// TriggerNetworkPartitionTest simulates every node in unreachable losing
// connectivity at once: each is driven through recordFailure as if its
// health check failed, so whichever one crosses the threshold first
// triggers the same failover path a real partition would.
func (c *Controller) TriggerNetworkPartitionTest(ctx context.Context, unreachable, candidateIDs []string) {
	for _, id := range unreachable {
		c.recordFailure(ctx, id, candidateIDs)
	}
}

// RunFailoverTest exposes runFailover directly for tests that want to drive
// the ElectingReplacement/SwitchingTraffic/FailedOver path against a chosen
// failed node without going through health-check accounting at all.
func (c *Controller) RunFailoverTest(ctx context.Context, failed string, candidateIDs []string) {
	c.runFailover(ctx, failed, candidateIDs)
}
