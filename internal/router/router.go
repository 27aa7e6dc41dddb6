// Package router distributes inbound connection requests across backend
// servers: matching a routing rule, honoring session affinity, filtering
// to the eligible and circuit-closed backend set, applying the selected
// load-balancing strategy, and queuing under back-pressure when the
// system is overloaded.
package router

import (
	"sync"
	"time"

	"github.com/clustercore/cluster/internal/circuit"
	"github.com/clustercore/cluster/internal/config"
	"github.com/clustercore/cluster/pkg/errors"
	"github.com/clustercore/cluster/pkg/types"
)

// Rule matches inbound requests to a service's candidate backend set and
// names the strategy to use for it.
type Rule struct {
	ServiceName string
	Strategy    Strategy
}

// affinityEntry pins a session to a backend for SessionAffinityTTL.
type affinityEntry struct {
	serverID  string
	expiresAt time.Time
}

// Router wires rule matching, session affinity, backend eligibility
// (health plus circuit breaker state), strategy selection, and the
// back-pressure queue into one routing decision.
type Router struct {
	mu sync.Mutex

	cfg      config.RouterConfig
	rules    map[string]Rule
	backends map[string][]types.BackendServer // serviceName -> candidates

	affinity map[string]affinityEntry // sessionID -> entry
	breakers *circuit.Manager
	selector *Selector
	queue    *Queue

	stopCh chan struct{}
	wg     sync.WaitGroup
	now    func() time.Time
}

// New creates a Router. The per-backend health probe is supplied later to
// Start.
func New(cfg config.RouterConfig) *Router {
	r := &Router{
		cfg:      cfg,
		rules:    make(map[string]Rule),
		backends: make(map[string][]types.BackendServer),
		affinity: make(map[string]affinityEntry),
		breakers: circuit.NewManager(circuit.Config{}),
		selector: NewSelector(),
		queue: NewQueue(cfg.QueueCapacity, ParseBackPressurePolicy(cfg.BackPressurePolicy),
			cfg.BlockTimeout, cfg.RateLimitPerSecond),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
	return r
}

// SetRule registers the routing rule for a service.
func (r *Router) SetRule(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rule.ServiceName] = rule
}

// SetBackends replaces the candidate backend set for a service.
func (r *Router) SetBackends(serviceName string, backends []types.BackendServer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[serviceName] = backends
}

// Start launches the affinity GC loop and circuit breaker health-probe
// loop. probe, if non-nil, is called with each backend's ServerID and
// should report whether the backend currently answers traffic; its
// result is fed to the backend's circuit breaker as a success/failure.
func (r *Router) Start(probe func(serverID string) error) {
	r.wg.Add(1)
	go r.affinityGCLoop()
	if probe != nil {
		r.wg.Add(1)
		go r.healthProbeLoop(probe)
	}
}

// Stop halts background loops.
func (r *Router) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

func (r *Router) affinityGCLoop() {
	defer r.wg.Done()
	interval := r.cfg.AffinityGCInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.gcAffinity()
		}
	}
}

func (r *Router) gcAffinity() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for sid, entry := range r.affinity {
		if now.After(entry.expiresAt) {
			delete(r.affinity, sid)
		}
	}
}

func (r *Router) healthProbeLoop(probe func(serverID string) error) {
	defer r.wg.Done()
	interval := r.cfg.CircuitBreakerInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.probeAll(probe)
		}
	}
}

func (r *Router) probeAll(probe func(serverID string) error) {
	r.mu.Lock()
	ids := make(map[string]struct{})
	for _, list := range r.backends {
		for _, b := range list {
			ids[b.ServerID] = struct{}{}
		}
	}
	r.mu.Unlock()

	for id := range ids {
		breaker := r.breakers.GetBreaker(id)
		_ = breaker.Execute(func() error { return probe(id) })
	}
}

// Route performs the full routing procedure for req and returns a
// ConnectionResponse, queuing the request if no backend is immediately
// eligible but the queue's policy allows holding it for later dispatch.
func (r *Router) Route(req types.ConnectionRequest) types.ConnectionResponse {
	start := r.now()

	r.mu.Lock()
	rule, hasRule := r.rules[req.ServiceName]
	candidates := append([]types.BackendServer(nil), r.backends[req.ServiceName]...)
	r.mu.Unlock()

	if !hasRule {
		return types.ConnectionResponse{Success: false, ErrorMessage: "no routing rule for service"}
	}

	if pinned, ok := r.affinityTarget(req.SessionID); ok {
		for _, c := range candidates {
			if c.ServerID == pinned && r.eligible(c) {
				return r.respond(c, start)
			}
		}
		// pinned backend no longer eligible; fall through to re-selection
	}

	eligible := make([]types.BackendServer, 0, len(candidates))
	for _, c := range candidates {
		if r.eligible(c) {
			eligible = append(eligible, c)
		}
	}

	if len(eligible) == 0 {
		if err := r.queue.Enqueue(req); err != nil {
			return types.ConnectionResponse{Success: false, ErrorMessage: err.(*errors.ClusterError).Message}
		}
		return types.ConnectionResponse{Success: false, ErrorMessage: "queued: no eligible backend available"}
	}

	chosen := r.selector.Select(rule.Strategy, req.ServiceName, eligible, req)
	if req.SessionID != "" {
		r.bindAffinity(req.SessionID, chosen.ServerID)
	}
	return r.respond(chosen, start)
}

func (r *Router) eligible(b types.BackendServer) bool {
	breaker := r.breakers.GetBreaker(b.ServerID)
	return b.Eligible(breaker.GetState() == circuit.Closed)
}

func (r *Router) affinityTarget(sessionID string) (string, bool) {
	if sessionID == "" {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.affinity[sessionID]
	if !ok || r.now().After(entry.expiresAt) {
		return "", false
	}
	return entry.serverID, true
}

func (r *Router) bindAffinity(sessionID, serverID string) {
	ttl := r.cfg.SessionAffinityTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.affinity[sessionID] = affinityEntry{serverID: serverID, expiresAt: r.now().Add(ttl)}
}

func (r *Router) respond(b types.BackendServer, start time.Time) types.ConnectionResponse {
	return types.ConnectionResponse{
		ServerID:     b.ServerID,
		Address:      b.Address,
		Port:         b.Port,
		Success:      true,
		ResponseTime: r.now().Sub(start),
	}
}

// DequeueRetry pops the next queued request, for callers that re-drive
// Route once a backend may have become eligible again.
func (r *Router) DequeueRetry() (types.ConnectionRequest, bool) {
	return r.queue.Dequeue()
}
