package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates and exports Prometheus metrics for the cluster
// coordination subsystems: gossip, consensus, failover, multi-master, and
// the request router.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry

	gossipMessages   *prometheus.CounterVec
	crdsTableSize    prometheus.Gauge
	crdsInserts      *prometheus.CounterVec

	consensusTerm        prometheus.Gauge
	consensusCommitIndex prometheus.Gauge
	consensusElections   prometheus.Counter
	consensusState       *prometheus.GaugeVec

	failoverTransitions *prometheus.CounterVec
	failoverActive      prometheus.Gauge
	failoverOutcomes    *prometheus.CounterVec

	masterAssignments *prometheus.GaugeVec
	globalStateVersion prometheus.Gauge

	routerRequests    *prometheus.CounterVec
	routerQueueUtil   prometheus.Gauge
	routerCircuitOpen *prometheus.GaugeVec

	server *http.Server

	lastReset time.Time
}

// Config represents metrics configuration.
type Config struct {
	Enabled        bool              `yaml:"enabled"`
	Port           int               `yaml:"port"`
	Path           string            `yaml:"path"`
	Labels         map[string]string `yaml:"labels"`
	Namespace      string            `yaml:"namespace"`
	Subsystem      string            `yaml:"subsystem"`
	UpdateInterval time.Duration     `yaml:"update_interval"`
}

// NewCollector creates a new metrics collector.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:        true,
			Port:           9090,
			Path:           "/metrics",
			Namespace:      "clustercore",
			UpdateInterval: 30 * time.Second,
			Labels:         make(map[string]string),
		}
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	registry := prometheus.NewRegistry()

	c := &Collector{
		config:    config,
		registry:  registry,
		lastReset: time.Now(),
	}

	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return c, nil
}

// Start starts the metrics HTTP server.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", c.healthHandler)

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}

// Stop stops the metrics HTTP server.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// RecordGossipMessage records a gossip message send or receive by kind.
func (c *Collector) RecordGossipMessage(direction, kind string) {
	if !c.config.Enabled {
		return
	}
	c.gossipMessages.With(prometheus.Labels{"direction": direction, "kind": kind}).Inc()
}

// RecordCrdsInsert records a CRDS insert outcome (inserted, updated, rejected).
func (c *Collector) RecordCrdsInsert(outcome string) {
	if !c.config.Enabled {
		return
	}
	c.crdsInserts.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// SetCrdsTableSize updates the current CRDS table entry count.
func (c *Collector) SetCrdsTableSize(size int) {
	if !c.config.Enabled {
		return
	}
	c.crdsTableSize.Set(float64(size))
}

// SetConsensusState records the current term, commit index, and node state.
func (c *Collector) SetConsensusState(term, commitIndex uint64, state string) {
	if !c.config.Enabled {
		return
	}
	c.consensusTerm.Set(float64(term))
	c.consensusCommitIndex.Set(float64(commitIndex))

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range []string{"Follower", "Candidate", "Leader"} {
		val := 0.0
		if s == state {
			val = 1.0
		}
		c.consensusState.With(prometheus.Labels{"state": s}).Set(val)
	}
}

// RecordElection records a completed leader election.
func (c *Collector) RecordElection() {
	if !c.config.Enabled {
		return
	}
	c.consensusElections.Inc()
}

// RecordFailoverTransition records a failover state machine transition.
func (c *Collector) RecordFailoverTransition(from, to string) {
	if !c.config.Enabled {
		return
	}
	c.failoverTransitions.With(prometheus.Labels{"from": from, "to": to}).Inc()
	if to == "Normal" {
		c.failoverActive.Set(0)
	} else {
		c.failoverActive.Set(1)
	}
}

// RecordFailoverOutcome records whether a completed failover attempt
// succeeded or failed.
func (c *Collector) RecordFailoverOutcome(outcome string) {
	if !c.config.Enabled {
		return
	}
	c.failoverOutcomes.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// SetMasterAssignments records the number of nodes currently holding a role.
func (c *Collector) SetMasterAssignments(role string, count int) {
	if !c.config.Enabled {
		return
	}
	c.masterAssignments.With(prometheus.Labels{"role": role}).Set(float64(count))
}

// SetGlobalStateVersion records the current global consensus state version.
func (c *Collector) SetGlobalStateVersion(version uint64) {
	if !c.config.Enabled {
		return
	}
	c.globalStateVersion.Set(float64(version))
}

// RecordRouterRequest records a routing decision outcome by service.
func (c *Collector) RecordRouterRequest(service string, success bool) {
	if !c.config.Enabled {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	c.routerRequests.With(prometheus.Labels{"service": service, "status": status}).Inc()
}

// SetRouterQueueUtilization records the bounded request queue's utilization
// percentage.
func (c *Collector) SetRouterQueueUtilization(pct float64) {
	if !c.config.Enabled {
		return
	}
	c.routerQueueUtil.Set(pct)
}

// SetCircuitBreakerOpen records whether a backend's circuit breaker is open.
func (c *Collector) SetCircuitBreakerOpen(serverID string, open bool) {
	if !c.config.Enabled {
		return
	}
	val := 0.0
	if open {
		val = 1.0
	}
	c.routerCircuitOpen.With(prometheus.Labels{"server_id": serverID}).Set(val)
}

func (c *Collector) initMetrics() error {
	ns := c.config.Namespace
	sub := c.config.Subsystem

	c.gossipMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, Name: "gossip_messages_total",
		Help: "Total gossip protocol messages by direction and kind",
	}, []string{"direction", "kind"})

	c.crdsInserts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, Name: "crds_inserts_total",
		Help: "Total CRDS insert attempts by outcome",
	}, []string{"outcome"})

	c.crdsTableSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: sub, Name: "crds_table_size",
		Help: "Current number of entries in the CRDS table",
	})

	c.consensusTerm = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: sub, Name: "consensus_term",
		Help: "Current Raft term",
	})
	c.consensusCommitIndex = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: sub, Name: "consensus_commit_index",
		Help: "Current Raft commit index",
	})
	c.consensusElections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, Name: "consensus_elections_total",
		Help: "Total leader elections completed",
	})
	c.consensusState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: sub, Name: "consensus_state",
		Help: "Current Raft node state, one-hot by state label",
	}, []string{"state"})

	c.failoverTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, Name: "failover_transitions_total",
		Help: "Total failover state machine transitions",
	}, []string{"from", "to"})
	c.failoverActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: sub, Name: "failover_active",
		Help: "1 if a failover procedure is currently in progress",
	})
	c.failoverOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, Name: "failover_outcomes_total",
		Help: "Total completed failover attempts by outcome",
	}, []string{"outcome"})

	c.masterAssignments = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: sub, Name: "master_assignments",
		Help: "Number of nodes currently holding each master role",
	}, []string{"role"})
	c.globalStateVersion = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: sub, Name: "global_consensus_state_version",
		Help: "Current GlobalConsensusState state_version",
	})

	c.routerRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, Name: "router_requests_total",
		Help: "Total routed requests by service and outcome",
	}, []string{"service", "status"})
	c.routerQueueUtil = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: sub, Name: "router_queue_utilization_percent",
		Help: "Current request queue utilization percentage",
	})
	c.routerCircuitOpen = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: sub, Name: "router_circuit_breaker_open",
		Help: "1 if a backend's circuit breaker is open",
	}, []string{"server_id"})

	return nil
}

func (c *Collector) registerMetrics() error {
	collectors := []prometheus.Collector{
		c.gossipMessages,
		c.crdsInserts,
		c.crdsTableSize,
		c.consensusTerm,
		c.consensusCommitIndex,
		c.consensusElections,
		c.consensusState,
		c.failoverTransitions,
		c.failoverActive,
		c.failoverOutcomes,
		c.masterAssignments,
		c.globalStateVersion,
		c.routerRequests,
		c.routerQueueUtil,
		c.routerCircuitOpen,
	}

	for _, col := range collectors {
		if err := c.registry.Register(col); err != nil {
			return err
		}
	}

	return nil
}

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"clustercore-metrics"}`))
}
