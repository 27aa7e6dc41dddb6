// Package config loads and validates the cluster node's configuration from
// YAML files and environment variables, following the hierarchical pattern
// the rest of the cluster's ambient stack uses (defaults, then file, then env).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// ValidatorConfig is the single top-level configuration struct for a
// cluster node: identity, binds, and the per-component configs.
type ValidatorConfig struct {
	IdentityKeypairPath string `yaml:"identity_keypair_path"`
	LedgerPath          string `yaml:"ledger_path"`
	RPCBindAddress      string `yaml:"rpc_bind_address"`
	GossipBindAddress   string `yaml:"gossip_bind_address"`
	EnableRPC           bool   `yaml:"enable_rpc"`
	EnableGossip        bool   `yaml:"enable_gossip"`
	MaxConnections      int    `yaml:"max_connections"`
	Region              string `yaml:"region"`
	NodeAddress         string `yaml:"node_address"`
	NodePort            int    `yaml:"node_port"`

	Gossip      GossipConfig      `yaml:"gossip"`
	Consensus   ConsensusConfig   `yaml:"consensus"`
	Replication ReplicationConfig `yaml:"replication"`
	Failover    FailoverConfig    `yaml:"failover"`
	MultiMaster MultiMasterConfig `yaml:"multi_master"`
	Topology    TopologyConfig    `yaml:"topology"`
	Router      RouterConfig      `yaml:"router"`

	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	MetricsPort int    `yaml:"metrics_port"`
	HealthPort  int    `yaml:"health_port"`
}

// GossipConfig configures the CRDS dissemination service.
type GossipConfig struct {
	PushFanout      int           `yaml:"push_fanout"`
	PullFanout      int           `yaml:"pull_fanout"`
	PushInterval    time.Duration `yaml:"push_interval"`
	PullInterval    time.Duration `yaml:"pull_interval"`
	TrimInterval    time.Duration `yaml:"trim_interval"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	EntryTimeout    time.Duration `yaml:"entry_timeout"`
	ActiveSetRotate time.Duration `yaml:"active_set_rotate"`
	DedupCacheSize  int           `yaml:"dedup_cache_size"`
	MaxPayloadBytes int           `yaml:"max_payload_bytes"`
	EnablePingPong  bool          `yaml:"enable_ping_pong"`
	ShredVersion    uint16        `yaml:"shred_version"`
	Entrypoints     []string      `yaml:"entrypoints"`
}

// ConsensusConfig configures the Raft engine.
type ConsensusConfig struct {
	ElectionTimeoutMin time.Duration `yaml:"election_timeout_min"`
	ElectionTimeoutMax time.Duration `yaml:"election_timeout_max"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	MaxRetries         int           `yaml:"max_retries"`
	ProposalTimeout    time.Duration `yaml:"proposal_timeout"`
	RequiredConfirms   int           `yaml:"required_confirmations"`
}

// ReplicationConfig configures the replication manager.
type ReplicationConfig struct {
	Strategy          string        `yaml:"strategy"` // synchronous|asynchronous|quorum_based
	QuorumSize        int           `yaml:"quorum_size"`
	BatchSize         int           `yaml:"batch_size"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SyncCheckInterval time.Duration `yaml:"sync_check_interval"`
	MaxRetryCount     int           `yaml:"max_retry_count"`
}

// FailoverConfig configures the failover controller.
type FailoverConfig struct {
	HealthCheckInterval       time.Duration `yaml:"health_check_interval"`
	FailureDetectionTimeout   time.Duration `yaml:"failure_detection_timeout"`
	MaxConsecutiveFailures    int           `yaml:"max_consecutive_failures"`
	CPUThreshold              float64       `yaml:"cpu_threshold"`
	MemoryThreshold           float64       `yaml:"memory_threshold"`
	NetworkLatencyThresholdMs float64       `yaml:"network_latency_threshold_ms"`
	EnableAutomaticFailover   bool          `yaml:"enable_automatic_failover"`
	EnableLoadBasedFailover   bool          `yaml:"enable_load_based_failover"`
	FailoverCooldown          time.Duration `yaml:"failover_cooldown"`
	RecoveryRetryInterval     time.Duration `yaml:"recovery_retry_interval"`
	SettlePeriod              time.Duration `yaml:"settle_period"`
}

// MultiMasterConfig configures the multi-master coordinator.
type MultiMasterConfig struct {
	MaxMastersPerRegion      int           `yaml:"max_masters_per_region"`
	MaxMastersPerShard       int           `yaml:"max_masters_per_shard"`
	MinMastersForConsensus   int           `yaml:"min_masters_for_consensus"`
	MasterElectionTimeout    time.Duration `yaml:"master_election_timeout"`
	HeartbeatInterval        time.Duration `yaml:"heartbeat_interval"`
	SyncInterval             time.Duration `yaml:"sync_interval"`
	FailoverTimeout          time.Duration `yaml:"failover_timeout"`
	EnableAutomaticFailover  bool          `yaml:"enable_automatic_failover"`
	EnableCrossRegionSync    bool          `yaml:"enable_cross_region_sync"`
	EnableLoadBalancing      bool          `yaml:"enable_load_balancing"`
	GlobalCoordinationPeriod time.Duration `yaml:"global_coordination_period"`
	SyncRequestTimeout       time.Duration `yaml:"sync_request_timeout"`
	EventRetention           time.Duration `yaml:"event_retention"`
}

// TopologyConfig configures the topology manager.
type TopologyConfig struct {
	PartitionHealthCheckInterval time.Duration `yaml:"partition_health_check_interval"`
	LinkReliabilityThreshold     float64       `yaml:"link_reliability_threshold"`
}

// RouterConfig configures the distributed request router.
type RouterConfig struct {
	QueueCapacity          int           `yaml:"queue_capacity"`
	BackPressurePolicy     string        `yaml:"back_pressure_policy"` // drop_oldest|drop_newest|block|rate_limit
	BlockTimeout           time.Duration `yaml:"block_timeout"`
	RateLimitPerSecond     float64       `yaml:"rate_limit_per_second"`
	SessionAffinityTTL     time.Duration `yaml:"session_affinity_ttl"`
	AffinityGCInterval     time.Duration `yaml:"affinity_gc_interval"`
	CircuitBreakerInterval time.Duration `yaml:"circuit_breaker_interval"`
	HealthProbeInterval    time.Duration `yaml:"health_probe_interval"`
}

// NewDefault returns a ValidatorConfig with reasonable defaults for running
// a single node locally: gossip and RPC both bound to loopback, automatic
// failover and cross-region sync enabled, conservative timeouts throughout.
func NewDefault() *ValidatorConfig {
	return &ValidatorConfig{
		RPCBindAddress:    "127.0.0.1:8899",
		GossipBindAddress: "127.0.0.1:8001",
		EnableRPC:         true,
		EnableGossip:      true,
		MaxConnections:    1000,
		LogLevel:          "INFO",
		MetricsPort:       9090,
		HealthPort:        8080,

		Gossip: GossipConfig{
			PushFanout:      6,
			PullFanout:      3,
			PushInterval:    100 * time.Millisecond,
			PullInterval:    1 * time.Second,
			TrimInterval:    10 * time.Second,
			PingInterval:    5 * time.Second,
			EntryTimeout:    30 * time.Second,
			ActiveSetRotate: 30 * time.Second,
			DedupCacheSize:  10000,
			MaxPayloadBytes: 1232,
			EnablePingPong:  true,
		},
		Consensus: ConsensusConfig{
			ElectionTimeoutMin: 150 * time.Millisecond,
			ElectionTimeoutMax: 300 * time.Millisecond,
			HeartbeatInterval:  50 * time.Millisecond,
			MaxRetries:         5,
			ProposalTimeout:    2 * time.Second,
			RequiredConfirms:   3,
		},
		Replication: ReplicationConfig{
			Strategy:          "quorum_based",
			QuorumSize:        2,
			BatchSize:         100,
			HeartbeatInterval: 1 * time.Second,
			SyncCheckInterval: 5 * time.Second,
			MaxRetryCount:     3,
		},
		Failover: FailoverConfig{
			HealthCheckInterval:       5 * time.Second,
			FailureDetectionTimeout:   15 * time.Second,
			MaxConsecutiveFailures:    3,
			CPUThreshold:              90.0,
			MemoryThreshold:           90.0,
			NetworkLatencyThresholdMs: 1000.0,
			EnableAutomaticFailover:   true,
			EnableLoadBasedFailover:   false,
			FailoverCooldown:          30 * time.Second,
			RecoveryRetryInterval:     5 * time.Minute,
			SettlePeriod:              2 * time.Second,
		},
		MultiMaster: MultiMasterConfig{
			MaxMastersPerRegion:      3,
			MaxMastersPerShard:       1,
			MinMastersForConsensus:   1,
			MasterElectionTimeout:    5 * time.Second,
			HeartbeatInterval:        1 * time.Second,
			SyncInterval:             30 * time.Second,
			FailoverTimeout:          15 * time.Second,
			EnableAutomaticFailover:  true,
			EnableCrossRegionSync:    true,
			EnableLoadBalancing:      true,
			GlobalCoordinationPeriod: 30 * time.Second,
			SyncRequestTimeout:       30 * time.Second,
			EventRetention:           1 * time.Hour,
		},
		Topology: TopologyConfig{
			PartitionHealthCheckInterval: 10 * time.Second,
			LinkReliabilityThreshold:     0.8,
		},
		Router: RouterConfig{
			QueueCapacity:          1000,
			BackPressurePolicy:     "drop_newest",
			BlockTimeout:           1 * time.Second,
			RateLimitPerSecond:     500,
			SessionAffinityTTL:     1 * time.Hour,
			AffinityGCInterval:     5 * time.Minute,
			CircuitBreakerInterval: 5 * time.Second,
			HealthProbeInterval:    5 * time.Second,
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
func (c *ValidatorConfig) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv overlays configuration from CLUSTER_* environment variables.
func (c *ValidatorConfig) LoadFromEnv() error {
	if val := os.Getenv("CLUSTER_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("CLUSTER_LOG_FILE"); val != "" {
		c.LogFile = val
	}
	if val := os.Getenv("CLUSTER_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.MetricsPort = port
		}
	}
	if val := os.Getenv("CLUSTER_GOSSIP_BIND_ADDRESS"); val != "" {
		c.GossipBindAddress = val
	}
	if val := os.Getenv("CLUSTER_RPC_BIND_ADDRESS"); val != "" {
		c.RPCBindAddress = val
	}
	if val := os.Getenv("CLUSTER_REGION"); val != "" {
		c.Region = val
	}
	if val := os.Getenv("CLUSTER_MAX_CONNECTIONS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.MaxConnections = n
		}
	}
	if val := os.Getenv("CLUSTER_ENABLE_RPC"); val != "" {
		c.EnableRPC = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("CLUSTER_ENABLE_GOSSIP"); val != "" {
		c.EnableGossip = strings.ToLower(val) == "true"
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file.
func (c *ValidatorConfig) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for internal consistency.
func (c *ValidatorConfig) Validate() error {
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be greater than 0")
	}

	if c.MetricsPort == c.HealthPort {
		return fmt.Errorf("metrics_port and health_port cannot be the same")
	}

	validLogLevels := []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Consensus.ElectionTimeoutMin >= c.Consensus.ElectionTimeoutMax {
		return fmt.Errorf("consensus.election_timeout_min must be less than election_timeout_max")
	}

	switch c.Replication.Strategy {
	case "synchronous", "asynchronous", "quorum_based":
	default:
		return fmt.Errorf("invalid replication.strategy: %s", c.Replication.Strategy)
	}

	if c.Replication.Strategy == "quorum_based" && c.Replication.QuorumSize <= 0 {
		return fmt.Errorf("replication.quorum_size must be greater than 0 for quorum_based strategy")
	}

	switch c.Router.BackPressurePolicy {
	case "drop_oldest", "drop_newest", "block", "rate_limit":
	default:
		return fmt.Errorf("invalid router.back_pressure_policy: %s", c.Router.BackPressurePolicy)
	}

	if c.Router.QueueCapacity <= 0 {
		return fmt.Errorf("router.queue_capacity must be greater than 0")
	}

	if c.MultiMaster.MinMastersForConsensus <= 0 {
		return fmt.Errorf("multi_master.min_masters_for_consensus must be greater than 0")
	}

	return nil
}
