/*
Package config provides configuration management for a cluster coordination
node, with multi-source support.

This package implements a hierarchical configuration system that supports
YAML files and environment variables, layered over compiled-in defaults.

# Configuration architecture

Precedence, highest to lowest:

	Environment variables (CLUSTER_*)
	Configuration file (YAML)
	Default values (NewDefault)

# Configuration structure

ValidatorConfig is the top-level struct: node identity (keypair path,
ledger path), bind addresses for RPC and gossip, and one nested config
struct per subsystem:

  - GossipConfig — push/pull/trim/ping intervals, fanout, entry timeout
  - ConsensusConfig — election timeout range, heartbeat interval, retry limits
  - ReplicationConfig — strategy, batch size, quorum size
  - FailoverConfig — health check cadence, failure thresholds, cooldown
  - MultiMasterConfig — per-region/shard role caps, global coordination period
  - TopologyConfig — partition health checks, link reliability threshold
  - RouterConfig — queue capacity, back-pressure policy, affinity TTL

Load order for a running node is: NewDefault(), then LoadFromFile(path)
if a config file is supplied, then LoadFromEnv() to apply operator
overrides, then Validate() before the node starts any subsystem.
*/
package config
