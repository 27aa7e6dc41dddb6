/*
Package metrics provides Prometheus-based metrics collection for the cluster
coordination subsystems: CRDS table, gossip service, Raft consensus, failover
controller, multi-master coordinator, and the distributed request router.

# Core component

Collector aggregates and exports metrics through a Prometheus registry and
an HTTP /metrics endpoint.

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9090,
		Namespace: "clustercore",
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := collector.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer collector.Stop(ctx)

# Exported series

Counters:
  - clustercore_gossip_messages_total{direction,kind}
  - clustercore_crds_inserts_total{outcome}
  - clustercore_consensus_elections_total
  - clustercore_failover_transitions_total{from,to}
  - clustercore_router_requests_total{service,status}

Gauges:
  - clustercore_crds_table_size
  - clustercore_consensus_term / clustercore_consensus_commit_index
  - clustercore_consensus_state{state}
  - clustercore_failover_active
  - clustercore_master_assignments{role}
  - clustercore_global_consensus_state_version
  - clustercore_router_queue_utilization_percent
  - clustercore_router_circuit_breaker_open{server_id}

# HTTP endpoints

/metrics serves Prometheus-formatted output for scraping; /health returns a
liveness check independent of the scrape path.

# Thread safety

All Collector methods are safe for concurrent use; subsystems call them from
their own background loops without additional synchronization.
*/
package metrics
