// Command clusterd runs one node of the cluster coordination core: gossip
// dissemination, Raft consensus, replication, failover, multi-master role
// coordination, topology tracking, and request routing, fronted by the
// health/status/metrics HTTP surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/clustercore/cluster/internal/clusterstate"
	"github.com/clustercore/cluster/internal/config"
	"github.com/clustercore/cluster/internal/consensus"
	"github.com/clustercore/cluster/internal/crds"
	"github.com/clustercore/cluster/internal/failover"
	"github.com/clustercore/cluster/internal/gossip"
	"github.com/clustercore/cluster/internal/metrics"
	"github.com/clustercore/cluster/internal/multimaster"
	"github.com/clustercore/cluster/internal/replication"
	"github.com/clustercore/cluster/internal/router"
	"github.com/clustercore/cluster/internal/topology"
	"github.com/clustercore/cluster/internal/transport"
	"github.com/clustercore/cluster/pkg/api"
	"github.com/clustercore/cluster/pkg/health"
	"github.com/clustercore/cluster/pkg/status"
	"github.com/clustercore/cluster/pkg/types"
	"github.com/clustercore/cluster/pkg/utils"
)

// peerSpec is one entry of the --peers flag: id=region=gossipAddr=rpcAddr.
type peerSpec struct {
	id         string
	region     string
	gossipAddr string
	rpcAddr    string
}

func parsePeers(raw string) ([]peerSpec, error) {
	if raw == "" {
		return nil, nil
	}
	var peers []peerSpec
	for _, entry := range strings.Split(raw, ",") {
		fields := strings.Split(entry, "=")
		if len(fields) != 4 {
			return nil, fmt.Errorf("malformed --peers entry %q, want id=region=gossipAddr=rpcAddr", entry)
		}
		peers = append(peers, peerSpec{id: fields[0], region: fields[1], gossipAddr: fields[2], rpcAddr: fields[3]})
	}
	return peers, nil
}

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML ValidatorConfig file")
		nodeID     = flag.String("node-id", "", "this node's identity (required)")
		region     = flag.String("region", "default", "this node's region")
		peersFlag  = flag.String("peers", "", "comma-separated id=region=gossipAddr=rpcAddr peer list")
	)
	flag.Parse()

	if *nodeID == "" {
		fmt.Fprintln(os.Stderr, "clusterd: --node-id is required")
		os.Exit(1)
	}

	cfg := config.NewDefault()
	if *configPath != "" {
		if err := cfg.LoadFromFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "clusterd: loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "clusterd: applying env overrides: %v\n", err)
		os.Exit(1)
	}
	if *region != "" {
		cfg.Region = *region
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "clusterd: invalid config: %v\n", err)
		os.Exit(1)
	}

	level, err := utils.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = utils.INFO
	}
	logger, err := utils.NewStructuredLogger(&utils.StructuredLoggerConfig{
		Level:  level,
		Format: utils.FormatText,
		Output: os.Stdout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "clusterd: building logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithComponent("clusterd").WithField("node_id", *nodeID)

	peers, err := parsePeers(*peersFlag)
	if err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	addrs := map[string]string{} // node_id -> rpc addr, for transport.PeerResolver
	gossipAddrs := map[string]string{}
	var peerIDs []string
	for _, p := range peers {
		addrs[p.id] = p.rpcAddr
		gossipAddrs[p.id] = p.gossipAddr
		peerIDs = append(peerIDs, p.id)
	}

	topo := topology.New(cfg.Topology)
	topo.RegisterNode(topology.Node{NodeID: *nodeID, Region: cfg.Region, Active: true})
	for _, p := range peers {
		topo.RegisterNode(topology.Node{NodeID: p.id, Region: p.region, Active: true})
	}

	registry := clusterstate.New(*nodeID, topo)
	registry.Update(types.NodeHealth{NodeID: *nodeID, Available: true, Responsive: true, IsLeader: false})

	// Consensus: Raft engine over the HTTP RPC transport.
	rpcClient := transport.NewHTTPRPCClient(*nodeID, func(id string) (string, bool) {
		addr, ok := addrs[id]
		return addr, ok
	})
	engine := consensus.New(*nodeID, peerIDs, rpcClient, cfg.Consensus)
	engine.OnApply(func(payload []byte) {
		log.Info("applied committed entry", map[string]interface{}{"bytes": len(payload)})
	})

	// Replication targets mirror the Raft peer set by default.
	replMgr := replication.New(rpcClient, cfg.Replication)
	for _, id := range peerIDs {
		replMgr.AddTarget(id)
	}

	// Multi-master coordination, wired to the shared health registry.
	masters := multimaster.New(registry, cfg.MultiMaster)
	registry.SetCoordinator(masters)
	masters.RegisterNode(types.MasterNode{NodeID: *nodeID, Region: cfg.Region, Healthy: true})
	for _, p := range peers {
		masters.RegisterNode(types.MasterNode{NodeID: p.id, Region: p.region, Healthy: true})
	}

	// Failover controller watches the same node set via the registry.
	fc := failover.New(registry, cfg.Failover)

	// Gossip: CRDS table over a UDP transport.
	table := crds.NewTable(*nodeID, 64)
	gossipTransport, err := transport.NewUDPGossipTransport(cfg.GossipBindAddress, cfg.Gossip.MaxPayloadBytes)
	if err != nil {
		log.Error(fmt.Sprintf("starting gossip transport: %v", err))
		os.Exit(1)
	}
	gossipSvc := gossip.New(*nodeID, table, gossipTransport, cfg.Gossip)
	gossipSvc.OnContactInfo(func(origin string, info types.ContactInfoData) {
		registry.Update(types.NodeHealth{NodeID: origin, Available: true, Responsive: true})
	})
	for _, addr := range gossipAddrs {
		gossipSvc.AddPeer(addr, 1)
	}
	for _, addr := range cfg.Gossip.Entrypoints {
		gossipSvc.AddPeer(addr, 1)
	}

	// Router, started with no routing rules or backends registered.
	r := router.New(cfg.Router)

	// RPC server: Raft + replication endpoints.
	rpcServer := transport.NewHTTPRPCServer(*nodeID, engine, nil)
	rpcMux := http.NewServeMux()
	rpcServer.Register(rpcMux)
	rpcHTTPServer := &http.Server{Addr: cfg.RPCBindAddress, Handler: rpcMux}

	// Ambient observability stack.
	healthTracker := health.NewTracker(health.DefaultConfig())
	statusTracker := status.NewTracker(status.TrackerConfig{HealthTracker: healthTracker})
	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      cfg.MetricsPort,
		Path:      "/metrics",
		Namespace: "clustercore",
	})
	if err != nil {
		log.Error(fmt.Sprintf("starting metrics collector: %v", err))
		os.Exit(1)
	}
	fc.OnOutcome(collector.RecordFailoverOutcome)

	apiServer := api.NewServer(api.ServerConfig{
		Address:       "0.0.0.0:" + strconv.Itoa(cfg.HealthPort),
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  10 * time.Second,
		IdleTimeout:   60 * time.Second,
		EnableCORS:    true,
		EnableMetrics: true,
	}, statusTracker, healthTracker)

	log.Info("starting cluster node", map[string]interface{}{
		"gossip_addr": cfg.GossipBindAddress,
		"rpc_addr":    cfg.RPCBindAddress,
		"peers":       len(peerIDs),
	})

	engine.Start()
	gossipSvc.Start()
	masters.Start(ctx)
	fc.Start(ctx, append(append([]string{}, peerIDs...), *nodeID))
	r.Start(nil)
	apiServer.StartBackground()
	go func() {
		if err := rpcHTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(fmt.Sprintf("rpc server stopped: %v", err))
		}
	}()
	if err := collector.Start(ctx); err != nil {
		log.Error(fmt.Sprintf("starting metrics collector: %v", err))
	}

	// replMgr.Replicate is driven by the consensus apply callback in a
	// fuller wiring; left idle-but-ready here since this entry point has no
	// external write workload to replicate on its own.
	_ = replMgr

	<-ctx.Done()
	log.Info("shutting down", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = collector.Stop(shutdownCtx)
	_ = rpcHTTPServer.Shutdown(shutdownCtx)
	_ = apiServer.Shutdown(shutdownCtx)
	r.Stop()
	fc.Stop()
	masters.Stop()
	gossipSvc.Stop()
	engine.Stop()
	_ = gossipTransport.Close()
}
