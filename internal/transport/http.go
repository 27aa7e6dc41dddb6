package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/clustercore/cluster/pkg/types"
)

// PeerResolver maps a peer/target node ID to its RPC address. cmd/clusterd
// backs it with the addresses given in its --peers flag.
type PeerResolver func(nodeID string) (string, bool)

// HTTPRPCClient implements types.ClusterCommunication and
// types.ReplicationTransport over plain JSON-over-HTTP POST requests. Each
// Raft or replication RPC is a fire-and-forget call from the caller's
// perspective (errors surface but responses are routed back in through the
// receiving engine's Handle* methods via HTTPRPCServer, not returned here).
type HTTPRPCClient struct {
	selfNode string
	resolve  PeerResolver
	client   *http.Client
}

// NewHTTPRPCClient builds a client using resolve to turn peer/target node
// IDs into addresses. selfNode is attached to response RPCs (vote-response,
// append-entries-response) as the "peer" query parameter so the receiving
// engine knows which peer the response came from.
func NewHTTPRPCClient(selfNode string, resolve PeerResolver) *HTTPRPCClient {
	return &HTTPRPCClient{
		selfNode: selfNode,
		resolve:  resolve,
		client:   &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *HTTPRPCClient) post(ctx context.Context, nodeID, path string, body interface{}) error {
	addr, ok := c.resolve(nodeID)
	if !ok {
		return fmt.Errorf("no known address for node %s", nodeID)
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal rpc body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("rpc %s to %s: status %d", path, nodeID, resp.StatusCode)
	}
	return nil
}

func (c *HTTPRPCClient) SendVoteRequest(ctx context.Context, peerID string, req types.VoteRequest) error {
	return c.post(ctx, peerID, "/raft/vote-request", req)
}

func (c *HTTPRPCClient) SendVoteResponse(ctx context.Context, peerID string, resp types.VoteResponse) error {
	return c.post(ctx, peerID, "/raft/vote-response?peer="+c.selfNode, resp)
}

func (c *HTTPRPCClient) SendAppendEntries(ctx context.Context, peerID string, req types.AppendEntriesRequest) error {
	return c.post(ctx, peerID, "/raft/append-entries", req)
}

func (c *HTTPRPCClient) SendAppendEntriesResponse(ctx context.Context, peerID string, resp types.AppendEntriesResponse) error {
	return c.post(ctx, peerID, "/raft/append-entries-response?peer="+c.selfNode, resp)
}

func (c *HTTPRPCClient) SendBatch(ctx context.Context, targetID string, batch types.ReplicationBatch) error {
	return c.post(ctx, targetID, "/replication/batch", batch)
}

func (c *HTTPRPCClient) SendHeartbeat(ctx context.Context, targetID string) error {
	return c.post(ctx, targetID, "/replication/heartbeat", struct{}{})
}

func (c *HTTPRPCClient) RequestSync(ctx context.Context, targetID string, fromIndex uint64) error {
	return c.post(ctx, targetID, "/replication/request-sync", struct {
		FromIndex uint64 `json:"from_index"`
	}{FromIndex: fromIndex})
}

// ConsensusEngine is the subset of *consensus.Engine the RPC server routes
// inbound requests into.
type ConsensusEngine interface {
	HandleVoteRequest(req types.VoteRequest) types.VoteResponse
	HandleVoteResponse(peerID string, resp types.VoteResponse)
	HandleAppendEntries(req types.AppendEntriesRequest) types.AppendEntriesResponse
	HandleAppendEntriesResponse(peerID string, resp types.AppendEntriesResponse)
}

// ReplicationReceiver is the target-side callback that receives replication
// batches. The batch/heartbeat/sync endpoints are accepted and
// acknowledged here; applying a received batch to local state lives outside
// the transport layer, so the handler is a plain callback.
type ReplicationReceiver interface {
	OnBatch(batch types.ReplicationBatch) error
}

// HTTPRPCServer exposes the Raft and replication endpoints an
// HTTPRPCClient on a peer node calls into.
type HTTPRPCServer struct {
	engine   ConsensusEngine
	repl     ReplicationReceiver
	selfNode string
}

// NewHTTPRPCServer builds the server-side handler. repl may be nil if this
// node doesn't accept replication traffic.
func NewHTTPRPCServer(selfNode string, engine ConsensusEngine, repl ReplicationReceiver) *HTTPRPCServer {
	return &HTTPRPCServer{engine: engine, repl: repl, selfNode: selfNode}
}

// Register attaches the RPC endpoints to mux.
func (s *HTTPRPCServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("/raft/vote-request", s.handleVoteRequest)
	mux.HandleFunc("/raft/vote-response", s.handleVoteResponse)
	mux.HandleFunc("/raft/append-entries", s.handleAppendEntries)
	mux.HandleFunc("/raft/append-entries-response", s.handleAppendEntriesResponse)
	mux.HandleFunc("/replication/batch", s.handleBatch)
	mux.HandleFunc("/replication/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("/replication/request-sync", s.handleRequestSync)
}

func (s *HTTPRPCServer) handleVoteRequest(w http.ResponseWriter, r *http.Request) {
	var req types.VoteRequest
	if !decode(w, r, &req) {
		return
	}
	resp := s.engine.HandleVoteRequest(req)
	encode(w, resp)
}

func (s *HTTPRPCServer) handleVoteResponse(w http.ResponseWriter, r *http.Request) {
	var resp types.VoteResponse
	if !decode(w, r, &resp) {
		return
	}
	peerID := r.URL.Query().Get("peer")
	s.engine.HandleVoteResponse(peerID, resp)
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPRPCServer) handleAppendEntries(w http.ResponseWriter, r *http.Request) {
	var req types.AppendEntriesRequest
	if !decode(w, r, &req) {
		return
	}
	resp := s.engine.HandleAppendEntries(req)
	encode(w, resp)
}

func (s *HTTPRPCServer) handleAppendEntriesResponse(w http.ResponseWriter, r *http.Request) {
	var resp types.AppendEntriesResponse
	if !decode(w, r, &resp) {
		return
	}
	peerID := r.URL.Query().Get("peer")
	s.engine.HandleAppendEntriesResponse(peerID, resp)
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPRPCServer) handleBatch(w http.ResponseWriter, r *http.Request) {
	var batch types.ReplicationBatch
	if !decode(w, r, &batch) {
		return
	}
	if s.repl != nil {
		if err := s.repl.OnBatch(batch); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPRPCServer) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPRPCServer) handleRequestSync(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func encode(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
