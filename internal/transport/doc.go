// Package transport provides the concrete network implementations that
// satisfy gossip.Transport, types.ClusterCommunication, and
// types.ReplicationTransport: a UDP socket for gossip envelopes, and a
// small JSON-over-HTTP client/server for the Raft and replication RPCs,
// since those need an acknowledged response rather than fire-and-forget
// datagrams. Wire format is not specified by the coordination contracts
// these satisfy; this package picks one so cmd/clusterd has something
// runnable.
package transport
