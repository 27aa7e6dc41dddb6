package gossip

import "github.com/clustercore/cluster/pkg/types"

// MessageKind identifies the wire message types exchanged between gossip
// peers, mirroring types.Route but as an explicit envelope tag.
type MessageKind int

const (
	KindPush MessageKind = iota
	KindPullRequest
	KindPullResponse
	KindPrune
	KindPing
	KindPong
)

// Message is the envelope carried over the gossip Transport. Exactly one
// of the payload fields is populated, selected by Kind.
type Message struct {
	Kind MessageKind
	From string

	PushValues     []types.CrdsValue // KindPush
	PullFilter     *BloomFilter      // KindPullRequest
	PullOrigin     string            // KindPullRequest: origin being queried, "" for any
	PullResponse   []types.CrdsValue // KindPullResponse
	PrunedOrigins  []string          // KindPrune: origins the sender no longer wants pushed to it
	Nonce          uint64            // KindPing / KindPong
}

// Transport abstracts sending and receiving gossip messages over the
// network. Implementations own the wire encoding; this package only
// depends on the interface so it can be tested without a socket.
type Transport interface {
	Send(addr string, msg Message) error
	Recv() (Message, error)
	Close() error
}
