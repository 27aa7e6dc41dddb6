// Package gossip implements the cluster's CRDS dissemination protocol:
// periodic push and pull anti-entropy, active-set rotation with pruning,
// and ping/pong liveness checks, layered on top of internal/crds.Table.
package gossip

import (
	"math/rand"
	"sync"
	"time"

	"github.com/clustercore/cluster/internal/config"
	"github.com/clustercore/cluster/internal/crds"
	"github.com/clustercore/cluster/pkg/types"
)

// Stats is a snapshot of gossip service activity.
type Stats struct {
	PushesSent       uint64
	PushesReceived   uint64
	PullRequestsSent uint64
	PullRequestsRecv uint64
	PullResponseSent uint64
	PullResponseRecv uint64
	PingsSent        uint64
	PongsReceived    uint64
	Pruned           uint64
	DuplicatesDropped uint64
	ShredConflicts   uint64
}

// Service runs the background gossip loops over a crds.Table.
type Service struct {
	mu sync.Mutex

	selfID    string
	table     *crds.Table
	transport Transport
	cfg       config.GossipConfig

	peers           map[string]WeightedPeer
	activeSet       []string
	lastPushOrdinal map[string]uint64
	prunedThisTick  map[string]struct{}

	dedup    *DedupCache
	shreds   *ShredDetector
	rng      *rand.Rand
	stats    Stats

	onContactInfo types.ContactInfoCallback
	onVote        types.VoteCallback

	stopCh chan struct{}
	wg     sync.WaitGroup
	now    func() time.Time
}

// New creates a gossip Service bound to table and transport.
func New(selfID string, table *crds.Table, transport Transport, cfg config.GossipConfig) *Service {
	return &Service{
		selfID:          selfID,
		table:           table,
		transport:       transport,
		cfg:             cfg,
		peers:           make(map[string]WeightedPeer),
		lastPushOrdinal: make(map[string]uint64),
		prunedThisTick:  make(map[string]struct{}),
		dedup:           NewDedupCache(cfg.DedupCacheSize),
		shreds:          NewShredDetector(),
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh:          make(chan struct{}),
		now:             time.Now,
	}
}

// OnContactInfo registers a callback invoked for each freshly inserted
// ContactInfo value.
func (s *Service) OnContactInfo(cb types.ContactInfoCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onContactInfo = cb
}

// OnVote registers a callback invoked for each freshly inserted Vote value.
func (s *Service) OnVote(cb types.VoteCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onVote = cb
}

// AddPeer registers or updates a known peer and its stake weight.
func (s *Service) AddPeer(addr string, stake uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[addr] = WeightedPeer{Address: addr, Stake: stake}
}

// RemovePeer forgets a peer entirely.
func (s *Service) RemovePeer(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, addr)
	delete(s.lastPushOrdinal, addr)
}

// Start launches the push, pull, trim, ping, active-set rotation, and
// receive loops. Call Stop to shut them down.
func (s *Service) Start() {
	s.wg.Add(6)
	go s.loop(s.cfg.PushInterval, s.pushTick)
	go s.loop(s.cfg.PullInterval, s.pullTick)
	go s.loop(s.cfg.TrimInterval, s.trimTick)
	go s.loop(s.cfg.PingInterval, s.pingTick)
	go s.loop(s.cfg.ActiveSetRotate, s.rotateTick)
	go s.receiveLoop()
}

// Stop signals all background loops to exit and waits for them.
func (s *Service) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Service) loop(interval time.Duration, tick func()) {
	defer s.wg.Done()
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			tick()
		}
	}
}

func (s *Service) receiveLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		msg, err := s.transport.Recv()
		if err != nil {
			continue
		}
		s.handle(msg)
	}
}

// pushTick sends each active-set peer every table entry it has not yet
// been sent, bounded to one push message per interval per peer.
func (s *Service) pushTick() {
	s.mu.Lock()
	active := append([]string(nil), s.activeSet...)
	s.mu.Unlock()

	for _, peer := range active {
		s.mu.Lock()
		lastOrdinal := s.lastPushOrdinal[peer]
		s.mu.Unlock()

		entries := s.table.GetEntriesAfter(lastOrdinal, s.cfg.PushFanout*10)
		if len(entries) == 0 {
			continue
		}

		values := make([]types.CrdsValue, 0, len(entries))
		maxOrdinal := lastOrdinal
		for _, e := range entries {
			values = append(values, e.Value)
			if e.Ordinal > maxOrdinal {
				maxOrdinal = e.Ordinal
			}
		}

		if err := s.transport.Send(peer, Message{Kind: KindPush, From: s.selfID, PushValues: values}); err == nil {
			s.mu.Lock()
			s.lastPushOrdinal[peer] = maxOrdinal
			s.stats.PushesSent++
			s.mu.Unlock()
		}
	}
}

// pullTick asks a small random subset of peers for anything this node is
// missing, represented by a bloom filter over known content hashes.
func (s *Service) pullTick() {
	s.mu.Lock()
	peers := make([]WeightedPeer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	if len(peers) == 0 {
		return
	}

	filter := s.buildBloomFilter()
	targets := StakeWeightedShuffle(peers, s.rng)
	limit := s.cfg.PullFanout
	if limit > len(targets) {
		limit = len(targets)
	}
	for i := 0; i < limit; i++ {
		err := s.transport.Send(targets[i].Address, Message{Kind: KindPullRequest, From: s.selfID, PullFilter: filter})
		if err == nil {
			s.mu.Lock()
			s.stats.PullRequestsSent++
			s.mu.Unlock()
		}
	}
}

func (s *Service) buildBloomFilter() *BloomFilter {
	all := s.table.GetEntriesAfter(0, 1<<20)
	filter := NewBloomFilter(len(all)+1, 10)
	for _, e := range all {
		filter.Add(e.Value.ContentHash)
	}
	return filter
}

// trimTick removes stale table entries. The per-tick prune set is reset by
// rotateTick, not here.
func (s *Service) trimTick() {
	nowMs := s.now().UnixMilli()
	timeoutMs := s.cfg.EntryTimeout.Milliseconds()
	s.table.Trim(nowMs, timeoutMs)
}

// pingTick sends liveness pings to active-set peers when ping/pong is
// enabled.
func (s *Service) pingTick() {
	if !s.cfg.EnablePingPong {
		return
	}
	s.mu.Lock()
	active := append([]string(nil), s.activeSet...)
	s.mu.Unlock()

	for _, peer := range active {
		nonce := s.rng.Uint64()
		if err := s.transport.Send(peer, Message{Kind: KindPing, From: s.selfID, Nonce: nonce}); err == nil {
			s.mu.Lock()
			s.stats.PingsSent++
			s.mu.Unlock()
		}
	}
}

// rotateTick recomputes the active set from known peers, excluding peers
// pruned during this same tick so a just-pruned peer cannot immediately
// reappear before the rotation completes.
func (s *Service) rotateTick() {
	s.mu.Lock()
	peers := make([]WeightedPeer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	pruned := s.prunedThisTick
	s.prunedThisTick = make(map[string]struct{})
	s.mu.Unlock()

	newActive := SelectActiveSet(peers, s.cfg.PushFanout, pruned, s.rng)

	s.mu.Lock()
	s.activeSet = newActive
	s.mu.Unlock()
}

func (s *Service) handle(msg Message) {
	switch msg.Kind {
	case KindPush:
		s.handlePush(msg)
	case KindPullRequest:
		s.handlePullRequest(msg)
	case KindPullResponse:
		s.handlePullResponse(msg)
	case KindPrune:
		s.handlePrune(msg)
	case KindPing:
		s.handlePing(msg)
	case KindPong:
		s.mu.Lock()
		s.stats.PongsReceived++
		s.mu.Unlock()
	}
}

func (s *Service) handlePush(msg Message) {
	s.mu.Lock()
	s.stats.PushesReceived++
	s.mu.Unlock()
	s.ingest(msg.PushValues, types.RoutePushMessage)
}

func (s *Service) handlePullRequest(msg Message) {
	s.mu.Lock()
	s.stats.PullRequestsRecv++
	s.mu.Unlock()

	all := s.table.GetEntriesAfter(0, 1<<20)
	missing := make([]types.CrdsValue, 0)
	for _, e := range all {
		if msg.PullFilter == nil || !msg.PullFilter.MayContain(e.Value.ContentHash) {
			missing = append(missing, e.Value)
		}
	}
	if len(missing) == 0 {
		return
	}
	if err := s.transport.Send(msg.From, Message{Kind: KindPullResponse, From: s.selfID, PullResponse: missing}); err == nil {
		s.mu.Lock()
		s.stats.PullResponseSent++
		s.mu.Unlock()
	}
}

func (s *Service) handlePullResponse(msg Message) {
	s.mu.Lock()
	s.stats.PullResponseRecv++
	s.mu.Unlock()
	s.ingest(msg.PullResponse, types.RoutePullResponse)
}

func (s *Service) handlePrune(msg Message) {
	s.mu.Lock()
	for _, origin := range msg.PrunedOrigins {
		s.prunedThisTick[origin] = struct{}{}
	}
	s.stats.Pruned += uint64(len(msg.PrunedOrigins))
	s.mu.Unlock()
}

func (s *Service) handlePing(msg Message) {
	_ = s.transport.Send(msg.From, Message{Kind: KindPong, From: s.selfID, Nonce: msg.Nonce})
}

func (s *Service) ingest(values []types.CrdsValue, route types.Route) {
	nowMs := s.now().UnixMilli()
	for _, v := range values {
		if s.dedup.Seen(v.ContentHash) {
			s.mu.Lock()
			s.stats.DuplicatesDropped++
			s.mu.Unlock()
			continue
		}
		if v.Label.Kind == types.KindEpochSlots {
			// EpochSlots values encode shred coverage bitmaps; their
			// SubIndex doubles as a shred index within the slot named
			// by the value's wallclock-adjacent payload.
			key := ShredKey{Slot: uint64(v.WallclockMs), Index: uint32(v.Label.SubIndex)}
			if s.shreds.Observe(key, v.ContentHash) {
				s.mu.Lock()
				s.stats.ShredConflicts++
				s.mu.Unlock()
			}
		}

		outcome, err := s.table.Insert(v, nowMs, route)
		if err != nil {
			continue
		}
		if outcome != crds.Inserted && outcome != crds.Updated {
			continue
		}

		s.mu.Lock()
		contactCb := s.onContactInfo
		voteCb := s.onVote
		s.mu.Unlock()

		if v.Label.Kind == types.KindContactInfo && v.ContactInfo != nil && contactCb != nil {
			contactCb(v.Label.Origin, *v.ContactInfo)
		}
		if v.Label.Kind == types.KindVote && v.Vote != nil && voteCb != nil {
			voteCb(v.Label.Origin, *v.Vote)
		}
	}
}

// ActiveSet returns a copy of the current active set.
func (s *Service) ActiveSet() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.activeSet...)
}

// Stats returns a copy of the service's activity counters.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
