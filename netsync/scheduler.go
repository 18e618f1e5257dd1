// Package netsync implements the download half of the transaction
// propagation control plane: per-peer announcement bookkeeping and a
// scheduler that decides which peer is responsible for fetching each
// announced transaction and when.
package netsync

import (
	"sort"
	"sync"
	"time"

	"github.com/acbcsuite/acbc/chaincfg/chainhash"
	"github.com/acbcsuite/acbc/log"
	"github.com/decred/dcrd/lru"
	"github.com/google/btree"
)

// btreeDegree is the branching factor used for every ordered index in this
// package.  32 is the degree google/btree's own README benchmarks against
// and is a reasonable default for the set sizes MaxPeerTxAnnouncements
// implies.
const btreeDegree = 32

// peerState is the scheduler's per-peer bookkeeping: which hashes this peer
// has offered, and whether each is merely announced or already requested.
type peerState struct {
	id       int32
	outbound bool

	byHash    map[chainhash.Hash]announcement
	announced *btree.BTree // ordered by next eligible request time
	requested *btree.BTree // ordered by request expiry

	droppedAnnouncements uint64
}

func newPeerState(id int32, outbound bool) *peerState {
	return &peerState{
		id:        id,
		outbound:  outbound,
		byHash:    make(map[chainhash.Hash]announcement),
		announced: btree.New(btreeDegree),
		requested: btree.New(btreeDegree),
	}
}

// askedForEntry records who is currently responsible for fetching a hash
// and when their request is due to expire.
type askedForEntry struct {
	when   time.Time
	peerID int32
}

// Scheduler coordinates per-peer announcement/request state and the
// process-wide "who is fetching this" map described by the specification's
// GlobalAskedFor. A single mutex guards all of it: the spec requires the
// move from announced to requested and the GlobalAskedFor update to be one
// atomic step from the perspective of other peers, and the simplest way to
// guarantee that in Go is a single critical section.
type Scheduler struct {
	mtx sync.Mutex

	cfg     Config
	jitter  JitterSource
	mempool Mempool

	peers         map[int32]*peerState
	askedFor      map[chainhash.Hash]askedForEntry
	recentRejects lru.Cache

	misbehave MisbehaviorFunc
}

// recentRejectsMultiplier sets the size of the process-wide "recently known
// to be uninteresting" filter as a multiple of a single peer's
// announcement cap so that even a peer at its cap cannot force useful
// evictions from it.
const recentRejectsMultiplier = 5

// NewScheduler returns a Scheduler using cfg for its tunables and mp as the
// "already known locally" filter. Every time-dependent method takes the
// current time explicitly rather than consulting an injected clock, so
// there is no clock parameter here; only the announcement-delay jitter
// needs abstracting for tests, and if jitter is nil a process-seeded
// source is used.
func NewScheduler(cfg Config, mp Mempool, jitter JitterSource) *Scheduler {
	if jitter == nil {
		jitter = defaultJitterSource()
	}
	size := uint(cfg.MaxPeerTxAnnouncements * recentRejectsMultiplier)
	if size == 0 {
		size = 1
	}
	return &Scheduler{
		cfg:           cfg,
		recentRejects: lru.NewCache(size),
		jitter:        jitter,
		mempool:       mp,
		peers:         make(map[int32]*peerState),
		askedFor:      make(map[chainhash.Hash]askedForEntry),
	}
}

// MarkRejected records that hash was fetched and found uninteresting (for
// example, rejected by the mempool as invalid). Future announcements of the
// same hash are treated as already known and dropped without a fetch until
// the entry ages out of the filter.
func (s *Scheduler) MarkRejected(hash chainhash.Hash) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.recentRejects.Add(hash)
}

// SetMisbehaviorFunc registers the callback used to report peer misbehavior
// (cap violations) to the surrounding network layer.
func (s *Scheduler) SetMisbehaviorFunc(fn MisbehaviorFunc) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.misbehave = fn
}

// RegisterPeer records p's identity and outbound flag with the scheduler.
// It is the entry point network wiring should use instead of AddPeer so
// the scheduler never needs to know the concrete peer type.
func (s *Scheduler) RegisterPeer(p Peer) {
	s.AddPeer(p.ID(), p.IsOutbound())
}

// AddPeer registers a newly connected peer.
func (s *Scheduler) AddPeer(id int32, outbound bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, exists := s.peers[id]; exists {
		return
	}
	s.peers[id] = newPeerState(id, outbound)
}

// RemovePeer drops every announcement and outstanding request owned by the
// peer, including its entries in the global asked-for map, and forgets the
// peer entirely. This is the cancellation path required on disconnect: it
// leaves no partial state for any hash the peer was responsible for.
func (s *Scheduler) RemovePeer(id int32) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	p, exists := s.peers[id]
	if !exists {
		return
	}
	for hash := range p.byHash {
		if entry, ok := s.askedFor[hash]; ok && entry.peerID == id {
			delete(s.askedFor, hash)
		}
	}
	delete(s.peers, id)
}

// OnInv records that peerID announced hash. Outbound peers are eligible
// immediately; inbound peers are delayed by InboundPeerTxDelay so that a
// flood of inbound connections cannot systematically win the race to
// deliver a transaction (and thereby control whether we ever see it).
func (s *Scheduler) OnInv(peerID int32, hash chainhash.Hash, now time.Time) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	p, exists := s.peers[peerID]
	if !exists {
		return
	}
	requestTime := now
	if !p.outbound {
		requestTime = now.Add(s.cfg.InboundPeerTxDelay)
	}
	s.addAnnounced(p, hash, requestTime)
}

// OnTx records that the transaction identified by hash has been received
// from peerID. The delivering peer's own bookkeeping is cleared, the
// process-wide claim on the hash is released, and every other peer that had
// announced the same hash releases its bookkeeping too, since there is no
// longer anything to fetch.
func (s *Scheduler) OnTx(peerID int32, hash chainhash.Hash) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if p, exists := s.peers[peerID]; exists {
		s.removeFromPeer(p, hash)
	}
	delete(s.askedFor, hash)
	for id, p := range s.peers {
		if id == peerID {
			continue
		}
		s.removeFromPeer(p, hash)
	}
}

// GetAnnouncementsToRequest walks peerID's announced set in ascending
// request-time order and returns the hashes that should be sent in a
// GETDATA to that peer right now. Hashes already known locally are
// dropped. Hashes some other peer is already fetching cause this peer's
// announcement to be requeued as a fallback, at a strictly later time, per
// the no-double-ask law.
func (s *Scheduler) GetAnnouncementsToRequest(peerID int32, now time.Time) []chainhash.Hash {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	p, exists := s.peers[peerID]
	if !exists {
		return nil
	}

	// Snapshot the due announcements before mutating anything: every
	// action below (drop, requeue, promote) changes announced's contents,
	// and mutating a btree while ascending it is not safe. The snapshot
	// also guarantees this call terminates even if a requeue lands a hash
	// back at a due time, since a requeued hash is simply left for the
	// next call.
	var due []chainhash.Hash
	p.announced.Ascend(func(item btree.Item) bool {
		k := item.(announcementKey)
		if k.when.After(now) {
			return false
		}
		due = append(due, k.hash)
		return true
	})

	result := make([]chainhash.Hash, 0, len(due))
	for _, hash := range due {
		if p.requested.Len() >= s.cfg.MaxPeerTxInFlight {
			break
		}

		if (s.mempool != nil && s.mempool.HaveTransaction(hash)) || s.recentRejects.Contains(hash) {
			s.removeFromPeer(p, hash)
			continue
		}

		if entry, ok := s.askedFor[hash]; ok {
			delay := s.cfg.InboundDelay
			if p.outbound {
				delay = s.cfg.OutboundDelay
			}
			newTime := entry.when.Add(delay)
			if s.cfg.MaxGetDataRandomDelay > 0 {
				jitter := time.Duration(s.jitter.Int63n(int64(s.cfg.MaxGetDataRandomDelay) + 1))
				newTime = newTime.Add(jitter)
			}
			s.requeue(p, hash, newTime)
			continue
		}

		expiry := now.Add(s.cfg.GetDataTxInterval)
		s.setRequestExpiry(p, hash, expiry)
		s.askedFor[hash] = askedForEntry{when: expiry, peerID: peerID}
		result = append(result, hash)
	}
	return result
}

// ExpirePeer performs the routine expiry sweep for a peer: outstanding
// requests past their deadline are dropped (and their global claim
// released, so another peer's next announcement of the same hash is
// immediately eligible), and unrequested announcements past
// TxAnnouncementLifetime are dropped. It should be called once per
// peer-turn, ahead of GetAnnouncementsToRequest.
func (s *Scheduler) ExpirePeer(peerID int32, now time.Time) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	p, exists := s.peers[peerID]
	if !exists {
		return
	}
	s.expireRequested(p, now)
	s.expireOldAnnouncements(p, now)
}

// Tick drives every connected peer through one expiry sweep followed by one
// GetAnnouncementsToRequest call, and returns the GETDATA batches to send,
// keyed by peer id. Peers are visited in ascending id order for
// deterministic, reproducible behavior across runs; interrupt, if non-nil,
// is checked between peers and causes Tick to return early with whatever
// batches were already computed.
func (s *Scheduler) Tick(now time.Time, interrupt <-chan struct{}) map[int32][]chainhash.Hash {
	s.mtx.Lock()
	ids := make([]int32, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	s.mtx.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := make(map[int32][]chainhash.Hash)
	for _, id := range ids {
		select {
		case <-interrupt:
			return result
		default:
		}
		s.ExpirePeer(id, now)
		if hashes := s.GetAnnouncementsToRequest(id, now); len(hashes) > 0 {
			result[id] = hashes
		}
	}
	return result
}

// PeerStats summarizes a peer's current bookkeeping for diagnostics.
type PeerStats struct {
	Announced            int
	Requested            int
	DroppedAnnouncements uint64
}

// Stats returns a snapshot of peerID's current state, or the zero value if
// the peer is unknown.
func (s *Scheduler) Stats(peerID int32) PeerStats {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	p, exists := s.peers[peerID]
	if !exists {
		return PeerStats{}
	}
	return PeerStats{
		Announced:            p.announced.Len(),
		Requested:            p.requested.Len(),
		DroppedAnnouncements: p.droppedAnnouncements,
	}
}

// --- internal helpers; callers must hold s.mtx ---

func (s *Scheduler) addAnnounced(p *peerState, hash chainhash.Hash, requestTime time.Time) {
	if _, exists := p.byHash[hash]; exists {
		return
	}
	if len(p.byHash) >= s.cfg.MaxPeerTxAnnouncements {
		p.droppedAnnouncements++
		log.SyncLog.Debugf("peer %d exceeded max tx announcements (%d), dropping %v",
			p.id, s.cfg.MaxPeerTxAnnouncements, hash)
		if s.misbehave != nil {
			s.misbehave(p.id, 1, "max-tx-announcements-exceeded")
		}
		return
	}
	a := announcement{hash: hash, timestamp: requestTime}
	p.byHash[hash] = a
	p.announced.ReplaceOrInsert(keyOf(a))
}

func (s *Scheduler) requeue(p *peerState, hash chainhash.Hash, newRequestTime time.Time) {
	a, exists := p.byHash[hash]
	if !exists {
		return
	}
	oldKey := keyOf(a)
	p.announced.Delete(oldKey)
	p.requested.Delete(oldKey)
	a.timestamp = newRequestTime
	p.byHash[hash] = a
	p.announced.ReplaceOrInsert(keyOf(a))
}

func (s *Scheduler) setRequestExpiry(p *peerState, hash chainhash.Hash, expiry time.Time) bool {
	a, exists := p.byHash[hash]
	if !exists {
		return false
	}
	p.announced.Delete(keyOf(a))
	a.timestamp = expiry
	p.byHash[hash] = a
	p.requested.ReplaceOrInsert(keyOf(a))
	return true
}

func (s *Scheduler) removeFromPeer(p *peerState, hash chainhash.Hash) {
	a, exists := p.byHash[hash]
	if !exists {
		return
	}
	key := keyOf(a)
	p.announced.Delete(key)
	p.requested.Delete(key)
	delete(p.byHash, hash)
}

func (s *Scheduler) expireRequested(p *peerState, now time.Time) {
	for {
		item := p.requested.Min()
		if item == nil {
			break
		}
		k := item.(announcementKey)
		if k.when.After(now) {
			break
		}
		p.requested.DeleteMin()
		delete(p.byHash, k.hash)
		delete(s.askedFor, k.hash)
	}
}

func (s *Scheduler) expireOldAnnouncements(p *peerState, now time.Time) {
	cutoff := now.Add(-s.cfg.TxAnnouncementLifetime)
	var dropped int
	for {
		item := p.announced.Min()
		if item == nil {
			break
		}
		k := item.(announcementKey)
		if !k.when.Before(cutoff) {
			break
		}
		p.announced.DeleteMin()
		delete(p.byHash, k.hash)
		dropped++
	}
	if dropped > 0 {
		log.SyncLog.Debugf("peer %d: expired %d stale announcements", p.id, dropped)
	}
}
