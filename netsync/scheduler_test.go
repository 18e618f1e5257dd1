package netsync

import (
	"testing"
	"time"

	"github.com/acbcsuite/acbc/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

// zeroJitter always returns zero, making requeue timing deterministic.
type zeroJitter struct{}

func (zeroJitter) Int63n(int64) int64 { return 0 }

type fakeMempool struct {
	have map[chainhash.Hash]bool
}

func newFakeMempool() *fakeMempool { return &fakeMempool{have: make(map[chainhash.Hash]bool)} }

func (m *fakeMempool) HaveTransaction(hash chainhash.Hash) bool { return m.have[hash] }

func hashN(n byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = n
	return h
}

func epoch(us int64) time.Time {
	return time.Unix(0, us*int64(time.Microsecond))
}

func newTestScheduler(cfg Config) *Scheduler {
	return NewScheduler(cfg, newFakeMempool(), zeroJitter{})
}

// Scenario 1: basic due-time scheduling.
func TestGetAnnouncementsToRequest_DueTimeOrdering(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestScheduler(cfg)
	s.AddPeer(1, true)

	s.OnInv(1, hashN(1), epoch(1000))
	s.OnInv(1, hashN(2), epoch(1500))
	s.OnInv(1, hashN(3), epoch(2000))

	got := s.GetAnnouncementsToRequest(1, epoch(1500))
	require.Equal(t, []chainhash.Hash{hashN(1), hashN(2)}, got)
}

// Scenario 2: inbound delay lets an outbound announcement win the race.
func TestGetAnnouncementsToRequest_InboundDelayLosesRace(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestScheduler(cfg)
	s.AddPeer(1, false) // inbound
	s.AddPeer(2, true)  // outbound

	h := hashN(1)
	s.OnInv(1, h, epoch(0)) // inbound: request_time = 0 + 2s = 2_000_000us
	s.OnInv(2, h, epoch(0)) // outbound: request_time = 0

	gotB := s.GetAnnouncementsToRequest(2, epoch(500_000))
	require.Equal(t, []chainhash.Hash{h}, gotB)

	gotA := s.GetAnnouncementsToRequest(1, epoch(500_000))
	require.Empty(t, gotA)
}

// No-double-ask law: once one peer is asked, the other is requeued strictly later.
func TestGetAnnouncementsToRequest_NoDoubleAsk(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestScheduler(cfg)
	s.AddPeer(1, true)
	s.AddPeer(2, true)

	h := hashN(7)
	s.OnInv(1, h, epoch(0))
	s.OnInv(2, h, epoch(0))

	now := epoch(0)
	got1 := s.GetAnnouncementsToRequest(1, now)
	require.Equal(t, []chainhash.Hash{h}, got1)

	got2 := s.GetAnnouncementsToRequest(2, now)
	require.Empty(t, got2, "second peer must not be asked concurrently")

	stats := s.Stats(2)
	require.Equal(t, 1, stats.Announced, "second peer's announcement should be requeued, not dropped")
}

// Idempotence: add_announced(h, t) twice with the same (h, t) is a no-op.
func TestAddAnnounced_Idempotent(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestScheduler(cfg)
	s.AddPeer(1, true)

	h := hashN(9)
	s.OnInv(1, h, epoch(1000))
	s.OnInv(1, h, epoch(1000))

	stats := s.Stats(1)
	require.Equal(t, 1, stats.Announced)
}

// Receive-clears-global law.
func TestOnTx_ClearsAllPeerState(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestScheduler(cfg)
	s.AddPeer(1, true)
	s.AddPeer(2, true)

	h := hashN(3)
	s.OnInv(1, h, epoch(0))
	s.OnInv(2, h, epoch(0))
	s.GetAnnouncementsToRequest(1, epoch(0))

	s.OnTx(1, h)

	require.Zero(t, s.Stats(1).Requested)
	require.Zero(t, s.Stats(2).Announced)
	_, stillAsked := s.askedFor[h]
	require.False(t, stillAsked)
}

// Scenario 5: cap enforcement.
func TestAddAnnounced_CapEnforcement(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPeerTxAnnouncements = 20
	s := newTestScheduler(cfg)
	s.AddPeer(1, true)

	for i := 0; i < 30; i++ {
		s.OnInv(1, hashN(byte(i)), epoch(int64(i)))
	}

	stats := s.Stats(1)
	require.Equal(t, 20, stats.Announced)
	require.EqualValues(t, 10, stats.DroppedAnnouncements)

	for i := 0; i < 20; i++ {
		_, ok := s.peers[1].byHash[hashN(byte(i))]
		require.True(t, ok, "hash %d should have been kept", i)
	}
	for i := 20; i < 30; i++ {
		_, ok := s.peers[1].byHash[hashN(byte(i))]
		require.False(t, ok, "hash %d should have been dropped", i)
	}
}

// Scenario 6: peer disconnect cleanup.
func TestRemovePeer_ReleasesGlobalClaim(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestScheduler(cfg)
	s.AddPeer(1, true)
	s.AddPeer(2, true)

	hashes := make([]chainhash.Hash, 5)
	for i := range hashes {
		hashes[i] = hashN(byte(i + 1))
		s.OnInv(1, hashes[i], epoch(0))
	}
	got := s.GetAnnouncementsToRequest(1, epoch(0))
	require.Len(t, got, 5)
	require.Equal(t, 5, s.Stats(1).Requested)

	s.RemovePeer(1)

	for _, h := range hashes {
		_, ok := s.askedFor[h]
		require.False(t, ok)
	}

	// Peer 2 can now claim the same hash immediately.
	s.OnInv(2, hashes[0], epoch(0))
	got2 := s.GetAnnouncementsToRequest(2, epoch(0))
	require.Equal(t, []chainhash.Hash{hashes[0]}, got2)
}

func TestExpirePeer_RequestExpiryReleasesGlobalMap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GetDataTxInterval = 60 * time.Second
	s := newTestScheduler(cfg)
	s.AddPeer(1, true)
	s.AddPeer(2, true)

	h := hashN(1)
	s.OnInv(1, h, epoch(0))
	got := s.GetAnnouncementsToRequest(1, epoch(0))
	require.Equal(t, []chainhash.Hash{h}, got)
	require.Equal(t, 1, s.Stats(1).Requested)

	s.ExpirePeer(1, epoch(0).Add(61*time.Second))
	require.Equal(t, 0, s.Stats(1).Requested)

	s.OnInv(2, h, epoch(0).Add(61*time.Second))
	got2 := s.GetAnnouncementsToRequest(2, epoch(0).Add(61*time.Second))
	require.Equal(t, []chainhash.Hash{h}, got2, "expiry must release the global claim")
}

func TestExpirePeer_AnnouncementLifetime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TxAnnouncementLifetime = 20 * time.Minute
	s := newTestScheduler(cfg)
	s.AddPeer(1, true)

	h := hashN(1)
	start := epoch(0)
	s.OnInv(1, h, start)

	s.ExpirePeer(1, start.Add(21*time.Minute))

	require.Equal(t, 0, s.Stats(1).Announced)
}

func TestMempoolMembership_SkipsAlreadyKnown(t *testing.T) {
	cfg := DefaultConfig()
	mp := newFakeMempool()
	s := NewScheduler(cfg, mp, zeroJitter{})
	s.AddPeer(1, true)

	h := hashN(1)
	mp.have[h] = true
	s.OnInv(1, h, epoch(0))

	got := s.GetAnnouncementsToRequest(1, epoch(0))
	require.Empty(t, got)
	require.Equal(t, 0, s.Stats(1).Announced)
}

func TestMarkRejected_SkipsFutureAnnouncements(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestScheduler(cfg)
	s.AddPeer(1, true)

	h := hashN(4)
	s.MarkRejected(h)
	s.OnInv(1, h, epoch(0))

	got := s.GetAnnouncementsToRequest(1, epoch(0))
	require.Empty(t, got)
}
