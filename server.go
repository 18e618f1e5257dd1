package main

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/acbcsuite/acbc/chaincfg/chainhash"
	"github.com/acbcsuite/acbc/config"
	"github.com/acbcsuite/acbc/log"
	"github.com/acbcsuite/acbc/mempool"
	"github.com/acbcsuite/acbc/mining"
	"github.com/acbcsuite/acbc/netsync"
	"github.com/acbcsuite/acbc/peer"
	"github.com/acbcsuite/acbc/rebroadcast"
)

// chainstate is the minimal Chainstate the rebroadcast handler needs. This
// repository carries no consensus engine of its own (see spec Non-goals),
// so it is a small in-memory stand-in a real node would replace with its
// actual chain manager.
type chainstate struct {
	mtx     sync.RWMutex
	tip     chainhash.Hash
	syncing bool
}

func (c *chainstate) ActiveTip() rebroadcast.TipID {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.tip
}

func (c *chainstate) IsInitialBlockDownload() bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.syncing
}

func (c *chainstate) setTip(tip chainhash.Hash) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.tip = tip
}

// server ties together the pieces of the transaction propagation control
// plane: a scheduler deciding which peer to fetch each announced
// transaction from and when, and a rebroadcast handler periodically
// re-announcing local mempool transactions worth another look.
type server struct {
	started     int32
	shutdown    int32
	startupTime int64
	nextPeerID  int32

	mempool     *mempool.TxPool
	assembler   *mining.Assembler
	chainstate  *chainstate
	scheduler   *netsync.Scheduler
	rebroadcast *rebroadcast.Handler

	listenAddrs           []string
	getDataTickInterval   time.Duration
	feeCacheTickInterval  time.Duration
	rebroadcastTickPeriod time.Duration

	newPeers  chan *peer.Peer
	donePeers chan *peer.Peer

	wg   sync.WaitGroup
	quit chan struct{}
}

// newServer wires the mempool, block assembler, download scheduler and
// rebroadcast handler together using the tunables in cfg.
func newServer(cfg *config.Config) (*server, error) {
	height := int32(0)
	mp := mempool.New(mempool.Config{
		BestHeight: func() int32 { return height },
	})
	assembler := mining.NewAssembler(mp)
	chain := &chainstate{}

	scfg := netsync.DefaultConfig()
	var listenAddrs []string
	if cfg != nil {
		scfg.MaxPeerTxAnnouncements = cfg.MaxPeerTxAnnouncements
		scfg.MaxPeerTxInFlight = cfg.MaxPeerTxInFlight
		scfg.InboundPeerTxDelay = cfg.InboundPeerTxDelay
		scfg.GetDataTxInterval = cfg.GetDataTxInterval
		scfg.TxAnnouncementLifetime = cfg.TxAnnouncementLifetime
		listenAddrs = cfg.Listeners
	}
	scheduler := netsync.NewScheduler(scfg, mp, nil)
	scheduler.SetMisbehaviorFunc(func(peerID int32, score uint32, reason string) {
		log.SyncLog.Warnf("peer %d misbehavior score +%d: %s", peerID, score, reason)
	})

	rcfg := rebroadcast.DefaultConfig()
	if cfg != nil {
		rcfg.RebroadcastMinTxAge = cfg.RebroadcastMinTxAge
		rcfg.MinReattemptInterval = cfg.MinReattemptInterval
		rcfg.MaxRebroadcastCount = cfg.MaxRebroadcastCount
		rcfg.TxRebroadcastInterval = cfg.TxRebroadcastInterval
	}
	handler := rebroadcast.NewHandler(rcfg, assembler, chain, rebroadcast.SystemClock)
	mp.SetTxRemovedNotifier(func(wtxid chainhash.Hash) {
		handler.RemoveFromAttemptTracker(wtxid)
	})

	s := &server{
		mempool:               mp,
		assembler:             assembler,
		chainstate:            chain,
		scheduler:             scheduler,
		rebroadcast:           handler,
		listenAddrs:           listenAddrs,
		getDataTickInterval:   scfg.GetDataTxInterval,
		feeCacheTickInterval:  rcfg.FeeRateCacheInterval,
		rebroadcastTickPeriod: rcfg.TxRebroadcastInterval,
		newPeers:              make(chan *peer.Peer),
		donePeers:             make(chan *peer.Peer),
		quit:                  make(chan struct{}),
	}
	return s, nil
}

// AddPeer registers p with the download scheduler so its announcements are
// tracked.
func (s *server) AddPeer(p *peer.Peer) {
	s.scheduler.RegisterPeer(p)
}

// RemovePeer releases every scheduler claim p held.
func (s *server) RemovePeer(p *peer.Peer) {
	s.scheduler.RemovePeer(p.ID())
}

// OnInv is the peer-message-handler entry point for an incoming INV
// announcing a transaction.
func (s *server) OnInv(p *peer.Peer, hash chainhash.Hash) {
	s.scheduler.OnInv(p.ID(), hash, time.Now())
}

// OnTx is the peer-message-handler entry point for a received transaction.
func (s *server) OnTx(p *peer.Peer, hash chainhash.Hash) {
	s.scheduler.OnTx(p.ID(), hash)
}

// peerLoop consumes peer connect/disconnect notifications for as long as the
// server is running.
func (s *server) peerLoop() {
	defer s.wg.Done()
	for {
		select {
		case p := <-s.newPeers:
			s.AddPeer(p)
		case p := <-s.donePeers:
			s.RemovePeer(p)
		case <-s.quit:
			return
		}
	}
}

// Listen accepts inbound connections on laddr for as long as the server
// runs, registering each accepted connection as an inbound peer. This
// repository implements no wire handshake or message dispatch (see the
// wire package's reduced message set), so a connection contributes nothing
// beyond its lifetime: it is tracked from accept to close, driving
// AddPeer/RemovePeer exactly as a real message-handling connection would on
// connect and disconnect.
func (s *server) Listen(laddr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", laddr)
	if err != nil {
		return nil, err
	}
	s.wg.Add(1)
	go s.acceptLoop(ln)
	return ln.Addr(), nil
}

func (s *server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	defer ln.Close()
	go func() {
		<-s.quit
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
			default:
				log.SrvrLog.Errorf("listener on %v failed: %v", ln.Addr(), err)
			}
			return
		}
		id := atomic.AddInt32(&s.nextPeerID, 1)
		p := peer.NewPeer(id, conn.RemoteAddr().String(), true)
		select {
		case s.newPeers <- p:
		case <-s.quit:
			conn.Close()
			return
		}
		s.wg.Add(1)
		go s.trackConn(conn, p)
	}
}

// Dial connects out to addr and registers the resulting connection as an
// outbound peer, sharing the connection tracking Listen's accepted
// connections use.
func (s *server) Dial(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	id := atomic.AddInt32(&s.nextPeerID, 1)
	p := peer.NewPeer(id, addr, false)
	select {
	case s.newPeers <- p:
	case <-s.quit:
		conn.Close()
		return nil
	}
	s.wg.Add(1)
	go s.trackConn(conn, p)
	return nil
}

// trackConn blocks until conn is closed, then reports p as disconnected.
func (s *server) trackConn(conn net.Conn, p *peer.Peer) {
	defer s.wg.Done()
	go func() {
		<-s.quit
		conn.Close()
	}()
	io.Copy(io.Discard, conn)
	select {
	case s.donePeers <- p:
	case <-s.quit:
	}
}

// rebroadcastHandler drives the periodic rebroadcast pass and fee-rate cache
// refresh on their own tickers, independent of block-connected events;
// BlockConnected below refreshes the fee-rate cache immediately when a block
// actually connects, and leaves the rebroadcast pass to this ticker.
func (s *server) rebroadcastHandler() {
	defer s.wg.Done()

	feeTicker := time.NewTicker(s.feeCacheTickInterval)
	defer feeTicker.Stop()
	rebroadcastTicker := time.NewTicker(s.rebroadcastTickPeriod)
	defer rebroadcastTicker.Stop()

	for {
		select {
		case <-feeTicker.C:
			s.rebroadcast.CacheMinRebroadcastFee()

		case <-rebroadcastTicker.C:
			for _, pair := range s.rebroadcast.GetRebroadcastTransactions() {
				log.TxmpLog.Debugf("rebroadcasting %v (wtxid %v)", pair.Txid, pair.Wtxid)
			}

		case <-s.quit:
			return
		}
	}
}

// BlockConnected notifies the server that tip is now the active chain tip
// with the given weight, refreshing the rebroadcast fee-rate cache
// immediately rather than waiting for the next tick and narrowing the
// rebroadcast weight budget to 3/4 of the connected block's weight when
// that is tighter than the static default.
func (s *server) BlockConnected(tip chainhash.Hash, weight int64) {
	s.chainstate.setTip(tip)
	s.rebroadcast.SetLastBlockWeight(weight)
	s.rebroadcast.CacheMinRebroadcastFee()
}

// schedulerTicker drives Scheduler.Tick once per GetDataTxInterval so the
// GETDATA batches of peers with due announcements are computed even absent
// fresh traffic from them. The batches are logged; no GETDATA message is
// sent, since this repository has no wire message encoding.
func (s *server) schedulerTicker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.getDataTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			batches := s.scheduler.Tick(time.Now(), s.quit)
			for peerID, hashes := range batches {
				log.SyncLog.Debugf("peer %d: requesting %d transactions", peerID, len(hashes))
			}
		case <-s.quit:
			return
		}
	}
}

// Start begins the server's background goroutines and, for every address in
// listenAddrs, an inbound connection listener.
func (s *server) Start() {
	s.startupTime = time.Now().Unix()
	s.wg.Add(3)
	go s.peerLoop()
	go s.rebroadcastHandler()
	go s.schedulerTicker()

	for _, addr := range s.listenAddrs {
		if _, err := s.Listen(addr); err != nil {
			log.SrvrLog.Errorf("unable to listen on %v: %v", addr, err)
		}
	}
}

// Stop signals every background goroutine to exit.
func (s *server) Stop() error {
	close(s.quit)
	return nil
}

// WaitForShutdown blocks until every background goroutine returns.
func (s *server) WaitForShutdown() {
	s.wg.Wait()
}
