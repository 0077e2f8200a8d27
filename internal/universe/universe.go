// Package universe owns the peer registry, the listener set, and the
// shared dispatcher every peer falls back to when a name is unbound
// locally. Grounded on _examples/original_source/include/ftl/protocol/universe.hpp
// and src/universe.cpp for the dense peer array / periodic loop shape, and
// on the teacher's internal/rtmp/server.Server for the Go accept-loop and
// graceful-shutdown idiom (net.Listener ownership, a tracked connection
// map, a closing flag guarding shutdown races).
package universe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alxayo/ftl-go/internal/errors"
	"github.com/alxayo/ftl-go/internal/logger"
	"github.com/alxayo/ftl-go/internal/protocol/id"
	"github.com/alxayo/ftl-go/internal/rpcpeer"
	"github.com/alxayo/ftl-go/internal/transport"
	"github.com/alxayo/ftl-go/internal/transport/tcptransport"
	"github.com/alxayo/ftl-go/internal/transport/wstransport"
)

// Config configures a Universe.
type Config struct {
	// MaxPeers is the size of the dense peer array (default 10).
	MaxPeers int
	// PeriodicInterval is how often the reconnect/garbage-collect loop
	// runs (default 1s).
	PeriodicInterval time.Duration
	// ReconnectBudget caps how many consecutive reconnect attempts a
	// peer gets before the periodic loop gives up on it (default 0 =
	// unlimited, matching the original's unbounded retry loop).
	ReconnectBudget int
}

func (c *Config) applyDefaults() {
	if c.MaxPeers <= 0 {
		c.MaxPeers = 10
	}
	if c.PeriodicInterval <= 0 {
		c.PeriodicInterval = 1 * time.Second
	}
}

// Universe is the top-level FTL runtime object: it owns every Peer, every
// Listener, and the dispatcher shared by all of them.
type Universe struct {
	cfg Config
	log *slog.Logger

	dispatcher *rpcpeer.Dispatcher

	mu        sync.RWMutex
	peers     []*slot
	byURI     map[string]*rpcpeer.Peer
	byPeerID  map[id.PeerID]*rpcpeer.Peer
	listeners map[string]transport.Listener
	localPort map[int]struct{} // ports this universe itself listens on

	retries map[uint32]int // localID -> consecutive reconnect attempts

	wsDialer  transport.Dialer
	tcpDialer transport.Dialer

	newPeerHooks []func(*rpcpeer.Peer)

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// OnNewPeer registers fn to run against every peer inserted into this
// Universe from this point on, whether accepted or dialed. Used by callers
// (cmd/ftl-node's hook wiring, in particular) that need to attach
// connect/disconnect/error callbacks uniformly without reaching into
// acceptLoop/Connect themselves.
func (u *Universe) OnNewPeer(fn func(*rpcpeer.Peer)) {
	u.mu.Lock()
	u.newPeerHooks = append(u.newPeerHooks, fn)
	u.mu.Unlock()
}

func (u *Universe) fireNewPeerHooks(p *rpcpeer.Peer) {
	u.mu.RLock()
	hooks := make([]func(*rpcpeer.Peer), len(u.newPeerHooks))
	copy(hooks, u.newPeerHooks)
	u.mu.RUnlock()
	for _, fn := range hooks {
		fn(p)
	}
}

// slot is one entry in the dense peer array; nil Peer marks an empty slot.
type slot struct {
	peer *rpcpeer.Peer
}

// New constructs a Universe with its own shared dispatcher. Call Start to
// begin the periodic reconnect/GC loop.
func New(cfg Config) *Universe {
	cfg.applyDefaults()
	u := &Universe{
		cfg:        cfg,
		log:        logger.Logger().With("component", "universe"),
		dispatcher: rpcpeer.NewDispatcher(nil),
		peers:      make([]*slot, cfg.MaxPeers),
		byURI:      make(map[string]*rpcpeer.Peer),
		byPeerID:   make(map[id.PeerID]*rpcpeer.Peer),
		listeners:  make(map[string]transport.Listener),
		localPort:  make(map[int]struct{}),
		retries:    make(map[uint32]int),
		wsDialer:   wstransport.NewDialer(false),
		tcpDialer:  tcptransport.NewDialer(),
	}
	for i := range u.peers {
		u.peers[i] = &slot{}
	}
	return u
}

// Dispatcher returns the shared dispatcher bindings made here are visible
// to every current and future peer.
func (u *Universe) Dispatcher() *rpcpeer.Dispatcher { return u.dispatcher }

// Start launches the periodic reconnect/garbage-collection loop.
func (u *Universe) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	u.cancel = cancel
	u.wg.Add(1)
	go u.periodicLoop(ctx)
}

// Close stops the periodic loop, closes every listener, and disconnects
// every peer without retry.
func (u *Universe) Close() {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.closed = true
	listeners := make([]transport.Listener, 0, len(u.listeners))
	for _, l := range u.listeners {
		listeners = append(listeners, l)
	}
	peers := u.allPeersLocked()
	u.mu.Unlock()

	if u.cancel != nil {
		u.cancel()
	}
	for _, l := range listeners {
		_ = l.Close()
	}
	for _, p := range peers {
		p.NoReconnect()
		p.Close(false)
	}
	u.wg.Wait()
}

func (u *Universe) allPeersLocked() []*rpcpeer.Peer {
	out := make([]*rpcpeer.Peer, 0, len(u.peers))
	for _, s := range u.peers {
		if s.peer != nil {
			out = append(out, s.peer)
		}
	}
	return out
}

// insertPeer finds the first empty or reclaimable (kDisconnected) slot,
// assigns it as the peer's local_id, and indexes the peer by URI. The
// UUID index is populated lazily, once the handshake completes, by
// indexByPeerID.
func (u *Universe) insertPeer(p *rpcpeer.Peer) error {
	u.mu.Lock()
	for i, s := range u.peers {
		if s.peer == nil || s.peer.Status() == rpcpeer.StatusDisconnected {
			s.peer = p
			p.SetLocalID(uint32(i))
			u.byURI[p.URI().Base()] = p
			delete(u.retries, uint32(i))
			u.watchForHandshake(p)
			u.mu.Unlock()
			u.fireNewPeerHooks(p)
			return nil
		}
	}
	u.mu.Unlock()
	return errors.NewRuntimeError(errors.KindListen, "universe.insert", nil)
}

// watchForHandshake indexes a peer by UUID the first time it connects.
func (u *Universe) watchForHandshake(p *rpcpeer.Peer) {
	p.OnConnect(func(rpcpeer.ConnectEvent) bool {
		u.mu.Lock()
		u.byPeerID[p.ID()] = p
		u.mu.Unlock()
		return true
	})
}

// Peers returns a snapshot slice of every currently-occupied slot.
func (u *Universe) Peers() []*rpcpeer.Peer {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.allPeersLocked()
}

// ConnectedPeers returns every peer currently in kConnected status.
func (u *Universe) ConnectedPeers() []*rpcpeer.Peer {
	all := u.Peers()
	out := make([]*rpcpeer.Peer, 0, len(all))
	for _, p := range all {
		if p.IsConnected() {
			out = append(out, p)
		}
	}
	return out
}

// FindByPeerID resolves a connected peer by its handshake-assigned UUID.
func (u *Universe) FindByPeerID(pid id.PeerID) (*rpcpeer.Peer, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	p, ok := u.byPeerID[pid]
	return p, ok
}

func (u *Universe) dialerFor(scheme string) transport.Dialer {
	if scheme == "ws" || scheme == "wss" {
		return u.wsDialer
	}
	return u.tcpDialer
}
