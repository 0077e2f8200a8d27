// Package rpcpeer implements the FTL RPC peer: handshake negotiation, a
// reflective call dispatcher, asynchronous call/response correlation, and a
// busy-flag-scheduled receive accumulator. Grounded on
// _examples/original_source/src/peer.hpp and peer.cpp, with the transport
// itself abstracted behind internal/transport so a Peer never knows whether
// it is talking over tcptransport or wstransport.
package rpcpeer

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alxayo/ftl-go/internal/errors"
	"github.com/alxayo/ftl-go/internal/handle"
	"github.com/alxayo/ftl-go/internal/logger"
	"github.com/alxayo/ftl-go/internal/protocol/id"
	"github.com/alxayo/ftl-go/internal/transport"
)

// Status mirrors ftl::protocol::NodeStatus.
type Status int

const (
	StatusInvalid Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "invalid"
	}
}

const (
	// kMaxMessage / kDefaultMessage from peer.hpp.
	maxMessageSize     = 4 * 1024 * 1024
	defaultMessageSize = 512 * 1024

	callTimeout = 1 * time.Second
)

// ConnectEvent/DisconnectEvent/ErrorEvent are the payloads fired on a
// Peer's lifecycle handlers.
type ConnectEvent struct{ Peer *Peer }
type DisconnectEvent struct {
	Peer  *Peer
	Retry bool
}
type ErrorEvent struct {
	Peer *Peer
	Kind errors.ErrorKind
	Err  error
}

// Peer is one end of an RPC connection: either accepted (outgoing=false) or
// dialed (outgoing=true). Its Dispatcher may chain to a shared parent (the
// universe's dispatcher) so bindings registered there are visible to every
// peer without rebinding.
type Peer struct {
	outgoing bool
	localID  uint32
	selfID   id.PeerID
	uri      id.URI

	dialer transport.Dialer
	conn   transport.Conn

	log *slog.Logger

	mu       sync.RWMutex
	status   Status
	version  uint32
	peerID   id.PeerID
	canRetry bool

	reconnectOnRemoteDisconnect bool
	reconnectOnSocketError      bool
	reconnectOnProtocolError    bool

	dispatcher *Dispatcher

	recvMu  sync.Mutex
	recvBuf bytes.Buffer
	busy    atomic.Bool
	dirty   atomic.Bool
	jobs    sync.WaitGroup

	sendMu sync.Mutex

	cbMu      sync.Mutex
	callbacks map[uint32]func(result any, callErr error)

	connectionCount atomic.Int32
	retryCount      atomic.Int32

	onConnect    *handle.Handler[ConnectEvent]
	onDisconnect *handle.Handler[DisconnectEvent]
	onError      *handle.Handler[ErrorEvent]

	handshakeSent atomic.Bool
	closeOnce     sync.Once
}

var nextRPCID uint32

// NewIncoming wraps an already-accepted connection as a listening-side
// peer. parent becomes the universe-wide fallback dispatcher.
func NewIncoming(conn transport.Conn, uri id.URI, parent *Dispatcher) *Peer {
	p := newPeer(false, conn, uri, parent)
	p.status = StatusConnecting
	p.canRetry = false
	return p
}

// NewOutgoing constructs a peer that will dial uri via dialer. The caller
// must still call Start to perform the connect and handshake.
func NewOutgoing(dialer transport.Dialer, uri id.URI, parent *Dispatcher) *Peer {
	p := newPeer(true, nil, uri, parent)
	p.dialer = dialer
	p.status = StatusInvalid
	p.canRetry = true
	return p
}

func newPeer(outgoing bool, conn transport.Conn, uri id.URI, parent *Dispatcher) *Peer {
	p := &Peer{
		outgoing:                    outgoing,
		selfID:                      id.NewPeerID(),
		uri:                         uri,
		conn:                        conn,
		log:                         logger.Logger(),
		dispatcher:                  NewDispatcher(parent),
		callbacks:                   make(map[uint32]func(result any, callErr error)),
		reconnectOnRemoteDisconnect: true,
		reconnectOnSocketError:      true,
		reconnectOnProtocolError:    false,
		onConnect:                   handle.NewHandler[ConnectEvent](),
		onDisconnect:                handle.NewHandler[DisconnectEvent](),
		onError:                     handle.NewHandler[ErrorEvent](),
	}
	p.bindBuiltins()
	return p
}

// SetLocalID assigns the dense-array slot id, set by universe on insertion.
func (p *Peer) SetLocalID(id uint32) { p.localID = id }

// LocalID returns the universe-assigned slot id.
func (p *Peer) LocalID() uint32 { return p.localID }

// SelfID returns this side's own peer identity, sent in every handshake.
// Stable for the lifetime of the Peer, including across reconnects.
func (p *Peer) SelfID() id.PeerID { return p.selfID }

// URI returns the peer's connection/assumed URI.
func (p *Peer) URI() id.URI { return p.uri }

// ID returns the peer's UUID, valid only once Status is StatusConnected.
func (p *Peer) ID() id.PeerID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.peerID
}

// Status returns the current connection status.
func (p *Peer) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *Peer) setStatus(s Status) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// IsConnected reports whether the handshake completed.
func (p *Peer) IsConnected() bool { return p.Status() == StatusConnected }

// IsOutgoing reports whether this peer originated the connection.
func (p *Peer) IsOutgoing() bool { return p.outgoing }

// Dispatcher exposes the peer's own dispatcher for direct Bind calls.
func (p *Peer) Dispatcher() *Dispatcher { return p.dispatcher }

// OnConnect/OnDisconnect/OnError register lifecycle callbacks.
func (p *Peer) OnConnect(cb func(ConnectEvent) bool) handle.Handle    { return p.onConnect.On(cb) }
func (p *Peer) OnDisconnect(cb func(DisconnectEvent) bool) handle.Handle {
	return p.onDisconnect.On(cb)
}
func (p *Peer) OnError(cb func(ErrorEvent) bool) handle.Handle { return p.onError.On(cb) }

// NoReconnect disables future reconnect attempts for this peer.
func (p *Peer) NoReconnect() {
	p.mu.Lock()
	p.canRetry = false
	p.mu.Unlock()
}

// ConnectionCount returns how many times this peer has fully connected.
func (p *Peer) ConnectionCount() int32 { return p.connectionCount.Load() }

// Start performs the connect (outgoing peers) and begins the read loop. The
// listening side sends the initial handshake synchronously before
// returning so the caller's first read cannot race it.
func (p *Peer) Start(ctx context.Context) error {
	if p.outgoing {
		conn, err := p.dialer.Dial(ctx, p.uri.Host+portSuffix(p.uri.Port))
		if err != nil {
			p.setStatus(StatusInvalid)
			p.fireError(errors.KindConnectionFailed, "peer.start", err)
			return err
		}
		p.conn = conn
		p.setStatus(StatusConnecting)
	}
	if err := p.sendHandshake(); err != nil {
		return err
	}
	p.startReadLoop()
	return nil
}

func portSuffix(port int) string {
	if port == 0 {
		return ""
	}
	return ":" + strconv.Itoa(port)
}

// startReadLoop reads raw bytes off the connection and feeds them to the
// accumulator. It exits (and triggers a close) on any read error.
func (p *Peer) startReadLoop() {
	go func() {
		buf := make([]byte, 64*1024)
		for {
			n, err := p.conn.Read(buf)
			if n > 0 {
				p.feed(buf[:n])
			}
			if err != nil {
				p.onReadError(err)
				return
			}
		}
	}()
}

func (p *Peer) onReadError(err error) {
	if p.Status() == StatusDisconnected {
		return
	}
	retry := p.reconnectOnSocketError
	p.closeInternal(retry, errors.KindSocketError, err)
}

// Close terminates the connection. retry=true moves the peer to
// kReconnecting instead of kDisconnected, handing recovery to the
// universe's periodic loop.
func (p *Peer) Close(retry bool) {
	p.mu.RLock()
	canRetry := p.canRetry
	p.mu.RUnlock()
	p.closeInternal(retry && canRetry, errors.KindUnknown, nil)
}

func (p *Peer) closeInternal(retry bool, kind errors.ErrorKind, cause error) {
	p.closeOnce.Do(func() {
		if p.conn != nil {
			_ = p.conn.Close()
		}
		if cause != nil {
			p.fireError(kind, "peer.close", cause)
		}
		next := StatusDisconnected
		if retry && p.outgoing {
			next = StatusReconnecting
		}
		p.setStatus(next)
		p.failOutstandingCalls()
		p.onDisconnect.Trigger(DisconnectEvent{Peer: p, Retry: next == StatusReconnecting})
	})
}

func (p *Peer) failOutstandingCalls() {
	p.cbMu.Lock()
	cbs := p.callbacks
	p.callbacks = make(map[uint32]func(result any, callErr error))
	p.cbMu.Unlock()
	for _, cb := range cbs {
		cb(nil, errors.NewRuntimeError(errors.KindConnectionFailed, "peer.closed", nil))
	}
}

// Reconnect attempts to re-dial an outgoing peer that is in
// kReconnecting/kInvalid status. Called by the universe's periodic
// loop, never by application code directly.
func (p *Peer) Reconnect(ctx context.Context) bool {
	if !p.outgoing {
		return false
	}
	p.mu.RLock()
	ok := (p.status == StatusReconnecting || p.status == StatusInvalid) && p.canRetry
	p.mu.RUnlock()
	if !ok {
		return false
	}

	p.jobs.Wait()
	p.recvMu.Lock()
	p.recvBuf.Reset()
	p.recvMu.Unlock()

	conn, err := p.dialer.Dial(ctx, p.uri.Host+portSuffix(p.uri.Port))
	if err != nil {
		p.retryCount.Add(1)
		p.fireError(errors.KindReconnectionFailed, "peer.reconnect", err)
		return false
	}
	p.conn = conn
	p.closeOnce = sync.Once{}
	p.handshakeSent.Store(false)
	p.setStatus(StatusConnecting)
	if err := p.sendHandshake(); err != nil {
		return false
	}
	p.startReadLoop()
	return true
}

func (p *Peer) fireError(kind errors.ErrorKind, op string, cause error) {
	p.onError.Trigger(ErrorEvent{Peer: p, Kind: kind, Err: cause})
	p.log.Warn("peer error", "op", op, "kind", kind.String(), "err", cause)
}
