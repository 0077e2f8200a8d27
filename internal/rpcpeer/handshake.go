package rpcpeer

import (
	"fmt"
	"time"

	"github.com/alxayo/ftl-go/internal/errors"
	"github.com/alxayo/ftl-go/internal/protocol/id"
)

// Magic and version constants, per spec.md §6.
const (
	handshakeMagic uint64 = 0x0009340053640912

	versionMajor uint8 = 0
	versionMinor uint8 = 5
	versionPatch uint8 = 0
)

func currentVersion() uint32 {
	return uint32(versionMajor)<<16 | uint32(versionMinor)<<8 | uint32(versionPatch)
}

// bindBuiltins installs the three always-present RPC names every peer
// carries, per spec.md §4.6.
func (p *Peer) bindBuiltins() {
	p.dispatcher.Bind("__handshake__", func(magic int64, version int64, uuidStr string) {
		p.onHandshake(uint64(magic), uint32(version), uuidStr)
	})
	p.dispatcher.Bind("__disconnect__", func() {
		p.log.Debug("peer elected to disconnect", "peer", p.ID().String())
		p.Close(p.reconnectOnRemoteDisconnect)
	})
	p.dispatcher.Bind("__ping__", func() int64 {
		return time.Now().UnixMilli()
	})
}

// sendHandshake sends this peer's own __handshake__ notification. Sent
// unconditionally once by the listening side on accept and once by the
// connecting side on Start — a symmetric simplification of the original's
// asymmetric "listener sends first, connector replies" exchange (spec.md
// describes sending "immediately on listen-side accept (or on first
// outbound start())" for both roles; this keeps both sides' logic
// identical rather than special-casing which side speaks first).
func (p *Peer) sendHandshake() error {
	if !p.handshakeSent.CompareAndSwap(false, true) {
		return nil
	}
	err := p.Notify("__handshake__", int64(handshakeMagic), int64(currentVersion()), p.selfID.String())
	if err != nil {
		p.fireError(errors.KindSocketError, "peer.handshake.send", err)
	}
	return err
}

// onHandshake validates and processes an incoming __handshake__. A magic
// mismatch is terminal (kBadHandshake, no retry); a version mismatch is
// logged but non-fatal (the protocol remains forward/backward tolerant at
// the RPC framing level). The peer only transitions to kConnected, and
// only fires onConnect, the first time a valid handshake is seen.
func (p *Peer) onHandshake(magic uint64, version uint32, remoteUUID string) {
	if magic != handshakeMagic {
		p.fireError(errors.KindBadHandshake, "peer.handshake.recv", fmt.Errorf("bad magic 0x%x", magic))
		p.closeInternal(false, errors.KindBadHandshake, fmt.Errorf("invalid handshake magic"))
		return
	}
	if version != currentVersion() {
		p.log.Warn("peer using different protocol version", "remote_version", version, "local_version", currentVersion())
	}

	pid, err := id.ParsePeerID(remoteUUID)
	if err != nil {
		p.fireError(errors.KindBadHandshake, "peer.handshake.recv", err)
		p.closeInternal(false, errors.KindBadHandshake, err)
		return
	}

	wasConnected := p.IsConnected()

	p.mu.Lock()
	p.version = version
	p.peerID = pid
	p.status = StatusConnected
	p.mu.Unlock()

	if !wasConnected {
		p.connectionCount.Add(1)
		p.onConnect.Trigger(ConnectEvent{Peer: p})
	}
}
