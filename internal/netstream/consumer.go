package netstream

import (
	"context"
	"time"

	"github.com/alxayo/ftl-go/internal/errors"
	"github.com/alxayo/ftl-go/internal/protocol/id"
	"github.com/alxayo/ftl-go/internal/protocol/packet"
	"github.com/alxayo/ftl-go/internal/rpcpeer"
)

const findStreamTimeout = 2 * time.Second

// Enable resolves the hosting peer (if not already cached) and sends an
// all-channels subscription request for fid. Matches the original's
// Net::enable(FrameID).
func (n *Net) Enable(fid id.FrameID) bool {
	ok := n.Base.Enable(fid)
	if !n.host {
		n.sendRequest(fid, nil, false)
	}
	return ok
}

// EnableChannel enables fid and requests only the given channel.
func (n *Net) EnableChannel(fid id.FrameID, c id.Channel) bool {
	ok := n.Base.EnableChannel(fid, c)
	if !n.host {
		n.sendRequest(fid, id.NewChannelSet(c), false)
	}
	return ok
}

// EnableSet enables fid and requests every channel in set.
func (n *Net) EnableSet(fid id.FrameID, set id.ChannelSet) bool {
	ok := n.Base.EnableSet(fid, set)
	if !n.host {
		n.sendRequest(fid, set, false)
	}
	return ok
}

// resolveHostPeer returns the peer currently hosting this stream, calling
// find_stream on every connected peer and caching the first one that
// answers true. Mirrors the original's lazy peer_ resolution in enable().
func (n *Net) resolveHostPeer(ctx context.Context) *rpcpeer.Peer {
	n.hostMu.RLock()
	cached := n.hostPeer
	n.hostMu.RUnlock()
	if cached != nil && cached.IsConnected() {
		return cached
	}

	cctx, cancel := context.WithTimeout(ctx, findStreamTimeout)
	defer cancel()

	type result struct {
		peer *rpcpeer.Peer
		ok   bool
	}
	peers := n.u.ConnectedPeers()
	ch := make(chan result, len(peers))
	for _, p := range peers {
		go func(p *rpcpeer.Peer) {
			v, err := p.Call(cctx, "find_stream", n.base)
			ch <- result{peer: p, ok: err == nil && asBool(v)}
		}(p)
	}
	for range peers {
		select {
		case r := <-ch:
			if r.ok {
				n.hostMu.Lock()
				n.hostPeer = r.peer
				n.hostMu.Unlock()
				return r.peer
			}
		case <-cctx.Done():
			return nil
		}
	}
	return nil
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// sendRequest emits one kFlagRequest notification per requested channel
// (or a single channel-wildcard request if channels is empty), resets this
// frame's tally to framesToRequest, and optionally sets kFlagReset to force
// a key-frame refresh. Mirrors Net::_sendRequest.
func (n *Net) sendRequest(fid id.FrameID, channels id.ChannelSet, reset bool) {
	if n.host || !n.active.Load() {
		return
	}
	peer := n.resolveHostPeer(ctxBackground())
	if peer == nil {
		n.Base.FireError(errors.KindURIDoesNotExist, "no peer is hosting "+n.base)
		return
	}

	n.tallyMu.Lock()
	n.tally[fid] = n.framesToRequest
	n.tallyMu.Unlock()

	flags := packet.FlagRequest
	if reset {
		flags |= packet.FlagReset
	}
	data := packet.DataPacket{FrameCount: uint8(n.framesToRequest), Bitrate: uint8(n.bitrate.Load())}

	if channels == nil || channels.Len() == 0 {
		spkt := packet.StreamPacket{Version: packet.CurrentVersion, StreamID: fid.Frameset(), FrameNumber: fid.Source(), Channel: id.Channel(id.Wildcard), Flags: flags}
		_ = peer.Notify(n.base, encodePacket(spkt, data))
		return
	}
	for c := range channels {
		spkt := packet.StreamPacket{Version: packet.CurrentVersion, StreamID: fid.Frameset(), FrameNumber: fid.Source(), Channel: c, Flags: flags}
		_ = peer.Notify(n.base, encodePacket(spkt, data))
	}
}

// postUpstream is Post's consumer-role path: forward a locally generated
// packet to the resolved host instead of fanning it out to subscribers.
func (n *Net) postUpstream(spkt packet.StreamPacket, pkt packet.DataPacket) bool {
	peer := n.resolveHostPeer(ctxBackground())
	if peer == nil {
		return false
	}
	n.bytesSent.Add(int64(len(pkt.Data)))
	recordTX(int64(len(pkt.Data)))
	return peer.Notify(n.base, encodePacket(spkt, pkt)) == nil
}

// noteEndFrame decrements fid's tally and re-requests once it runs out,
// keeping the consumer continuously subscribed without the host having to
// track an expiry itself.
func (n *Net) noteEndFrame(fid id.FrameID) {
	if n.host {
		return
	}
	n.tallyMu.Lock()
	n.tally[fid]--
	remaining := n.tally[fid]
	n.tallyMu.Unlock()

	if remaining <= 0 && n.Base.IsEnabled(fid) {
		n.sendRequest(fid, n.Base.EnabledChannels(fid), false)
	}
}
