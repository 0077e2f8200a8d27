package netstream

import (
	"sync"

	"github.com/alxayo/ftl-go/internal/protocol/id"
	"github.com/alxayo/ftl-go/internal/protocol/packet"
	"github.com/alxayo/ftl-go/internal/protocol/stream"
	"github.com/alxayo/ftl-go/internal/rpcpeer"
	"github.com/alxayo/ftl-go/internal/universe"
)

var (
	registryMu sync.Mutex
	registry   = map[*universe.Universe]map[string]*Net{}
	installed  = map[*universe.Universe]bool{}
)

// registerHost records n as the local host for base within u and installs
// the universe-wide find_stream/list_streams RPCs the first time any stream
// is hosted on u.
func registerHost(u *universe.Universe, base string, n *Net) {
	registryMu.Lock()
	defer registryMu.Unlock()
	m, ok := registry[u]
	if !ok {
		m = make(map[string]*Net)
		registry[u] = m
	}
	m[base] = n
	if !installed[u] {
		installRPC(u)
		installed[u] = true
	}
}

func unregisterHost(u *universe.Universe, base string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if m, ok := registry[u]; ok {
		delete(m, base)
	}
}

func lookupHost(u *universe.Universe, base string) (*Net, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	m, ok := registry[u]
	if !ok {
		return nil, false
	}
	n, ok := m[base]
	return n, ok
}

// installRPC binds the RPCs a consumer uses to resolve a stream's host:
// find_stream(uri) reports whether this process hosts uri, and
// list_streams() enumerates every URI currently hosted, mirroring the
// original's static Net::installRPC(Universe*).
func installRPC(u *universe.Universe) {
	u.Dispatcher().Bind("find_stream", func(p *rpcpeer.Peer, uri string) bool {
		_, ok := lookupHost(u, uri)
		return ok
	})
	u.Dispatcher().Bind("list_streams", func(p *rpcpeer.Peer) []any {
		registryMu.Lock()
		defer registryMu.Unlock()
		m := registry[u]
		out := make([]any, 0, len(m))
		for base := range m {
			out = append(out, base)
		}
		return out
	})
}

// processRequest handles an inbound kFlagRequest notification: it expands
// frame wildcards against the frames this host has actually produced,
// upserts the requesting peer's StreamClient entry for each resolved
// FrameID, and fires one onRequest event carrying the request's own
// (possibly wildcarded) FrameID. A kFlagReset on the request is handled
// exactly like a plain request. Grounded on netstream.hpp's
// Net::_processRequest.
func (n *Net) processRequest(p *rpcpeer.Peer, spkt packet.StreamPacket, pkt packet.DataPacket) {
	if !n.host {
		return
	}
	fid := spkt.FrameID()
	targets := n.resolveWildcard(fid)
	if len(targets) == 0 {
		targets = []id.FrameID{fid}
	}

	count := int(pkt.FrameCount)
	if count <= 0 {
		count = n.framesToRequest
	}
	allChannels := spkt.Channel == id.Channel(id.Wildcard)
	var channels id.ChannelSet
	if !allChannels {
		channels = id.NewChannelSet(spkt.Channel)
	}

	for _, target := range targets {
		n.upsertClient(target, p.ID(), count, channels, allChannels)
		n.Base.Enable(target)
		if !allChannels {
			n.Base.EnableSet(target, channels)
		}
	}
	n.Base.FireRequest(stream.Request{ID: fid, Channel: spkt.Channel, Bitrate: int(pkt.Bitrate), Count: int(pkt.FrameCount)})
}

// resolveWildcard expands a (possibly wildcarded) FrameID against the set
// of frames this Net has ever produced data for.
func (n *Net) resolveWildcard(fid id.FrameID) []id.FrameID {
	if !fid.IsWildcardFrameset() && !fid.IsWildcardSource() {
		return nil
	}
	var out []id.FrameID
	for _, known := range n.Base.Frames() {
		switch {
		case fid.IsWildcard():
			out = append(out, known)
		case fid.IsWildcardFrameset() && known.Source() == fid.Source():
			out = append(out, known)
		case fid.IsWildcardSource() && known.Frameset() == fid.Frameset():
			out = append(out, known)
		}
	}
	return out
}

func (n *Net) upsertClient(fid id.FrameID, peerID id.PeerID, count int, channels id.ChannelSet, all bool) {
	n.clientsMu.Lock()
	defer n.clientsMu.Unlock()
	for _, c := range n.clients[fid] {
		if c.peerID == peerID {
			c.txcount.Store(int32(count))
			if all {
				c.allChannels.Store(true)
			} else {
				c.addChannels(channels)
			}
			return
		}
	}
	n.clients[fid] = append(n.clients[fid], newClient(peerID, count, channels, all))
}

// Post implements the host's outbound path: it records the packet in the
// local bookkeeping (so Frames()/Channels() reflect what's been produced),
// then fans it out to every client subscribed to this frame, stripping the
// payload for clients that did not select this channel, decrementing
// txcount on the end-frame marker, and reaping any client whose txcount has
// run out. Consumers use Post only to push locally generated control
// packets upstream via the same connection; hosting is the common path.
func (n *Net) Post(spkt packet.StreamPacket, pkt packet.DataPacket) bool {
	if !n.active.Load() {
		return false
	}
	fid := spkt.FrameID()
	n.Base.Seen(fid, spkt.Channel)
	n.Base.Trigger(spkt, pkt)

	if !n.host {
		return n.postUpstream(spkt, pkt)
	}

	n.clientsMu.RLock()
	snapshot := append([]*client(nil), n.clients[fid]...)
	n.clientsMu.RUnlock()
	if len(snapshot) == 0 {
		return true
	}

	var reap []id.PeerID
	for _, c := range snapshot {
		peer, ok := n.u.FindByPeerID(c.peerID)
		if !ok || !peer.IsConnected() {
			reap = append(reap, c.peerID)
			continue
		}

		out := pkt
		if spkt.Channel.IsVideo() && !c.wantsChannel(spkt.Channel) {
			out.Data = nil
		} else {
			n.bytesSent.Add(int64(len(pkt.Data)))
			recordTX(int64(len(pkt.Data)))
		}
		_ = peer.Notify(n.base, encodePacket(spkt, out))

		if spkt.IsEndFrame() {
			if c.decrementAndReap() {
				reap = append(reap, c.peerID)
			}
		}
	}

	if len(reap) > 0 {
		n.reapClients(fid, reap)
	}
	return true
}

func (n *Net) reapClients(fid id.FrameID, dead []id.PeerID) {
	if len(dead) == 0 {
		return
	}
	deadSet := make(map[id.PeerID]struct{}, len(dead))
	for _, pid := range dead {
		deadSet[pid] = struct{}{}
	}
	n.clientsMu.Lock()
	defer n.clientsMu.Unlock()
	kept := n.clients[fid][:0]
	for _, c := range n.clients[fid] {
		if _, dead := deadSet[c.peerID]; !dead {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		delete(n.clients, fid)
	} else {
		n.clients[fid] = kept
	}
}
