package hooks

import (
	"context"

	"github.com/alxayo/ftl-go/internal/rpcpeer"
)

// AttachPeer wires a Peer's lifecycle callbacks into m, so every configured
// hook (shell, webhook, stdio) fires on connect/disconnect/error without the
// caller having to repeat the Manager.Fire plumbing at every peer
// construction site.
func AttachPeer(ctx context.Context, m *Manager, p *rpcpeer.Peer) {
	p.OnConnect(func(ev rpcpeer.ConnectEvent) bool {
		m.Fire(ctx, *NewEvent(EventPeerConnect).
			WithPeerID(ev.Peer.ID().String()).
			WithData("connection_count", ev.Peer.ConnectionCount()))
		return true
	})
	p.OnDisconnect(func(ev rpcpeer.DisconnectEvent) bool {
		m.Fire(ctx, *NewEvent(EventPeerDisconnect).
			WithPeerID(ev.Peer.ID().String()).
			WithData("retry", ev.Retry))
		return true
	})
	p.OnError(func(ev rpcpeer.ErrorEvent) bool {
		event := NewEvent(EventPeerError).
			WithPeerID(ev.Peer.ID().String()).
			WithData("kind", ev.Kind.String())
		if ev.Err != nil {
			event = event.WithData("error", ev.Err.Error())
		}
		m.Fire(ctx, *event)
		return true
	})
}

// StreamBegin fires EventStreamBegin for uri.
func StreamBegin(ctx context.Context, m *Manager, uri string) {
	m.Fire(ctx, *NewEvent(EventStreamBegin).WithStreamURI(uri))
}

// StreamEnd fires EventStreamEnd for uri.
func StreamEnd(ctx context.Context, m *Manager, uri string) {
	m.Fire(ctx, *NewEvent(EventStreamEnd).WithStreamURI(uri))
}
