package universe

import (
	"context"
	"fmt"

	"github.com/alxayo/ftl-go/internal/errors"
	"github.com/alxayo/ftl-go/internal/protocol/id"
	"github.com/alxayo/ftl-go/internal/rpcpeer"
)

// Connect dials uri and returns the resulting outgoing peer once the
// connection and handshake have been initiated. Refuses to dial
// localhost/127.0.0.1/::1 on one of this universe's own listener ports
// (kSelfConnect), per spec.md §4.7.
func (u *Universe) Connect(ctx context.Context, raw string) (*rpcpeer.Peer, error) {
	uri, err := id.ParseURI(raw)
	if err != nil {
		return nil, errors.NewRuntimeError(errors.KindBadURI, "universe.connect", err)
	}

	u.mu.RLock()
	if existing, ok := u.byURI[uri.Base()]; ok {
		u.mu.RUnlock()
		return existing, nil
	}
	_, selfPort := u.localPort[uri.Port]
	u.mu.RUnlock()

	if uri.IsLocalhost() && selfPort {
		return nil, errors.NewRuntimeError(errors.KindSelfConnect, "universe.connect",
			fmt.Errorf("refusing to connect to our own listener on port %d", uri.Port))
	}

	p := rpcpeer.NewOutgoing(u.dialerFor(uri.Scheme), uri, u.dispatcher)
	if err := u.insertPeer(p); err != nil {
		return nil, err
	}
	if err := p.Start(ctx); err != nil {
		return nil, err
	}
	return p, nil
}
