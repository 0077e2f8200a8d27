package universe

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/alxayo/ftl-go/internal/errors"
	"github.com/alxayo/ftl-go/internal/protocol/id"
	"github.com/alxayo/ftl-go/internal/rpcpeer"
	"github.com/alxayo/ftl-go/internal/transport"
	"github.com/alxayo/ftl-go/internal/transport/tcptransport"
	"github.com/alxayo/ftl-go/internal/transport/wstransport"
)

// Listen opens a listener for the given scheme ("tcp", "ws", "wss") and
// address, and spawns an accept loop that wraps every accepted connection
// as an incoming Peer. wsPath is only consulted for ws/wss.
func (u *Universe) Listen(scheme, addr, wsPath string) (transport.Listener, error) {
	var ln transport.Listener
	var err error
	switch scheme {
	case "tcp":
		ln, err = tcptransport.Listen(addr)
	case "ws", "wss":
		ln, err = wstransport.Listen(addr, wsPath)
	default:
		return nil, errors.NewRuntimeError(errors.KindListen, "universe.listen",
			fmt.Errorf("unsupported listen scheme %q", scheme))
	}
	if err != nil {
		return nil, errors.NewRuntimeError(errors.KindListen, "universe.listen", err)
	}

	u.mu.Lock()
	u.listeners[addr] = ln
	if _, port, perr := net.SplitHostPort(ln.Addr().String()); perr == nil {
		if n, aerr := strconv.Atoi(port); aerr == nil {
			u.localPort[n] = struct{}{}
		}
	}
	u.mu.Unlock()

	u.wg.Add(1)
	go u.acceptLoop(scheme, ln)
	return ln, nil
}

func (u *Universe) acceptLoop(scheme string, ln transport.Listener) {
	defer u.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			u.mu.RLock()
			closed := u.closed
			u.mu.RUnlock()
			if !closed {
				u.log.Warn("accept error", "scheme", scheme, "error", err)
			}
			return
		}

		uri := id.URI{Scheme: scheme, Host: conn.RemoteAddr().String()}
		p := rpcpeer.NewIncoming(conn, uri, u.dispatcher)
		if err := u.insertPeer(p); err != nil {
			u.log.Warn("dropping accepted connection: peer array full", "error", err)
			_ = conn.Close()
			continue
		}
		if err := p.Start(context.Background()); err != nil {
			u.log.Warn("failed to start accepted peer", "error", err)
		}
	}
}
