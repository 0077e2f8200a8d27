// Package tcptransport implements transport.Conn/Listener/Dialer over plain
// net.Conn, the "tcp://" scheme named in the URI table. Grounded on the
// teacher's internal/rtmp/conn.Accept: a thin wrapper around the accepted
// net.Conn, nothing more.
package tcptransport

import (
	"context"
	"net"
	"time"

	"github.com/alxayo/ftl-go/internal/transport"
)

// conn embeds a net.Conn to satisfy transport.Conn; callers only see it
// through the transport.Conn interface returned by wrap.
type conn struct {
	net.Conn
}

func wrap(c net.Conn) transport.Conn { return conn{Conn: c} }

func (c conn) SetDeadline(t time.Time) error { return c.Conn.SetDeadline(t) }

// listener wraps a net.Listener.
type listener struct {
	ln net.Listener
}

// Listen binds a TCP listener on addr (host:port).
func Listen(addr string) (transport.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &listener{ln: ln}, nil
}

func (l *listener) Accept() (transport.Conn, error) {
	raw, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return wrap(raw), nil
}

func (l *listener) Close() error { return l.ln.Close() }
func (l *listener) Addr() net.Addr { return l.ln.Addr() }

// Dialer dials plain TCP connections.
type Dialer struct {
	// Timeout bounds the TCP handshake itself; it does not apply to the
	// FTL handshake exchanged after the connection is established.
	Timeout time.Duration
}

// NewDialer returns a Dialer with a sane default connect timeout.
func NewDialer() Dialer { return Dialer{Timeout: 10 * time.Second} }

func (d Dialer) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	raw, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return wrap(raw), nil
}

var _ transport.Listener = (*listener)(nil)
var _ transport.Dialer = Dialer{}
