package rpcpeer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alxayo/ftl-go/internal/protocol/id"
)

func pipePeers(t *testing.T) (*Peer, *Peer) {
	t.Helper()
	a, b := net.Pipe()
	uri, err := id.ParseURI("tcp://127.0.0.1:0")
	if err != nil {
		t.Fatalf("parse uri: %v", err)
	}
	p1 := NewIncoming(a, uri, nil)
	p2 := NewIncoming(b, uri, nil)
	ctx := context.Background()
	if err := p1.Start(ctx); err != nil {
		t.Fatalf("p1 start: %v", err)
	}
	if err := p2.Start(ctx); err != nil {
		t.Fatalf("p2 start: %v", err)
	}
	return p1, p2
}

func waitConnected(t *testing.T, p *Peer) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.IsConnected() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("peer never reached kConnected (status=%v)", p.Status())
}

func TestHandshake_BothSidesReachConnected(t *testing.T) {
	p1, p2 := pipePeers(t)
	defer p1.Close(false)
	defer p2.Close(false)

	waitConnected(t, p1)
	waitConnected(t, p2)

	if p1.ID().IsZero() || p2.ID().IsZero() {
		t.Fatal("expected both peers to learn a peer id from the handshake")
	}
}

func TestHandshake_BadMagicClosesWithoutRetry(t *testing.T) {
	a, _ := net.Pipe()
	uri, _ := id.ParseURI("tcp://127.0.0.1:0")
	p1 := NewIncoming(a, uri, nil)
	defer p1.Close(false)

	fired := make(chan struct{}, 1)
	p1.OnError(func(ev ErrorEvent) bool { fired <- struct{}{}; return true })

	p1.onHandshake(0xBADC0FFEE, currentVersion(), id.NewPeerID().String())

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected onError to fire for bad magic")
	}
	if p1.IsConnected() {
		t.Fatal("expected peer to remain unconnected after bad handshake")
	}
}

func TestCall_RoundTrip(t *testing.T) {
	p1, p2 := pipePeers(t)
	defer p1.Close(false)
	defer p2.Close(false)

	waitConnected(t, p1)
	waitConnected(t, p2)

	p2.Dispatcher().Bind("echo", func(s string) string { return s + s })

	result, err := p1.Call(context.Background(), "echo", "ab")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if result != "abab" {
		t.Fatalf("expected echoed result, got %v", result)
	}
}

func TestCall_ErrorsAgainstUnboundName(t *testing.T) {
	p1, p2 := pipePeers(t)
	defer p1.Close(false)
	defer p2.Close(false)

	waitConnected(t, p1)
	waitConnected(t, p2)

	_, err := p1.Call(context.Background(), "does_not_exist")
	if err == nil {
		t.Fatal("expected an error for an unbound rpc name")
	}
}

func TestPing_ReturnsWallClockMillis(t *testing.T) {
	p1, p2 := pipePeers(t)
	defer p1.Close(false)
	defer p2.Close(false)

	waitConnected(t, p1)
	waitConnected(t, p2)

	result, err := p1.Call(context.Background(), "__ping__")
	if err != nil {
		t.Fatalf("ping call: %v", err)
	}
	if _, ok := result.(int64); !ok {
		t.Fatalf("expected int64 ping result, got %T", result)
	}
}
