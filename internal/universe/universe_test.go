package universe

import (
	"context"
	"testing"
	"time"
)

func waitPeerConnected(t *testing.T, u *Universe, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(u.ConnectedPeers()) >= want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d connected peers", want)
}

func TestUniverse_ListenConnectHandshake(t *testing.T) {
	host := New(Config{})
	defer host.Close()
	ln, err := host.Listen("tcp", "127.0.0.1:0", "")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	client := New(Config{})
	defer client.Close()

	ctx := context.Background()
	if _, err := client.Connect(ctx, "tcp://"+ln.Addr().String()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	waitPeerConnected(t, host, 1)
	waitPeerConnected(t, client, 1)
}

func TestUniverse_SelfConnectGuard(t *testing.T) {
	u := New(Config{})
	defer u.Close()
	ln, err := u.Listen("tcp", "127.0.0.1:0", "")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	_, err = u.Connect(context.Background(), "tcp://127.0.0.1:"+portOf(t, ln.Addr().String()))
	if err == nil {
		t.Fatal("expected self-connect to be refused")
	}
}

func TestUniverse_BroadcastReachesConnectedPeers(t *testing.T) {
	host := New(Config{})
	defer host.Close()
	ln, err := host.Listen("tcp", "127.0.0.1:0", "")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	client := New(Config{})
	defer client.Close()
	if _, err := client.Connect(context.Background(), "tcp://"+ln.Addr().String()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitPeerConnected(t, host, 1)
	waitPeerConnected(t, client, 1)

	received := make(chan string, 1)
	client.Dispatcher().Bind("announce", func(uri string) { received <- uri })

	host.Broadcast("announce", "ftl://example/stream")

	select {
	case uri := <-received:
		if uri != "ftl://example/stream" {
			t.Fatalf("unexpected uri: %s", uri)
		}
	case <-time.After(time.Second):
		t.Fatal("expected broadcast notification to arrive")
	}
}

func TestUniverse_FindOneCollectsFirstResponse(t *testing.T) {
	host := New(Config{})
	defer host.Close()
	ln, err := host.Listen("tcp", "127.0.0.1:0", "")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	client := New(Config{})
	defer client.Close()
	client.Dispatcher().Bind("ping_value", func() int64 { return 42 })

	if _, err := client.Connect(context.Background(), "tcp://"+ln.Addr().String()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitPeerConnected(t, host, 1)
	waitPeerConnected(t, client, 1)

	got, err := FindOne[int64](host, context.Background(), "ping_value")
	if err != nil {
		t.Fatalf("find one: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %v", got)
	}
}

func portOf(t *testing.T, hostPort string) string {
	t.Helper()
	for i := len(hostPort) - 1; i >= 0; i-- {
		if hostPort[i] == ':' {
			return hostPort[i+1:]
		}
	}
	t.Fatalf("no port in %q", hostPort)
	return ""
}
