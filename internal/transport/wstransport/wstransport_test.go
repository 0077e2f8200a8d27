package wstransport

import (
	"context"
	"testing"
	"time"
)

func TestListenDialRoundTrip(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", "/rpc")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	addr := ln.Addr().String()

	accepted := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			accepted <- err
			return
		}
		defer c.Close()
		buf := make([]byte, 5)
		n, err := c.Read(buf)
		if err != nil {
			accepted <- err
			return
		}
		if string(buf[:n]) != "hello" {
			accepted <- err
			return
		}
		accepted <- nil
	}()

	d := NewDialer(false)
	c, err := d.Dial(context.Background(), addr+"/rpc")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if _, err := c.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case err := <-accepted:
		if err != nil {
			t.Fatalf("accept side: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept side")
	}
}
