package tcptransport

import (
	"context"
	"testing"
	"time"
)

func TestListenDialRoundTrip(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			accepted <- err
			return
		}
		defer c.Close()
		buf := make([]byte, 5)
		if _, err := c.Read(buf); err != nil {
			accepted <- err
			return
		}
		if string(buf) != "hello" {
			accepted <- err
			return
		}
		accepted <- nil
	}()

	d := NewDialer()
	c, err := d.Dial(context.Background(), ln.Addr().String())
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

func TestConnSetDeadline(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	d := NewDialer()
	c, err := d.Dial(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if err := c.SetDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
}
