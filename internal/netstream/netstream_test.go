package netstream

import (
	"context"
	"testing"
	"time"

	"github.com/alxayo/ftl-go/internal/protocol/id"
	"github.com/alxayo/ftl-go/internal/protocol/packet"
	"github.com/alxayo/ftl-go/internal/protocol/stream"
	"github.com/alxayo/ftl-go/internal/universe"
)

func waitConnected(t *testing.T, u *universe.Universe, want int) {
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

func connectUniverses(t *testing.T) (host, consumer *universe.Universe) {
	t.Helper()
	host = universe.New(universe.Config{})
	consumer = universe.New(universe.Config{})
	ln, err := host.Listen("tcp", "127.0.0.1:0", "")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if _, err := consumer.Connect(context.Background(), "tcp://"+ln.Addr().String()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitConnected(t, host, 1)
	waitConnected(t, consumer, 1)
	return host, consumer
}

// TestNet_HostConsumerFrameDelivery exercises the full loop: a consumer
// resolves the hosting peer via find_stream, subscribes with Enable, the
// host answers the request by registering a StreamClient, and a Post on
// the host side reaches the consumer's onPacket callback with the
// kEndFrame marker completing the frame.
func TestNet_HostConsumerFrameDelivery(t *testing.T) {
	host, consumer := connectUniverses(t)
	defer host.Close()
	defer consumer.Close()

	uri := id.URI{Scheme: "ftl", Host: "stream", Path: "/test"}

	hostNet := NewHost(host, uri)
	hostNet.Begin()
	defer hostNet.End()

	consumerNet := NewConsumer(consumer, uri)
	consumerNet.Begin()
	defer consumerNet.End()

	fid := id.NewFrameID(0, 0)

	received := make(chan stream.PacketEvent, 4)
	consumerNet.OnPacket(func(ev stream.PacketEvent) bool {
		received <- ev
		return true
	})

	consumerNet.Enable(fid)

	// Give the subscription request time to land before the host posts.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hostNet.clientsMu.RLock()
		n := len(hostNet.clients[fid])
		hostNet.clientsMu.RUnlock()
		if n > 0 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	videoPkt := packet.Pair{
		SPkt: packet.StreamPacket{Version: packet.CurrentVersion, Timestamp: 100, StreamID: 0, FrameNumber: 0, Channel: id.ChannelColour},
		Pkt:  packet.DataPacket{Codec: packet.CodecH264, FrameCount: 1, Data: []byte{1, 2, 3}},
	}
	hostNet.Post(videoPkt.SPkt, videoPkt.Pkt)

	endPair := packet.NewEndFrame(0, 0, 100, 1)
	hostNet.Post(endPair.SPkt, endPair.Pkt)

	var gotVideo, gotEnd bool
	timeout := time.After(3 * time.Second)
	for !gotVideo || !gotEnd {
		select {
		case ev := <-received:
			if ev.SPkt.IsEndFrame() {
				gotEnd = true
			} else if ev.SPkt.Channel == id.ChannelColour {
				gotVideo = true
				if string(ev.Pkt.Data) != "\x01\x02\x03" {
					t.Fatalf("unexpected payload: %v", ev.Pkt.Data)
				}
			}
		case <-timeout:
			t.Fatalf("timed out: gotVideo=%v gotEnd=%v", gotVideo, gotEnd)
		}
	}
}

func TestNet_WildcardRequestExpandsAgainstKnownFrames(t *testing.T) {
	host, consumer := connectUniverses(t)
	defer host.Close()
	defer consumer.Close()

	uri := id.URI{Scheme: "ftl", Host: "stream", Path: "/multi"}
	hostNet := NewHost(host, uri)
	hostNet.Begin()
	defer hostNet.End()

	// The host has already produced frames for two sources before any
	// subscriber arrives.
	for src := uint8(0); src < 2; src++ {
		hostNet.Post(packet.StreamPacket{Version: packet.CurrentVersion, StreamID: 0, FrameNumber: src, Channel: id.ChannelColour, Timestamp: 1}, packet.DataPacket{Data: []byte{9}})
	}

	consumerNet := NewConsumer(consumer, uri)
	consumerNet.Begin()
	defer consumerNet.End()

	// Enable the wildcard FrameID (all sources in frameset 0); the host
	// should register the consumer against both known sources.
	consumerNet.Enable(id.NewFrameID(0, id.Wildcard))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hostNet.clientsMu.RLock()
		total := 0
		for _, cs := range hostNet.clients {
			total += len(cs)
		}
		hostNet.clientsMu.RUnlock()
		if total >= 2 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("wildcard request never expanded against both known sources")
}

func TestGetStatistics_ReportsNonNegativeRates(t *testing.T) {
	recordTX(1000)
	recordRX(2000)
	stats := GetStatistics()
	if stats.TxRateMbps < 0 || stats.RxRateMbps < 0 {
		t.Fatalf("unexpected negative rate: %+v", stats)
	}
}
