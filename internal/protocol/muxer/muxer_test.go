package muxer

import (
	"testing"

	"github.com/alxayo/ftl-go/internal/protocol/id"
	"github.com/alxayo/ftl-go/internal/protocol/packet"
	"github.com/alxayo/ftl-go/internal/protocol/stream"
)

// fakeStream is a minimal Stream implementation for exercising Muxer without
// a real net/file stream.
type fakeStream struct {
	stream.Base
	uri    string
	active bool
	posted []packet.Pair
}

func newFakeStream(uri string) *fakeStream {
	return &fakeStream{Base: stream.NewBase(), uri: uri, active: true}
}

func (f *fakeStream) Post(spkt packet.StreamPacket, pkt packet.DataPacket) bool {
	f.posted = append(f.posted, packet.Pair{SPkt: spkt, Pkt: pkt})
	return true
}
func (f *fakeStream) Begin() bool  { f.active = true; return true }
func (f *fakeStream) End() bool    { f.active = false; return true }
func (f *fakeStream) Active() bool { return f.active }

func (f *fakeStream) SetProperty(p stream.Property, v any) error { return nil }
func (f *fakeStream) GetProperty(p stream.Property) (any, error) {
	if p == stream.PropertyURI {
		return f.uri, nil
	}
	return nil, nil
}
func (f *fakeStream) SupportsProperty(p stream.Property) bool { return p == stream.PropertyURI }
func (f *fakeStream) Type() stream.Type                       { return stream.TypeLive }

// deliver simulates the child receiving a packet from its own remote
// source the way concrete streams do (Seen, then Trigger), firing the
// callbacks Muxer.Add bound.
func (f *fakeStream) deliver(spkt packet.StreamPacket, pkt packet.DataPacket) {
	f.Seen(spkt.FrameID(), spkt.Channel)
	f.Trigger(spkt, pkt)
}

var _ stream.Stream = (*fakeStream)(nil)

func TestMuxer_MapsChildFramesToLocalFramesets(t *testing.T) {
	m := New()
	childA := newFakeStream("ftl://a")
	childB := newFakeStream("ftl://b")
	m.Add(childA, NoFixedFrameset)
	m.Add(childB, NoFixedFrameset)

	childA.deliver(packet.StreamPacket{StreamID: 0, FrameNumber: 0, Channel: id.ChannelColour}, packet.DataPacket{})
	childB.deliver(packet.StreamPacket{StreamID: 0, FrameNumber: 0, Channel: id.ChannelColour}, packet.DataPacket{})

	frames := m.Frames()
	if len(frames) != 2 {
		t.Fatalf("expected 2 distinct local frames, got %d: %v", len(frames), frames)
	}

	// The two children's frameset 0 must be allocated to distinct local
	// framesets even though their remote addressing collides.
	framesets := map[uint8]bool{}
	for _, f := range frames {
		framesets[f.Frameset()] = true
	}
	if len(framesets) != 2 {
		t.Fatalf("expected 2 distinct local framesets, got %v", framesets)
	}
}

func TestMuxer_FixedFramesetFlattensSources(t *testing.T) {
	m := New()
	child := newFakeStream("ftl://a")
	m.Add(child, 7)

	child.deliver(packet.StreamPacket{StreamID: 3, FrameNumber: 0}, packet.DataPacket{})
	child.deliver(packet.StreamPacket{StreamID: 9, FrameNumber: 0}, packet.DataPacket{})

	for _, f := range m.Frames() {
		if f.Frameset() != 7 {
			t.Fatalf("expected fixed frameset 7, got %d", f.Frameset())
		}
	}
	if len(m.Frames()) != 2 {
		t.Fatalf("expected 2 allocated sources under the fixed frameset, got %d", len(m.Frames()))
	}
}

func TestMuxer_PostRewritesAddressingToChild(t *testing.T) {
	m := New()
	child := newFakeStream("ftl://a")
	m.Add(child, NoFixedFrameset)

	child.deliver(packet.StreamPacket{StreamID: 5, FrameNumber: 2, Channel: id.ChannelColour}, packet.DataPacket{})

	local := m.Frames()[0]
	ok := m.Post(packet.StreamPacket{StreamID: local.Frameset(), FrameNumber: local.Source()}, packet.DataPacket{Data: []byte("x")})
	if !ok {
		t.Fatal("expected post to succeed once the frame is mapped")
	}
	if len(child.posted) != 1 {
		t.Fatalf("expected exactly 1 packet delivered to the child, got %d", len(child.posted))
	}
	if child.posted[0].SPkt.StreamID != 5 || child.posted[0].SPkt.FrameNumber != 2 {
		t.Fatalf("expected packet rewritten to the child's own addressing, got %+v", child.posted[0].SPkt)
	}
}

func TestMuxer_PostUnknownFrameFails(t *testing.T) {
	m := New()
	if m.Post(packet.StreamPacket{StreamID: 99, FrameNumber: 99}, packet.DataPacket{}) {
		t.Fatal("expected post for an unmapped frame to fail")
	}
}

func TestMuxer_RemovePurgesMappings(t *testing.T) {
	m := New()
	child := newFakeStream("ftl://a")
	m.Add(child, NoFixedFrameset)
	child.deliver(packet.StreamPacket{StreamID: 0, FrameNumber: 0}, packet.DataPacket{})

	if len(m.Streams()) != 1 {
		t.Fatalf("expected 1 child registered, got %d", len(m.Streams()))
	}

	m.Remove(child)

	if len(m.Streams()) != 0 {
		t.Fatalf("expected 0 children after Remove, got %d", len(m.Streams()))
	}
	local := id.NewFrameID(0, 0)
	if _, err := m.FindRemote(local); err == nil {
		t.Fatal("expected mapping to be purged after Remove")
	}
}

func TestMuxer_WildcardEnableFansOutToAllKnownFrames(t *testing.T) {
	m := New()
	child := newFakeStream("ftl://a")
	m.Add(child, NoFixedFrameset)

	child.deliver(packet.StreamPacket{StreamID: 0, FrameNumber: 0}, packet.DataPacket{})
	child.deliver(packet.StreamPacket{StreamID: 0, FrameNumber: 1}, packet.DataPacket{})

	if !m.Enable(id.AllFrames) {
		t.Fatal("expected wildcard enable to succeed")
	}
	for _, f := range m.Frames() {
		if !m.IsEnabled(f) {
			t.Fatalf("expected frame %v enabled by wildcard Enable", f)
		}
	}
}

func TestMuxer_TypeAggregation(t *testing.T) {
	m := New()
	if m.Type() != stream.TypeUnknown {
		t.Fatalf("expected kUnknown with no children, got %v", m.Type())
	}
	m.Add(newFakeStream("ftl://a"), NoFixedFrameset)
	if m.Type() != stream.TypeLive {
		t.Fatalf("expected kLive with one live child, got %v", m.Type())
	}
}
