package broadcaster

import (
	"testing"

	"github.com/alxayo/ftl-go/internal/protocol/id"
	"github.com/alxayo/ftl-go/internal/protocol/packet"
	"github.com/alxayo/ftl-go/internal/protocol/stream"
)

type fakeStream struct {
	stream.Base
	active     bool
	enableOK   bool
	posted     []packet.Pair
	postResult bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{Base: stream.NewBase(), active: true, enableOK: true, postResult: true}
}

func (f *fakeStream) Post(spkt packet.StreamPacket, pkt packet.DataPacket) bool {
	f.posted = append(f.posted, packet.Pair{SPkt: spkt, Pkt: pkt})
	return f.postResult
}
func (f *fakeStream) Begin() bool { f.active = true; return true }
func (f *fakeStream) End() bool   { f.active = false; return true }
func (f *fakeStream) Active() bool { return f.active }

func (f *fakeStream) SetProperty(p stream.Property, v any) error { return nil }
func (f *fakeStream) GetProperty(p stream.Property) (any, error) { return nil, nil }
func (f *fakeStream) SupportsProperty(p stream.Property) bool    { return false }
func (f *fakeStream) Type() stream.Type                          { return stream.TypeLive }

func (f *fakeStream) Enable(fid id.FrameID) bool {
	if !f.enableOK {
		return false
	}
	return f.Base.Enable(fid)
}

var _ stream.Stream = (*fakeStream)(nil)

func TestBroadcaster_PostForwardsToAllChildrenUnchanged(t *testing.T) {
	b := New()
	a := newFakeStream()
	c := newFakeStream()
	b.Add(a)
	b.Add(c)

	spkt := packet.StreamPacket{StreamID: 4, FrameNumber: 1, Channel: id.ChannelColour}
	pkt := packet.DataPacket{Data: []byte("x")}

	if !b.Post(spkt, pkt) {
		t.Fatal("expected post to succeed when both children accept")
	}
	if len(a.posted) != 1 || a.posted[0].SPkt != spkt {
		t.Fatalf("expected child a to receive the packet unchanged, got %+v", a.posted)
	}
	if len(c.posted) != 1 || c.posted[0].SPkt != spkt {
		t.Fatalf("expected child c to receive the packet unchanged, got %+v", c.posted)
	}
}

func TestBroadcaster_PostFailsIfAnyChildRejects(t *testing.T) {
	b := New()
	a := newFakeStream()
	bad := newFakeStream()
	bad.postResult = false
	b.Add(a)
	b.Add(bad)

	if b.Post(packet.StreamPacket{}, packet.DataPacket{}) {
		t.Fatal("expected post to fail when any child rejects")
	}
}

func TestBroadcaster_EnableIsDisjunction(t *testing.T) {
	b := New()
	rejecting := newFakeStream()
	rejecting.enableOK = false
	accepting := newFakeStream()
	b.Add(rejecting)
	b.Add(accepting)

	fid := id.NewFrameID(0, 0)
	if !b.Enable(fid) {
		t.Fatal("expected enable to succeed since at least one child accepted")
	}
	if !b.IsEnabled(fid) {
		t.Fatal("expected local state to reflect the disjunctive enable")
	}
}

func TestBroadcaster_EnableFailsIfNoChildAccepts(t *testing.T) {
	b := New()
	rejecting := newFakeStream()
	rejecting.enableOK = false
	b.Add(rejecting)

	fid := id.NewFrameID(0, 0)
	if b.Enable(fid) {
		t.Fatal("expected enable to fail when every child rejects")
	}
	if b.IsEnabled(fid) {
		t.Fatal("expected local state not to be marked enabled")
	}
}

func TestBroadcaster_ActiveRequiresAllChildrenAndAtLeastOne(t *testing.T) {
	b := New()
	if b.Active() {
		t.Fatal("expected active to be false with no children")
	}

	a := newFakeStream()
	b.Add(a)
	if !b.Active() {
		t.Fatal("expected active true with one active child")
	}

	a.active = false
	if b.Active() {
		t.Fatal("expected active false once a child goes inactive")
	}
}

func TestBroadcaster_FansChildAvailabilityUp(t *testing.T) {
	b := New()
	a := newFakeStream()
	b.Add(a)

	var fired bool
	b.OnAvailable(func(ev stream.AvailableEvent) bool { fired = true; return true })

	a.Seen(id.NewFrameID(0, 0), id.ChannelPose)

	if !fired {
		t.Fatal("expected a child's availability event to fan up to the broadcaster")
	}
}

func TestBroadcaster_RemoveStopsForwarding(t *testing.T) {
	b := New()
	a := newFakeStream()
	b.Add(a)
	b.Remove(a)

	var fired bool
	b.OnPacket(func(ev stream.PacketEvent) bool { fired = true; return true })
	a.Trigger(packet.StreamPacket{}, packet.DataPacket{})

	if fired {
		t.Fatal("expected no forwarding after Remove")
	}
}
