// Package broadcaster fans a single stream's traffic out to N child
// streams verbatim (no address rewriting, unlike muxer), and fans child
// events back up.
package broadcaster

import (
	"sync"

	"github.com/alxayo/ftl-go/internal/handle"
	"github.com/alxayo/ftl-go/internal/protocol/id"
	"github.com/alxayo/ftl-go/internal/protocol/packet"
	"github.com/alxayo/ftl-go/internal/protocol/stream"
)

type entry struct {
	stream      stream.Stream
	pktHandle   handle.Handle
	reqHandle   handle.Handle
	availHandle handle.Handle
}

// Broadcaster forwards every Post to every child stream unchanged, and
// fans trigger/seen/request events from any child back up to its own
// callbacks. Unlike Muxer, it never touches a packet's addressing.
type Broadcaster struct {
	stream.Base

	mu      sync.RWMutex
	entries []*entry
}

// New constructs an empty Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{Base: stream.NewBase()}
}

// Add registers a child stream. Its packets, availability and requests are
// forwarded verbatim to this broadcaster's own callbacks.
func (b *Broadcaster) Add(s stream.Stream) {
	e := &entry{stream: s}

	e.pktHandle = s.OnPacket(func(ev stream.PacketEvent) bool {
		b.Trigger(ev.SPkt, ev.Pkt)
		return true
	})
	e.availHandle = s.OnAvailable(func(ev stream.AvailableEvent) bool {
		b.Seen(ev.ID, ev.Channel)
		return true
	})
	e.reqHandle = s.OnRequest(func(req stream.Request) bool {
		b.FireRequest(req)
		return true
	})

	b.mu.Lock()
	b.entries = append(b.entries, e)
	b.mu.Unlock()
}

// Remove cancels a child's forwarded callbacks and drops it from the fan-out
// set.
func (b *Broadcaster) Remove(s stream.Stream) {
	b.mu.Lock()
	var target *entry
	kept := b.entries[:0:0]
	for _, e := range b.entries {
		if e.stream == s {
			target = e
			continue
		}
		kept = append(kept, e)
	}
	b.entries = kept
	b.mu.Unlock()

	if target != nil {
		target.pktHandle.Cancel()
		target.reqHandle.Cancel()
		target.availHandle.Cancel()
	}
}

// Clear removes every child stream.
func (b *Broadcaster) Clear() {
	b.mu.Lock()
	entries := b.entries
	b.entries = nil
	b.mu.Unlock()

	for _, e := range entries {
		e.pktHandle.Cancel()
		e.reqHandle.Cancel()
		e.availHandle.Cancel()
	}
}

// Streams returns every currently-registered child stream.
func (b *Broadcaster) Streams() []stream.Stream {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]stream.Stream, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.stream
	}
	return out
}

// Post forwards spkt/pkt to every child unchanged, returning true only if
// every child accepted it.
func (b *Broadcaster) Post(spkt packet.StreamPacket, pkt packet.DataPacket) bool {
	ok := true
	for _, s := range b.Streams() {
		ok = s.Post(spkt, pkt) && ok
	}
	return ok
}

// Begin starts every child, true only if all succeed.
func (b *Broadcaster) Begin() bool {
	ok := true
	for _, s := range b.Streams() {
		ok = s.Begin() && ok
	}
	return ok
}

// End terminates every child, true only if all succeed.
func (b *Broadcaster) End() bool {
	ok := true
	for _, s := range b.Streams() {
		ok = s.End() && ok
	}
	return ok
}

// Active is false with no children, and otherwise a conjunction over every
// child's activity.
func (b *Broadcaster) Active() bool {
	streams := b.Streams()
	if len(streams) == 0 {
		return false
	}
	for _, s := range streams {
		if !s.Active() {
			return false
		}
	}
	return true
}

// Reset resets every child.
func (b *Broadcaster) Reset() {
	for _, s := range b.Streams() {
		s.Reset()
	}
}

// Refresh is a no-op, matching the original.
func (b *Broadcaster) Refresh() {}

// Enable is a disjunction: true if any child accepted it, and if so the
// frame is also marked enabled locally.
func (b *Broadcaster) Enable(fid id.FrameID) bool {
	r := false
	for _, s := range b.Streams() {
		r = s.Enable(fid) || r
	}
	if r {
		b.Base.Enable(fid)
	}
	return r
}

// EnableChannel is Enable, additionally selecting c.
func (b *Broadcaster) EnableChannel(fid id.FrameID, c id.Channel) bool {
	r := false
	for _, s := range b.Streams() {
		r = s.EnableChannel(fid, c) || r
	}
	if r {
		b.Base.EnableChannel(fid, c)
	}
	return r
}

// EnableSet is Enable, additionally selecting every channel in set.
func (b *Broadcaster) EnableSet(fid id.FrameID, set id.ChannelSet) bool {
	r := false
	for _, s := range b.Streams() {
		r = s.EnableSet(fid, set) || r
	}
	if r {
		b.Base.EnableSet(fid, set)
	}
	return r
}

// Disable forwards to every child and clears local state.
func (b *Broadcaster) Disable(fid id.FrameID) {
	for _, s := range b.Streams() {
		s.Disable(fid)
	}
	b.Base.Disable(fid)
}

// DisableChannel forwards to every child and clears local selection.
func (b *Broadcaster) DisableChannel(fid id.FrameID, c id.Channel) {
	for _, s := range b.Streams() {
		s.DisableChannel(fid, c)
	}
	b.Base.DisableChannel(fid, c)
}

// DisableSet forwards to every child and clears local selection.
func (b *Broadcaster) DisableSet(fid id.FrameID, set id.ChannelSet) {
	for _, s := range b.Streams() {
		s.DisableSet(fid, set)
	}
	b.Base.DisableSet(fid, set)
}

// SetProperty is unsupported: a broadcaster has no single child to prefer,
// matching the original's no-op.
func (b *Broadcaster) SetProperty(p stream.Property, value any) error { return nil }

// GetProperty always returns a nil value and a nil error, matching the
// original.
func (b *Broadcaster) GetProperty(p stream.Property) (any, error) { return nil, nil }

// SupportsProperty is always false, matching the original.
func (b *Broadcaster) SupportsProperty(p stream.Property) bool { return false }

// Type is always kUnknown, matching the original.
func (b *Broadcaster) Type() stream.Type { return stream.TypeUnknown }

var _ stream.Stream = (*Broadcaster)(nil)
