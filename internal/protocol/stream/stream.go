// Package stream defines the Stream interface and the shared bookkeeping
// every concrete stream (net, file, muxer, broadcaster) builds on:
// per-frame availability tracking, the enabled/selected channel set, and
// callback fan-out for packets, requests, availability and errors.
package stream

import (
	"sync"

	"github.com/alxayo/ftl-go/internal/errors"
	"github.com/alxayo/ftl-go/internal/handle"
	"github.com/alxayo/ftl-go/internal/protocol/id"
	"github.com/alxayo/ftl-go/internal/protocol/packet"
)

// Request describes a consumer's demand for a frame/channel: what bitrate,
// how many frames, and which codec it expects.
type Request struct {
	ID      id.FrameID
	Channel id.Channel
	Bitrate int
	Count   int
	Codec   packet.Codec
}

// PacketEvent bundles the (StreamPacket, DataPacket) pair delivered to
// onPacket callbacks - Go generics can't parameterise Handler over two
// independent argument types, so the pair travels as one event value (see
// internal/handle's package doc for the general pattern).
type PacketEvent struct {
	SPkt packet.StreamPacket
	Pkt  packet.DataPacket
}

// AvailableEvent reports that id/Channel became newly available.
type AvailableEvent struct {
	ID      id.FrameID
	Channel id.Channel
}

// ErrorEvent reports an asynchronous stream error.
type ErrorEvent struct {
	Kind    errors.ErrorKind
	Message string
}

// Property identifies a tunable/readable stream attribute. Not every Stream
// implementation supports every property - check SupportsProperty first.
type Property int

const (
	PropertyInvalid Property = iota
	PropertyLooping
	PropertySpeed
	PropertyBitrate
	PropertyMaxBitrate
	PropertyAdaptiveBitrate
	PropertyObservers
	PropertyURI
	PropertyPaused
	PropertyBytesSent
	PropertyBytesReceived
	PropertyLatency
	PropertyFrameRate
	PropertyName
	PropertyDescription
	PropertyTags
	PropertyUser
)

// Type hints at a stream's general capability.
type Type int

const (
	TypeMixed Type = iota // children disagree
	TypeUnknown
	TypeLive     // backed by a net stream
	TypeRecorded // backed by a file stream
)

// Stream is the common interface implemented by every concrete and
// composite stream (net, file, muxer, broadcaster). Streams are
// bidirectional: frames can be posted and received on the same instance.
type Stream interface {
	Name() string

	OnPacket(cb func(PacketEvent) bool) handle.Handle
	OnRequest(cb func(Request) bool) handle.Handle
	OnAvailable(cb func(AvailableEvent) bool) handle.Handle
	OnError(cb func(ErrorEvent) bool) handle.Handle

	Post(spkt packet.StreamPacket, pkt packet.DataPacket) bool

	Begin() bool
	End() bool
	Active() bool
	Reset()
	Refresh()

	Available(fid id.FrameID) bool
	AvailableChannel(fid id.FrameID, c id.Channel) bool
	AvailableSet(fid id.FrameID, set id.ChannelSet) bool

	Channels(fid id.FrameID) id.ChannelSet
	EnabledChannels(fid id.FrameID) id.ChannelSet
	Frames() []id.FrameID
	EnabledFrames() []id.FrameID
	IsEnabled(fid id.FrameID) bool
	IsChannelEnabled(fid id.FrameID, c id.Channel) bool

	Size() int

	Enable(fid id.FrameID) bool
	EnableChannel(fid id.FrameID, c id.Channel) bool
	EnableSet(fid id.FrameID, set id.ChannelSet) bool
	Disable(fid id.FrameID)
	DisableChannel(fid id.FrameID, c id.Channel)
	DisableSet(fid id.FrameID, set id.ChannelSet)

	SetProperty(p Property, value any) error
	GetProperty(p Property) (any, error)
	SupportsProperty(p Property) bool

	Type() Type
}

// frameState is the per-FrameID bookkeeping described in spec: whether the
// frame is enabled, which channels were selected by a consumer, which
// transient (video/audio) channels were seen in the last committed frame
// and the one in flight (as 64-bit bitmasks, since transient channel
// numbers are always < 64), and which persistent channels have ever been
// observed.
type frameState struct {
	enabled             bool
	selected            id.ChannelSet
	availableLast       uint64
	availableNext       uint64
	availablePersistent id.ChannelSet
}

func newFrameState() *frameState {
	return &frameState{selected: id.NewChannelSet(), availablePersistent: id.NewChannelSet()}
}

// Base implements the bookkeeping and callback fan-out shared by every
// Stream. Concrete streams embed Base and supply Post/Begin/End/Active/
// SetProperty/GetProperty/SupportsProperty; Base's Reset/Refresh may be
// overridden the same way (Go's method promotion resolves to whichever
// type defines it, matching the original's virtual dispatch).
type Base struct {
	mu    sync.RWMutex
	state map[id.FrameID]*frameState

	packetCB *handle.Handler[PacketEvent]
	reqCB    *handle.Handler[Request]
	availCB  *handle.Handler[AvailableEvent]
	errCB    *handle.Handler[ErrorEvent]
}

// NewBase constructs an empty Base. Concrete stream constructors call this
// to initialise their embedded Base.
func NewBase() Base {
	return Base{
		state:    make(map[id.FrameID]*frameState),
		packetCB: handle.NewHandler[PacketEvent](),
		reqCB:    handle.NewHandler[Request](),
		availCB:  handle.NewHandler[AvailableEvent](),
		errCB:    handle.NewHandler[ErrorEvent](),
	}
}

// Name returns a human-readable stream name. Concrete streams typically
// override this with their bound URI.
func (b *Base) Name() string { return "Unknown" }

func (b *Base) OnPacket(cb func(PacketEvent) bool) handle.Handle       { return b.packetCB.On(cb) }
func (b *Base) OnRequest(cb func(Request) bool) handle.Handle          { return b.reqCB.On(cb) }
func (b *Base) OnAvailable(cb func(AvailableEvent) bool) handle.Handle { return b.availCB.On(cb) }
func (b *Base) OnError(cb func(ErrorEvent) bool) handle.Handle         { return b.errCB.On(cb) }

// Trigger fans a received packet out to every onPacket callback. Concrete
// streams call this once they have decoded an incoming packet.
func (b *Base) Trigger(spkt packet.StreamPacket, pkt packet.DataPacket) {
	b.packetCB.Trigger(PacketEvent{SPkt: spkt, Pkt: pkt})
}

// FireRequest fans a decoded request out to every onRequest callback.
func (b *Base) FireRequest(req Request) {
	b.reqCB.Trigger(req)
}

// FireError fans an asynchronous error out to every onError callback.
func (b *Base) FireError(kind errors.ErrorKind, msg string) {
	b.errCB.Trigger(ErrorEvent{Kind: kind, Message: msg})
}

func (b *Base) getState(fid id.FrameID) *frameState {
	b.mu.RLock()
	st, ok := b.state[fid]
	b.mu.RUnlock()
	if ok {
		return st
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.state[fid]; ok {
		return st
	}
	st = newFrameState()
	b.state[fid] = st
	return st
}

func (b *Base) peekState(fid id.FrameID) *frameState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state[fid]
}

// Available reports whether any state has ever been recorded for fid.
func (b *Base) Available(fid id.FrameID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.state[fid]
	return ok
}

// AvailableChannel reports whether channel has been observed for fid:
// persistent-channel membership for persistent channels, the "last
// committed frame" bitmask for transient (video/audio) channels.
func (b *Base) AvailableChannel(fid id.FrameID, c id.Channel) bool {
	st := b.peekState(fid)
	if st == nil {
		return false
	}
	if c.IsPersistent() {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return st.availablePersistent.Contains(c)
	}
	return st.availableLast&(uint64(1)<<uint(c)) != 0
}

// AvailableSet reports whether every channel in set is available for fid.
func (b *Base) AvailableSet(fid id.FrameID, set id.ChannelSet) bool {
	st := b.peekState(fid)
	if st == nil {
		return false
	}
	for c := range set {
		if c.IsPersistent() {
			b.mu.RLock()
			ok := st.availablePersistent.Contains(c)
			b.mu.RUnlock()
			if !ok {
				return false
			}
		} else if st.availableLast&(uint64(1)<<uint(c)) == 0 {
			return false
		}
	}
	return true
}

// Channels returns the union of persistent channels ever seen
// and transient channels present in the last committed frame.
func (b *Base) Channels(fid id.FrameID) id.ChannelSet {
	st := b.peekState(fid)
	if st == nil {
		return id.NewChannelSet()
	}
	b.mu.RLock()
	result := st.availablePersistent.Clone()
	last := st.availableLast
	b.mu.RUnlock()
	for i := 0; i < 64; i++ {
		if last&(uint64(1)<<uint(i)) != 0 {
			result.Add(id.Channel(i))
		}
	}
	return result
}

// Frames returns every FrameID this stream has ever recorded state for.
func (b *Base) Frames() []id.FrameID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]id.FrameID, 0, len(b.state))
	for fid := range b.state {
		out = append(out, fid)
	}
	return out
}

// EnabledFrames returns every FrameID currently marked enabled.
func (b *Base) EnabledFrames() []id.FrameID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []id.FrameID
	for fid, st := range b.state {
		if st.enabled {
			out = append(out, fid)
		}
	}
	return out
}

// EnabledFramesInFrameset returns every enabled FrameID within the given
// frameset.
func (b *Base) EnabledFramesInFrameset(fs uint8) []id.FrameID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []id.FrameID
	for fid, st := range b.state {
		if st.enabled && fid.Frameset() == fs {
			out = append(out, fid)
		}
	}
	return out
}

// IsEnabled reports whether fid is currently enabled.
func (b *Base) IsEnabled(fid id.FrameID) bool {
	st := b.peekState(fid)
	if st == nil {
		return false
	}
	return st.enabled
}

// IsChannelEnabled reports whether channel c has been explicitly selected
// for fid.
func (b *Base) IsChannelEnabled(fid id.FrameID, c id.Channel) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.state[fid]
	if !ok {
		return false
	}
	return st.selected.Contains(c)
}

// EnabledChannels returns the set of channels explicitly selected for fid.
func (b *Base) EnabledChannels(fid id.FrameID) id.ChannelSet {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.state[fid]
	if !ok {
		return id.NewChannelSet()
	}
	return st.selected.Clone()
}

// Size returns the number of FrameIDs this stream has recorded state for.
func (b *Base) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.state)
}

// Enable marks fid enabled without selecting any particular channel.
func (b *Base) Enable(fid id.FrameID) bool {
	st := b.getState(fid)
	b.mu.Lock()
	st.enabled = true
	b.mu.Unlock()
	return true
}

// EnableChannel marks fid enabled and adds c to its selected set.
func (b *Base) EnableChannel(fid id.FrameID, c id.Channel) bool {
	st := b.getState(fid)
	b.mu.Lock()
	st.enabled = true
	st.selected.Add(c)
	b.mu.Unlock()
	return true
}

// EnableSet marks fid enabled and adds every channel in set to its
// selected set.
func (b *Base) EnableSet(fid id.FrameID, set id.ChannelSet) bool {
	st := b.getState(fid)
	b.mu.Lock()
	st.enabled = true
	for c := range set {
		st.selected.Add(c)
	}
	b.mu.Unlock()
	return true
}

// Disable clears fid's enabled flag.
func (b *Base) Disable(fid id.FrameID) {
	st := b.getState(fid)
	b.mu.Lock()
	st.enabled = false
	b.mu.Unlock()
}

// DisableChannel removes c from fid's selected set, clearing enabled if
// that empties the set.
func (b *Base) DisableChannel(fid id.FrameID, c id.Channel) {
	st := b.getState(fid)
	b.mu.Lock()
	st.selected.Remove(c)
	if st.selected.Len() == 0 {
		st.enabled = false
	}
	b.mu.Unlock()
}

// DisableSet removes every channel in set from fid's selected set, clearing
// enabled if that empties the set.
func (b *Base) DisableSet(fid id.FrameID, set id.ChannelSet) {
	st := b.getState(fid)
	b.mu.Lock()
	for c := range set {
		st.selected.Remove(c)
	}
	if st.selected.Len() == 0 {
		st.enabled = false
	}
	b.mu.Unlock()
}

// Reset clears all per-frame state. You must enable frames/channels again
// afterward.
func (b *Base) Reset() {
	b.mu.Lock()
	b.state = make(map[id.FrameID]*frameState)
	b.mu.Unlock()
}

// Refresh is a no-op at the base level; Net overrides it (re-requesting
// everything and forcing new I-frames).
func (b *Base) Refresh() {}

// Seen records that channel was observed for fid and fires onAvailable the
// first time it becomes newly available. kEndFrame commits the in-flight
// transient bitmask to the "last committed frame" bitmask and starts a
// fresh accumulator.
func (b *Base) Seen(fid id.FrameID, channel id.Channel) {
	st := b.getState(fid)

	if channel == id.ChannelEndFrame {
		b.mu.Lock()
		st.availableLast = st.availableNext
		st.availableNext = 0
		b.mu.Unlock()
		b.availCB.Trigger(AvailableEvent{ID: fid, Channel: channel})
		return
	}

	if channel.IsPersistent() {
		b.mu.Lock()
		if st.availablePersistent.Contains(channel) {
			b.mu.Unlock()
			return
		}
		st.availablePersistent.Add(channel)
		b.mu.Unlock()
		b.availCB.Trigger(AvailableEvent{ID: fid, Channel: channel})
		return
	}

	b.mu.Lock()
	bit := uint64(1) << uint(channel)
	alreadySeen := (st.availableLast|st.availableNext)&bit != 0
	st.availableNext |= bit
	b.mu.Unlock()
	if alreadySeen {
		return
	}
	b.availCB.Trigger(AvailableEvent{ID: fid, Channel: channel})
}
