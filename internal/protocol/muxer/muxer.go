// Package muxer combines multiple child streams into a single addressable
// stream, remapping each child's (streamID, frame_number) into a locally
// unique FrameID space.
package muxer

import (
	"fmt"
	"sync"

	"github.com/alxayo/ftl-go/internal/handle"
	"github.com/alxayo/ftl-go/internal/protocol/id"
	"github.com/alxayo/ftl-go/internal/protocol/packet"
	"github.com/alxayo/ftl-go/internal/protocol/stream"
)

// MaxStreams mirrors the original's advisory cap; it is not enforced here
// since a Go map/slice has no fixed-capacity reason to.
const MaxStreams = 5

// NoFixedFrameset is passed to Add when a child's remote framesets should
// each claim their own freshly allocated local frameset, rather than being
// flattened into one.
const NoFixedFrameset = -1

type outMapping struct {
	remote id.FrameID
	entry  *childEntry
}

type childEntry struct {
	stream      stream.Stream
	pktHandle   handle.Handle
	reqHandle   handle.Handle
	availHandle handle.Handle
	errHandle   handle.Handle
	streamID    int64
	fixedFS     int
}

// Muxer merges N child streams into one. Reads from a child register its
// frames in the mapping tables; a write (Post/Enable/Disable) for a local
// FrameID must be preceded by at least one read for that frame, since the
// mapping is learned, not assigned ahead of time.
type Muxer struct {
	stream.Base

	mu        sync.RWMutex
	fsmap     map[int64]uint8      // (streamID, remote frameset) -> local frameset
	srcCount  map[uint8]uint8      // local fixed frameset -> next source to allocate
	imap      map[int64]id.FrameID // (streamID, remote FrameID) -> local FrameID
	omap      map[id.FrameID]outMapping

	entries      []*childEntry
	nextStreamID int64
	nextFrameset int64
}

// New constructs an empty Muxer.
func New() *Muxer {
	return &Muxer{
		Base:     stream.NewBase(),
		fsmap:    make(map[int64]uint8),
		srcCount: make(map[uint8]uint8),
		imap:     make(map[int64]id.FrameID),
		omap:     make(map[id.FrameID]outMapping),
	}
}

func inputKey(streamID int64, remote id.FrameID) int64 {
	return streamID<<32 | int64(uint16(remote))
}

func framesetKey(streamID int64, remoteFrameset uint8) int64 {
	return streamID<<32 | int64(remoteFrameset)
}

// mapFromInput translates a child-relative FrameID to the muxer's local
// FrameID, allocating a new mapping on first sight.
func (m *Muxer) mapFromInput(e *childEntry, remote id.FrameID) id.FrameID {
	key := inputKey(e.streamID, remote)

	m.mu.RLock()
	if local, ok := m.imap[key]; ok {
		m.mu.RUnlock()
		return local
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if local, ok := m.imap[key]; ok {
		return local
	}

	var local id.FrameID
	if e.fixedFS >= 0 {
		fs := uint8(e.fixedFS)
		src := m.srcCount[fs]
		m.srcCount[fs] = src + 1
		local = id.NewFrameID(fs, src)
	} else {
		fsKey := framesetKey(e.streamID, remote.Frameset())
		fs, ok := m.fsmap[fsKey]
		if !ok {
			fs = uint8(m.nextFrameset)
			m.nextFrameset++
			m.fsmap[fsKey] = fs
		}
		local = id.NewFrameID(fs, remote.Source())
	}

	m.imap[key] = local
	m.omap[local] = outMapping{remote: remote, entry: e}
	return local
}

// mapToOutput translates a local FrameID to the (remote FrameID, owning
// child) pair, if the mapping has been learned.
func (m *Muxer) mapToOutput(local id.FrameID) (outMapping, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out, ok := m.omap[local]
	return out, ok
}

// Add registers a child stream. If fixedFS is NoFixedFrameset, each distinct
// remote frameset from this child claims the next never-used local
// frameset; otherwise every remote frame from this child is flattened into
// local frameset fixedFS with freshly allocated source indices.
func (m *Muxer) Add(s stream.Stream, fixedFS int) {
	m.mu.Lock()
	e := &childEntry{stream: s, streamID: m.nextStreamID, fixedFS: fixedFS}
	m.nextStreamID++
	m.entries = append(m.entries, e)
	m.mu.Unlock()

	e.pktHandle = s.OnPacket(func(ev stream.PacketEvent) bool {
		remote := id.NewFrameID(ev.SPkt.StreamID, ev.SPkt.FrameNumber)
		local := m.mapFromInput(e, remote)
		spkt2 := ev.SPkt
		spkt2.StreamID = local.Frameset()
		spkt2.FrameNumber = local.Source()
		m.Trigger(spkt2, ev.Pkt)
		return true
	})

	e.availHandle = s.OnAvailable(func(ev stream.AvailableEvent) bool {
		local := m.mapFromInput(e, ev.ID)
		m.Seen(local, ev.Channel)
		return true
	})

	e.reqHandle = s.OnRequest(func(req stream.Request) bool {
		if req.ID.IsWildcardFrameset() || req.ID.IsWildcardSource() {
			for _, remote := range e.stream.Frames() {
				if !req.ID.IsWildcardFrameset() && req.ID.Frameset() != remote.Frameset() {
					continue
				}
				if !req.ID.IsWildcardSource() && req.ID.Source() != remote.Source() {
					continue
				}
				local := m.mapFromInput(e, remote)
				nr := req
				nr.ID = local
				m.FireRequest(nr)
			}
		} else {
			local := m.mapFromInput(e, req.ID)
			nr := req
			nr.ID = local
			m.FireRequest(nr)
		}
		return true
	})

	e.errHandle = s.OnError(func(ev stream.ErrorEvent) bool {
		m.FireError(ev.Kind, ev.Message)
		return true
	})
}

// Remove cancels every callback registered for s and purges all mapping
// entries referencing it.
func (m *Muxer) Remove(s stream.Stream) {
	m.mu.Lock()
	var target *childEntry
	kept := m.entries[:0:0]
	for _, e := range m.entries {
		if e.stream == s {
			target = e
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	if target != nil {
		for k := range m.imap {
			if k>>32 == target.streamID {
				delete(m.imap, k)
			}
		}
		for k, v := range m.omap {
			if v.entry == target {
				delete(m.omap, k)
			}
		}
		for k := range m.fsmap {
			if k>>32 == target.streamID {
				delete(m.fsmap, k)
			}
		}
	}
	m.mu.Unlock()

	if target != nil {
		target.pktHandle.Cancel()
		target.reqHandle.Cancel()
		target.availHandle.Cancel()
		target.errHandle.Cancel()
	}
}

// Streams returns every currently-registered child stream.
func (m *Muxer) Streams() []stream.Stream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]stream.Stream, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.stream
	}
	return out
}

// OriginStream returns the child stream that owns local, if mapped.
func (m *Muxer) OriginStream(local id.FrameID) (stream.Stream, bool) {
	out, ok := m.mapToOutput(local)
	if !ok {
		return nil, false
	}
	return out.entry.stream, true
}

// FindStream returns the child stream whose kURI property equals uri.
func (m *Muxer) FindStream(uri string) (stream.Stream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if streamURI(e.stream) == uri {
			return e.stream, true
		}
	}
	return nil, false
}

func streamURI(s stream.Stream) string {
	v, err := s.GetProperty(stream.PropertyURI)
	if err != nil {
		return ""
	}
	str, _ := v.(string)
	return str
}

// FindLocal resolves the local FrameID for a bare stream URI, defaulting the
// remote frameset/frame to 0/0 unless the URI carries "set"/"frame"
// attributes.
func (m *Muxer) FindLocal(uri string) (id.FrameID, error) {
	u, err := id.ParseURI(uri)
	if err != nil {
		return 0, err
	}
	var fs, fr uint8
	if v := u.Attrs.Get("set"); v != "" {
		fmt.Sscanf(v, "%d", &fs)
	}
	if v := u.Attrs.Get("frame"); v != "" {
		fmt.Sscanf(v, "%d", &fr)
	}
	return m.FindLocalForRemote(uri, id.NewFrameID(fs, fr))
}

// FindLocalForRemote resolves the local FrameID for a given remote FrameID
// on the child bound to uri.
func (m *Muxer) FindLocalForRemote(uri string, remote id.FrameID) (id.FrameID, error) {
	s, ok := m.FindStream(uri)
	if !ok {
		return 0, fmt.Errorf("muxer: no stream bound to %q", uri)
	}
	return m.FindLocalForStream(s, remote)
}

// FindLocalForStream resolves (allocating if necessary) the local FrameID
// for a given remote FrameID on a known child stream.
func (m *Muxer) FindLocalForStream(s stream.Stream, remote id.FrameID) (id.FrameID, error) {
	m.mu.RLock()
	var e *childEntry
	for _, c := range m.entries {
		if c.stream == s {
			e = c
			break
		}
	}
	m.mu.RUnlock()
	if e == nil {
		return 0, fmt.Errorf("muxer: stream not registered")
	}
	return m.mapFromInput(e, remote), nil
}

// FindRemote resolves the remote FrameID a local FrameID maps to.
func (m *Muxer) FindRemote(local id.FrameID) (id.FrameID, error) {
	out, ok := m.mapToOutput(local)
	if !ok {
		return 0, fmt.Errorf("muxer: no mapping for %v", local)
	}
	return out.remote, nil
}

// Post rewrites the packet's addressing fields to the owning child's
// address space and forwards it.
func (m *Muxer) Post(spkt packet.StreamPacket, pkt packet.DataPacket) bool {
	out, ok := m.mapToOutput(id.NewFrameID(spkt.StreamID, spkt.FrameNumber))
	if !ok {
		return false
	}
	spkt2 := spkt
	spkt2.StreamID = out.remote.Frameset()
	spkt2.FrameNumber = out.remote.Source()
	return out.entry.stream.Post(spkt2, pkt)
}

// Begin starts every child stream, returning true only if all succeed.
func (m *Muxer) Begin() bool {
	ok := true
	for _, s := range m.Streams() {
		ok = s.Begin() && ok
	}
	return ok
}

// End terminates every child stream, returning true only if all succeed.
func (m *Muxer) End() bool {
	ok := true
	for _, s := range m.Streams() {
		ok = s.End() && ok
	}
	return ok
}

// Active reports whether every child stream is active.
func (m *Muxer) Active() bool {
	for _, s := range m.Streams() {
		if !s.Active() {
			return false
		}
	}
	return true
}

// Reset resets every child stream (and, via that, the muxer's own mapping
// state stays but the child-side availability/enabled bookkeeping clears).
func (m *Muxer) Reset() {
	for _, s := range m.Streams() {
		s.Reset()
	}
}

func (m *Muxer) wildcardFrames(fid id.FrameID) []id.FrameID {
	all := m.Frames()
	out := make([]id.FrameID, 0, len(all))
	for _, f := range all {
		if !fid.IsWildcardFrameset() && fid.Frameset() != f.Frameset() {
			continue
		}
		if !fid.IsWildcardSource() && fid.Source() != f.Source() {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Enable activates fid on the owning child and locally. A frameset or
// source of 255 fans the request across every matching already-known local
// frame (255/255 means every known frame).
func (m *Muxer) Enable(fid id.FrameID) bool {
	if fid.IsWildcardFrameset() || fid.IsWildcardSource() {
		ok := true
		for _, f := range m.wildcardFrames(fid) {
			out, present := m.mapToOutput(f)
			if !present {
				return false
			}
			r := out.entry.stream.Enable(out.remote)
			if r {
				m.Base.Enable(f)
			}
			ok = ok && r
		}
		return ok
	}
	out, ok := m.mapToOutput(fid)
	if !ok {
		return false
	}
	r := out.entry.stream.Enable(out.remote)
	if r {
		m.Base.Enable(fid)
	}
	return r
}

// EnableChannel is Enable, additionally selecting c.
func (m *Muxer) EnableChannel(fid id.FrameID, c id.Channel) bool {
	if fid.IsWildcardFrameset() || fid.IsWildcardSource() {
		ok := true
		for _, f := range m.wildcardFrames(fid) {
			out, present := m.mapToOutput(f)
			if !present {
				return false
			}
			r := out.entry.stream.EnableChannel(out.remote, c)
			if r {
				m.Base.EnableChannel(f, c)
			}
			ok = ok && r
		}
		return ok
	}
	out, ok := m.mapToOutput(fid)
	if !ok {
		return false
	}
	r := out.entry.stream.EnableChannel(out.remote, c)
	if r {
		m.Base.EnableChannel(fid, c)
	}
	return r
}

// EnableSet is Enable, additionally selecting every channel in set.
func (m *Muxer) EnableSet(fid id.FrameID, set id.ChannelSet) bool {
	if fid.IsWildcardFrameset() || fid.IsWildcardSource() {
		ok := true
		for _, f := range m.wildcardFrames(fid) {
			out, present := m.mapToOutput(f)
			if !present {
				return false
			}
			r := out.entry.stream.EnableSet(out.remote, set)
			if r {
				m.Base.EnableSet(f, set)
			}
			ok = ok && r
		}
		return ok
	}
	out, ok := m.mapToOutput(fid)
	if !ok {
		return false
	}
	r := out.entry.stream.EnableSet(out.remote, set)
	if r {
		m.Base.EnableSet(fid, set)
	}
	return r
}

// Disable forwards to the owning child and clears local state. No wildcard
// support, matching the original.
func (m *Muxer) Disable(fid id.FrameID) {
	out, ok := m.mapToOutput(fid)
	if !ok {
		return
	}
	out.entry.stream.Disable(out.remote)
	m.Base.Disable(fid)
}

// DisableChannel forwards to the owning child and clears local selection.
func (m *Muxer) DisableChannel(fid id.FrameID, c id.Channel) {
	out, ok := m.mapToOutput(fid)
	if !ok {
		return
	}
	out.entry.stream.DisableChannel(out.remote, c)
	m.Base.DisableChannel(fid, c)
}

// DisableSet forwards to the owning child and clears local selection.
func (m *Muxer) DisableSet(fid id.FrameID, set id.ChannelSet) {
	out, ok := m.mapToOutput(fid)
	if !ok {
		return
	}
	out.entry.stream.DisableSet(out.remote, set)
	m.Base.DisableSet(fid, set)
}

// SetProperty broadcasts to every child.
func (m *Muxer) SetProperty(p stream.Property, value any) error {
	var firstErr error
	for _, s := range m.Streams() {
		if err := s.SetProperty(p, value); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// GetProperty returns the value from the first child that supports p.
func (m *Muxer) GetProperty(p stream.Property) (any, error) {
	for _, s := range m.Streams() {
		if s.SupportsProperty(p) {
			return s.GetProperty(p)
		}
	}
	return nil, fmt.Errorf("muxer: property %v not supported by any child", p)
}

// SupportsProperty reports whether any child supports p.
func (m *Muxer) SupportsProperty(p stream.Property) bool {
	for _, s := range m.Streams() {
		if s.SupportsProperty(p) {
			return true
		}
	}
	return false
}

// Type returns kMixed if children disagree, else their common type.
func (m *Muxer) Type() stream.Type {
	t := stream.TypeUnknown
	first := true
	for _, s := range m.Streams() {
		tt := s.Type()
		if first {
			t = tt
			first = false
		} else if t != tt {
			return stream.TypeMixed
		}
	}
	return t
}

var _ stream.Stream = (*Muxer)(nil)
