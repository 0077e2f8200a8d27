// Package id defines the addressing primitives shared by every protocol
// package: FrameID (frameset+source addressing), the Channel enum and its
// band predicates, stream URIs, and peer identifiers.
package id

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Wildcard marks either component of a FrameID as "all".
const Wildcard uint8 = 255

// FrameID packs (frameset, source) into a single orderable, hashable value,
// matching the C++ union-of-two-bytes-in-a-uint16 representation.
type FrameID uint16

// NewFrameID builds a FrameID from its components.
func NewFrameID(frameset, source uint8) FrameID {
	return FrameID(uint16(frameset)<<8 | uint16(source))
}

// Frameset returns the high byte.
func (f FrameID) Frameset() uint8 { return uint8(f >> 8) }

// Source returns the low byte.
func (f FrameID) Source() uint8 { return uint8(f) }

// IsWildcardFrameset reports whether the frameset component is 255.
func (f FrameID) IsWildcardFrameset() bool { return f.Frameset() == Wildcard }

// IsWildcardSource reports whether the source component is 255.
func (f FrameID) IsWildcardSource() bool { return f.Source() == Wildcard }

// IsWildcard reports whether this FrameID means "all frames in all
// framesets" (255/255).
func (f FrameID) IsWildcard() bool { return f.IsWildcardFrameset() && f.IsWildcardSource() }

func (f FrameID) String() string {
	return fmt.Sprintf("%d/%d", f.Frameset(), f.Source())
}

// AllFrames is the 255/255 wildcard FrameID.
var AllFrames = NewFrameID(Wildcard, Wildcard)

// Channel is a dense small-integer enum with four addressable bands: video
// (<32), audio (32-63), persistent data (64-2047), and control (>=2048).
type Channel uint16

// Channel bands, per the video/image, audio, persistent-data and
// control/user ranges.
const (
	ChannelColour   Channel = 0
	ChannelLeft     Channel = 0
	ChannelDepth    Channel = 1
	ChannelRight    Channel = 1
	ChannelConfidence Channel = 2
	ChannelNormals  Channel = 3
	ChannelDisparity Channel = 4
	ChannelDeviation Channel = 4
	ChannelScreen   Channel = 5
	ChannelDepth2   Channel = 6
	ChannelNormals2 Channel = 7
	ChannelFlow     Channel = 8
	ChannelEnergy   Channel = 9
	ChannelColour2  Channel = 10
	ChannelDisparity2 Channel = 11
	ChannelMask     Channel = 12
	ChannelDensity  Channel = 13
	ChannelSupport1 Channel = 14
	ChannelSupport2 Channel = 15
)

const (
	ChannelAudio  Channel = 32
	ChannelAudio2 Channel = 33
)

const (
	ChannelConfig       Channel = 64
	ChannelCalibration  Channel = 65
	ChannelPose         Channel = 66
	ChannelCalibration2 Channel = 67
	ChannelMetadata     Channel = 68
	ChannelCapabilities Channel = 69
	ChannelCalibrationData Channel = 70
	ChannelThumbnail    Channel = 71
)

const (
	// ChannelControl is the first user/control channel.
	ChannelControl Channel = 2048
	// ChannelEndFrame is the sentinel terminating all packets for a timestamp.
	ChannelEndFrame Channel = 2048
)

// videoAudioBound is the first non video/audio channel (64).
const videoAudioBound Channel = 64

// IsVideo reports whether c is in the video/image band (<32).
func (c Channel) IsVideo() bool { return c < 32 }

// IsAudio reports whether c is in the audio band (32-63).
func (c Channel) IsAudio() bool { return c >= 32 && c < videoAudioBound }

// IsPersistent reports whether c is a persistent metadata channel: neither
// video nor audio, and below the control band.
func (c Channel) IsPersistent() bool {
	return c >= videoAudioBound && c < ChannelControl
}

// IsControl reports whether c is a user/control channel (>=2048).
func (c Channel) IsControl() bool { return c >= ChannelControl }

func (c Channel) String() string {
	switch {
	case c == ChannelEndFrame:
		return "kEndFrame"
	case c.IsVideo():
		return fmt.Sprintf("video(%d)", uint16(c))
	case c.IsAudio():
		return fmt.Sprintf("audio(%d)", uint16(c))
	case c.IsPersistent():
		return fmt.Sprintf("data(%d)", uint16(c))
	default:
		return fmt.Sprintf("control(%d)", uint16(c))
	}
}

// PeerID identifies a peer for the lifetime of its logical identity, stable
// across reconnects. Backed by a UUID exchanged during the handshake.
type PeerID uuid.UUID

// NewPeerID generates a fresh random peer identifier.
func NewPeerID() PeerID { return PeerID(uuid.New()) }

// ParsePeerID parses a textual UUID into a PeerID.
func ParsePeerID(s string) (PeerID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return PeerID{}, fmt.Errorf("parse peer id: %w", err)
	}
	return PeerID(u), nil
}

func (p PeerID) String() string { return uuid.UUID(p).String() }

// IsZero reports whether p is the zero-value (unassigned) peer id.
func (p PeerID) IsZero() bool { return p == PeerID{} }

// URI is a parsed stream/peer address. Scheme selects composition/transport:
// "ftl" (network stream), "file" (container), "tcp"/"ws"/"wss" (raw peer
// transport), "cast" (broadcaster), "mux" (muxer).
type URI struct {
	Scheme string
	Host   string
	Port   int
	Path   string
	Attrs  url.Values
}

// Base returns the scheme+host[:port]+path portion with no query attrs,
// which is what net-stream binds as its RPC method name.
func (u URI) Base() string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(u.Host)
	if u.Port != 0 {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(u.Port))
	}
	b.WriteString(u.Path)
	return b.String()
}

func (u URI) String() string {
	base := u.Base()
	if len(u.Attrs) == 0 {
		return base
	}
	return base + "?" + u.Attrs.Encode()
}

// ParseURI validates and parses one of the scheme forms named above. Plain
// filesystem paths (no scheme, or a leading "~") are normalised to
// file://.
func ParseURI(s string) (URI, error) {
	if s == "" {
		return URI{}, fmt.Errorf("empty uri")
	}
	if !strings.Contains(s, "://") {
		return parsePlainPath(s)
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return URI{}, fmt.Errorf("parse uri %q: %w", s, err)
	}
	switch parsed.Scheme {
	case "ftl", "file", "tcp", "ws", "wss", "cast", "mux":
	default:
		return URI{}, fmt.Errorf("unsupported uri scheme %q", parsed.Scheme)
	}
	out := URI{
		Scheme: parsed.Scheme,
		Host:   parsed.Hostname(),
		Path:   parsed.Path,
		Attrs:  parsed.Query(),
	}
	if p := parsed.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return URI{}, fmt.Errorf("bad port in uri %q: %w", s, err)
		}
		out.Port = port
	}
	return out, nil
}

func parsePlainPath(s string) (URI, error) {
	p := s
	if strings.HasPrefix(p, "~") {
		p = strings.TrimPrefix(p, "~")
	}
	if !strings.HasPrefix(p, "/") {
		return URI{}, fmt.Errorf("bad uri %q: expected an absolute path or a scheme", s)
	}
	return URI{Scheme: "file", Path: p, Attrs: url.Values{}}, nil
}

// IsLocalhost reports whether the URI's host resolves to this machine's
// loopback address, used by the self-connect guard.
func (u URI) IsLocalhost() bool {
	switch strings.ToLower(u.Host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
