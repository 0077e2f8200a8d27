package netstream

import (
	"sync/atomic"

	"github.com/alxayo/ftl-go/internal/protocol/id"
)

// client is one subscriber to a hosted FrameID: which peer it is, how many
// more frames it is still owed (txcount), and which channels it asked for.
// Grounded on original_source/src/streams/netstream.hpp's detail::StreamClient,
// adapted from an intrusive list entry to a map value since Go has no
// equivalent to the original's unordered_map<FrameID, list<StreamClient>>
// iterator-stability requirement (we simply hold the lock while iterating).
type client struct {
	peerID      id.PeerID
	txcount     atomic.Int32
	channels    atomic.Uint32 // bitmask of requested channels, video band only
	allChannels atomic.Bool   // true if the request used the channel wildcard
	quality     uint8
}

func newClient(peerID id.PeerID, count int, channels id.ChannelSet, all bool) *client {
	c := &client{peerID: peerID, quality: 0}
	c.txcount.Store(int32(count))
	c.channels.Store(channelMask(channels))
	c.allChannels.Store(all)
	return c
}

// wantsChannel reports whether ch was explicitly requested. Channels outside
// the video band (<32) are always considered selected: only video has a
// per-client bitmask in the original, everything else always ships.
func (c *client) wantsChannel(ch id.Channel) bool {
	if c.allChannels.Load() || !ch.IsVideo() {
		return true
	}
	return c.channels.Load()&(uint32(1)<<uint(ch)) != 0
}

func (c *client) addChannels(channels id.ChannelSet) {
	for {
		old := c.channels.Load()
		next := old | channelMask(channels)
		if c.channels.CompareAndSwap(old, next) {
			return
		}
	}
}

// decrementAndReap decrements txcount by one and reports whether the client
// has now run out of requested frames and should be reaped.
func (c *client) decrementAndReap() bool {
	return c.txcount.Add(-1) <= 0
}

func channelMask(set id.ChannelSet) uint32 {
	var mask uint32
	for ch := range set {
		if ch.IsVideo() {
			mask |= uint32(1) << uint(ch)
		}
	}
	return mask
}
