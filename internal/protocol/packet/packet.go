// Package packet defines the two envelopes carried on every FTL wire
// message and in every file-container record: StreamPacket (addressing) and
// DataPacket (codec payload).
package packet

import (
	"github.com/alxayo/ftl-go/internal/protocol/id"
)

// CurrentVersion is the protocol version this module speaks.
const CurrentVersion uint8 = 5

// StreamPacket flags.
const (
	FlagRequest  uint8 = 0x01 // empty-data request
	FlagCompleted uint8 = 0x02
	FlagReset    uint8 = 0x04 // force key refresh
)

// Capability hint bits carried on StreamPacket.HintCapability (non-wire;
// supplemented from the original C++ source's hint fields).
const (
	CapStatic        uint8 = 0x01
	CapRecorded      uint8 = 0x02
	CapNewConnection uint8 = 0x04
)

// StreamPacket is the addressing envelope: which frame, which channel,
// when, and what kind of packet (data vs. request vs. end-of-frame marker).
type StreamPacket struct {
	Version     uint8
	Timestamp   int64 // source clock, milliseconds
	StreamID    uint8 // frameset
	FrameNumber uint8 // source index within frameset
	Channel     id.Channel
	Flags       uint8

	// Non-wire fields: local bookkeeping only, never serialised.
	LocalTimestamp   int64
	HintCapability   uint8
	HintSourceTotal  uint8
}

// FrameID returns the (frameset, source) address this packet targets.
func (s StreamPacket) FrameID() id.FrameID { return id.NewFrameID(s.StreamID, s.FrameNumber) }

// IsRequest reports whether this packet is an empty-data subscription
// request rather than a delivery.
func (s StreamPacket) IsRequest() bool { return s.Flags&FlagRequest != 0 }

// IsReset reports whether the sender is forcing a key-frame refresh.
func (s StreamPacket) IsReset() bool { return s.Flags&FlagReset != 0 }

// IsCompleted reports whether the kFlagCompleted bit is set.
func (s StreamPacket) IsCompleted() bool { return s.Flags&FlagCompleted != 0 }

// IsEndFrame reports whether this packet is the kEndFrame sentinel for its
// timestamp.
func (s StreamPacket) IsEndFrame() bool { return s.Channel == id.ChannelEndFrame }

// Codec identifies the payload encoding carried by a DataPacket.
type Codec uint8

const (
	CodecInvalid Codec = iota
	CodecAny
	CodecH264
	CodecHEVC
	CodecJPG
	CodecPNG
	CodecOpus
	CodecPCM
	CodecRaw
	CodecFloat
	CodecJSON
	CodecMsgPack
)

// DataPacket is the payload envelope: the codec, how many source timestamps
// it represents (for request semantics), and the raw bytes.
type DataPacket struct {
	Codec      Codec
	FrameCount uint8 // >=1; request count, or 1 for pure data
	Bitrate    uint8 // 0 = highest

	// DataFlags and PacketCount share a wire slot: DataFlags is meaningful
	// on ordinary data packets, PacketCount on kEndFrame packets carrying
	// the total packet count observed for that frame.
	DataFlags   uint8
	PacketCount uint8

	Data []byte
}

// IsRequestPayload reports whether Data is empty, meaning this DataPacket
// carries no payload (paired with a request StreamPacket).
func (d DataPacket) IsRequestPayload() bool { return len(d.Data) == 0 }

// Pair is one (StreamPacket, DataPacket) record, the unit stored in the
// file container and carried in one net-stream notification.
type Pair struct {
	SPkt StreamPacket
	Pkt  DataPacket
}

// NewEndFrame builds the kEndFrame sentinel packet for the given frame and
// timestamp, carrying the total observed packet count.
func NewEndFrame(frameset, source uint8, ts int64, packetCount uint8) Pair {
	return Pair{
		SPkt: StreamPacket{
			Version:     CurrentVersion,
			Timestamp:   ts,
			StreamID:    frameset,
			FrameNumber: source,
			Channel:     id.ChannelEndFrame,
		},
		Pkt: DataPacket{
			Codec:       CodecInvalid,
			FrameCount:  1,
			PacketCount: packetCount,
		},
	}
}
