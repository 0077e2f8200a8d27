package packet

import (
	"fmt"
	"io"

	"github.com/alxayo/ftl-go/internal/protocol/id"
	"github.com/alxayo/ftl-go/internal/wire"
)

func channelFrom(v int64) id.Channel { return id.Channel(v) }

// Encode serialises a Pair using the self-describing wire codec, as a
// single map value. Net-stream notifications do not use it: internal/netstream
// flattens packets with its own encodePacket.
func Encode(w io.Writer, p Pair) error {
	return wire.EncodeValue(w, p.asWireValue())
}

// Decode reads one Pair back from the wire codec.
func Decode(r io.Reader) (Pair, error) {
	v, err := wire.DecodeValue(r)
	if err != nil {
		return Pair{}, err
	}
	return pairFromWireValue(v)
}

func (p Pair) asWireValue() map[string]any {
	return map[string]any{
		"version":         int64(p.SPkt.Version),
		"timestamp":       p.SPkt.Timestamp,
		"stream_id":       int64(p.SPkt.StreamID),
		"frame_number":    int64(p.SPkt.FrameNumber),
		"channel":         int64(p.SPkt.Channel),
		"flags":           int64(p.SPkt.Flags),
		"codec":           int64(p.Pkt.Codec),
		"frame_count":     int64(p.Pkt.FrameCount),
		"bitrate":         int64(p.Pkt.Bitrate),
		"data_flags":      int64(p.Pkt.DataFlags),
		"packet_count":    int64(p.Pkt.PacketCount),
		"data":            p.Pkt.Data,
	}
}

func pairFromWireValue(v any) (Pair, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Pair{}, fmt.Errorf("packet: expected map, got %T", v)
	}
	i64 := func(key string) int64 {
		if x, ok := m[key].(int64); ok {
			return x
		}
		return 0
	}
	data, _ := m["data"].([]byte)
	var pair Pair
	pair.SPkt = StreamPacket{
		Version:         uint8(i64("version")),
		Timestamp:       i64("timestamp"),
		StreamID:        uint8(i64("stream_id")),
		FrameNumber:     uint8(i64("frame_number")),
		Channel:         channelFrom(i64("channel")),
		Flags:           uint8(i64("flags")),
		HintCapability:  uint8(i64("hint_capability")),
		HintSourceTotal: uint8(i64("hint_src_total")),
	}
	pair.Pkt = DataPacket{
		Codec:       Codec(i64("codec")),
		FrameCount:  uint8(i64("frame_count")),
		Bitrate:     uint8(i64("bitrate")),
		DataFlags:   uint8(i64("data_flags")),
		PacketCount: uint8(i64("packet_count")),
		Data:        data,
	}
	return pair, nil
}
