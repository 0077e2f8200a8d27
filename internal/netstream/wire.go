package netstream

import (
	"github.com/alxayo/ftl-go/internal/protocol/id"
	"github.com/alxayo/ftl-go/internal/protocol/packet"
)

// encodePacket flattens a (StreamPacket, DataPacket) pair into the
// map[string]any shape internal/wire knows how to serialise: wire has no
// struct support, only nil/bool/int64/float64/string/[]byte/[]any/
// map[string]any, so every netstream notification travels as a map rather
// than the bare struct values used internally.
func encodePacket(spkt packet.StreamPacket, pkt packet.DataPacket) map[string]any {
	return map[string]any{
		"v":     int64(spkt.Version),
		"ts":    spkt.Timestamp,
		"sid":   int64(spkt.StreamID),
		"fn":    int64(spkt.FrameNumber),
		"ch":    int64(spkt.Channel),
		"fl":    int64(spkt.Flags),
		"codec": int64(pkt.Codec),
		"fc":    int64(pkt.FrameCount),
		"br":    int64(pkt.Bitrate),
		"df":    int64(pkt.DataFlags),
		"pc":    int64(pkt.PacketCount),
		"data":  pkt.Data,
	}
}

func decodePacket(m map[string]any) (packet.StreamPacket, packet.DataPacket) {
	data, _ := m["data"].([]byte)
	spkt := packet.StreamPacket{
		Version:     uint8(getInt(m, "v")),
		Timestamp:   getInt(m, "ts"),
		StreamID:    uint8(getInt(m, "sid")),
		FrameNumber: uint8(getInt(m, "fn")),
		Channel:     id.Channel(getInt(m, "ch")),
		Flags:       uint8(getInt(m, "fl")),
	}
	pkt := packet.DataPacket{
		Codec:       packet.Codec(getInt(m, "codec")),
		FrameCount:  uint8(getInt(m, "fc")),
		Bitrate:     uint8(getInt(m, "br")),
		DataFlags:   uint8(getInt(m, "df")),
		PacketCount: uint8(getInt(m, "pc")),
		Data:        data,
	}
	return spkt, pkt
}

func getInt(m map[string]any, key string) int64 {
	v, _ := m[key].(int64)
	return v
}
