package packet

import (
	"bytes"
	"testing"

	"github.com/alxayo/ftl-go/internal/protocol/id"
)

func TestStreamPacket_Classification(t *testing.T) {
	req := StreamPacket{Flags: FlagRequest}
	if !req.IsRequest() {
		t.Fatal("expected request flag to be set")
	}
	if req.IsReset() || req.IsCompleted() {
		t.Fatal("unexpected flags set")
	}

	end := StreamPacket{Channel: id.ChannelEndFrame}
	if !end.IsEndFrame() {
		t.Fatal("expected kEndFrame classification")
	}
}

func TestPair_EncodeDecodeRoundTrip(t *testing.T) {
	p := Pair{
		SPkt: StreamPacket{
			Version:     CurrentVersion,
			Timestamp:   12345,
			StreamID:    2,
			FrameNumber: 1,
			Channel:     id.ChannelConfidence,
			Flags:       FlagCompleted,
		},
		Pkt: DataPacket{
			Codec:      CodecH264,
			FrameCount: 1,
			Bitrate:    3,
			Data:       []byte("payload"),
		},
	}

	var buf bytes.Buffer
	if err := Encode(&buf, p); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SPkt != p.SPkt {
		t.Fatalf("spkt mismatch: %+v != %+v", got.SPkt, p.SPkt)
	}
	if got.Pkt.Codec != p.Pkt.Codec || !bytes.Equal(got.Pkt.Data, p.Pkt.Data) {
		t.Fatalf("pkt mismatch: %+v != %+v", got.Pkt, p.Pkt)
	}
}

func TestNewEndFrame(t *testing.T) {
	pair := NewEndFrame(2, 1, 500, 7)
	if !pair.SPkt.IsEndFrame() {
		t.Fatal("expected end frame channel")
	}
	if pair.Pkt.PacketCount != 7 {
		t.Fatalf("expected packet count 7, got %d", pair.Pkt.PacketCount)
	}
	if pair.SPkt.FrameID() != id.NewFrameID(2, 1) {
		t.Fatalf("unexpected frame id: %v", pair.SPkt.FrameID())
	}
}
