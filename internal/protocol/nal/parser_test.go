package nal

import "testing"

func TestValidNAL_GetNALType_IsIFrame(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0x00}
	if !ValidNAL(buf) {
		t.Fatal("expected valid start code")
	}
	if GetNALType(buf) != SPS {
		t.Fatalf("expected SPS type, got %v", GetNALType(buf))
	}
	if !IsIFrame(buf) {
		t.Fatal("buffer starting with an SPS NAL should be classified as an I-frame")
	}
}

func TestValidNAL_RejectsShortOrMismatchedPrefix(t *testing.T) {
	if ValidNAL([]byte{0x00, 0x00, 0x01}) {
		t.Fatal("buffer shorter than the probe window should be invalid")
	}
	if ValidNAL([]byte{0x00, 0x00, 0x01, 0x01, 0x67}) {
		t.Fatal("non-zero third byte should not match the start code")
	}
}

// bitWriter is a minimal test-only Exp-Golomb bitstream builder, the
// inverse of BitReader, used to construct synthetic SPS/PPS/slice RBSPs.
type bitWriter struct {
	bytes []byte
	cur   byte
	nbits int
}

func (w *bitWriter) WriteBit(b uint32) {
	w.cur = (w.cur << 1) | byte(b&1)
	w.nbits++
	if w.nbits == 8 {
		w.bytes = append(w.bytes, w.cur)
		w.cur = 0
		w.nbits = 0
	}
}

func (w *bitWriter) WriteBits(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		w.WriteBit((v >> uint(i)) & 1)
	}
}

func (w *bitWriter) WriteUE(v uint32) {
	codeNum := v + 1
	length := 0
	for tmp := codeNum; tmp != 0; tmp >>= 1 {
		length++
	}
	for i := 0; i < length-1; i++ {
		w.WriteBit(0)
	}
	w.WriteBits(codeNum, length)
}

func (w *bitWriter) WriteSE(v int32) {
	var k uint32
	if v > 0 {
		k = uint32(2*v - 1)
	} else {
		k = uint32(-2 * v)
	}
	w.WriteUE(k)
}

// FinishRBSP appends the mandatory stop bit, zero-pads to a byte boundary,
// then appends a 16-bit trailing zero word, and returns the bytes.
func (w *bitWriter) FinishRBSP() []byte {
	w.WriteBit(1)
	for w.nbits != 0 {
		w.WriteBit(0)
	}
	w.WriteBits(0, 16)
	return w.bytes
}

func buildMinimalSPS() []byte {
	w := &bitWriter{}
	w.WriteBits(66, 8) // profile_idc: baseline
	w.WriteBits(0, 8)  // constraint flags + reserved
	w.WriteBits(30, 8) // level_idc
	w.WriteUE(0)       // sps_id
	w.WriteUE(0)       // log2_max_frame_num_minus4
	w.WriteUE(0)       // poc_type = 0
	w.WriteUE(0)       // log2_max_poc_lsb_minus4
	w.WriteUE(0)       // ref_frame_count
	w.WriteBit(0)      // gaps_in_frame_num_allowed_flag
	w.WriteUE(0)       // pic_width_in_mbs_minus1 -> width 16
	w.WriteUE(0)       // pic_height_in_map_units_minus1 -> height 16
	w.WriteBit(1)       // frame_mbs_only_flag
	w.WriteBit(1)       // direct_8x8_inference_flag
	w.WriteBit(0)       // frame_cropping_flag
	w.WriteBit(0)       // vui_parameters_present_flag
	return w.FinishRBSP()
}

func buildMinimalPPS() []byte {
	w := &bitWriter{}
	w.WriteUE(0)  // pps_id
	w.WriteUE(0)  // sps_id
	w.WriteBit(0) // entropy_coding_mode_flag
	w.WriteBit(0) // pic_order_present
	w.WriteUE(0)  // slice_group_count_minus1
	w.WriteUE(0)  // ref_count[0]-1
	w.WriteUE(0)  // ref_count[1]-1
	w.WriteBit(0) // weighted_pred
	w.WriteBits(0, 2) // weighted_bipred_idc
	w.WriteSE(0)  // init_qp_minus26
	w.WriteSE(0)  // init_qs_minus26
	w.WriteSE(0)  // chroma_qp_index_offset
	w.WriteBit(0) // deblocking_filter_parameters_present
	w.WriteBit(0) // constrained_intra_pred
	w.WriteBit(0) // redundant_pic_cnt_present
	return w.FinishRBSP()
}

func buildMinimalIDRSlice() []byte {
	w := &bitWriter{}
	w.WriteUE(0) // first_mb_in_slice
	w.WriteUE(2) // slice_type: kIType
	w.WriteUE(0) // pps_id
	w.WriteBits(0, 4) // frame_number (log2_max_frame_num = 4)
	w.WriteUE(0)      // idr_pic_id
	w.WriteBits(0, 4) // pic_order_cnt_lsb (log2_max_poc_lsb = 4)
	w.WriteBit(0)     // no_output_of_prior_pics_flag
	w.WriteBit(0)     // long_term_reference_flag
	return w.FinishRBSP()
}

// nalUnit wraps an RBSP with a 3-byte Annex-B start code (00 00 01) and a
// one-byte NAL header. The parser's start-code-to-start-code length math
// assumes exactly three prefix bytes between units.
func nalUnit(refIDC uint8, t NALType, rbsp []byte) []byte {
	out := []byte{0x00, 0x00, 0x01, (refIDC << 5) | byte(t)}
	return append(out, rbsp...)
}

func TestParser_ParseSPSPPSSlice(t *testing.T) {
	var buf []byte
	buf = append(buf, nalUnit(3, SPS, buildMinimalSPS())...)
	buf = append(buf, nalUnit(3, PPS, buildMinimalPPS())...)
	buf = append(buf, nalUnit(3, CodedSliceIDR, buildMinimalIDRSlice())...)

	p := NewParser()
	slices := p.Parse(buf)
	if len(slices) != 1 {
		t.Fatalf("expected 1 slice, got %d", len(slices))
	}
	s := slices[0]
	if !s.KeyFrame {
		t.Fatal("expected IDR slice to be marked as keyframe")
	}
	if s.SPS == nil || s.PPS == nil {
		t.Fatal("expected slice to reference parsed SPS/PPS")
	}
	if s.SPS.Width != 16 || s.SPS.Height != 16 {
		t.Fatalf("unexpected dimensions: %dx%d", s.SPS.Width, s.SPS.Height)
	}
}

func TestBitReader_GolombRoundTrip(t *testing.T) {
	w := &bitWriter{}
	values := []uint32{0, 1, 2, 5, 13, 100}
	for _, v := range values {
		w.WriteUE(v)
	}
	r := NewBitReader(w.bytes)
	for _, want := range values {
		got := r.GolombUnsigned()
		if got != want {
			t.Fatalf("golomb unsigned mismatch: got %d want %d", got, want)
		}
	}
}
