// Package nal parses H.264 Network Abstraction Layer units well enough to
// classify keyframes and describe slices: start-code scanning, a bit-serial
// reader with Exp-Golomb decoding, and SPS/PPS/slice field extraction.
package nal

import (
	"fmt"

	"github.com/alxayo/ftl-go/internal/errors"
	"github.com/alxayo/ftl-go/internal/logger"
)

// Parser holds the most recently parsed SPS/PPS, as slice NALs reference
// them by id rather than carrying them inline.
type Parser struct {
	sps           SPS
	pps           PPS
	prevRefFrame  int
}

// NewParser returns a parser with no SPS/PPS seen yet.
func NewParser() *Parser { return &Parser{} }

// skipToStartCode scans from 'from' for the next 00 00 01 start code,
// mirroring the rolling 24-bit match in the original parser. Returns the
// index just past the matched start code.
func skipToStartCode(data []byte, from int) (int, bool) {
	code := uint32(0xFFFFFFFF)
	i := from
	for i < len(data) && code&0xFFFFFF != 1 {
		code = (code << 8) | uint32(data[i])
		i++
	}
	return i, code&0xFFFFFF == 1
}

// Parse splits data into a sequence of slices, each referencing the most
// recently parsed SPS/PPS. Malformed NALs are logged and skipped; parsing
// resumes at the next start code.
func (p *Parser) Parse(data []byte) []Slice {
	var slices []Slice

	pos, found := skipToStartCode(data, 0)
	if !found {
		return slices
	}

	for {
		nextPos, hasNext := skipToStartCode(data, pos)
		var length int
		if hasNext {
			length = nextPos - pos - 3
		} else {
			length = len(data) - pos
		}
		if pos >= len(data) || length <= 0 {
			break
		}

		header := extractNALHeader(data[pos])
		body := data[pos+1 : pos+length]

		switch header.Type {
		case SPS:
			if err := p.parseSPS(body); err != nil {
				logger.Warn("nal: bad SPS", "err", err)
			}
		case PPS:
			if err := p.parsePPS(body); err != nil {
				logger.Warn("nal: bad PPS", "err", err)
			}
		case CodedSliceIDR, CodedSliceNonIDR:
			slice, err := p.createSlice(body, header)
			if err != nil {
				logger.Warn("nal: bad slice", "err", err)
			} else {
				slice.Offset = pos
				slice.Size = length - 1
				slices = append(slices, slice)
			}
		default:
			logger.Error("nal: unrecognised NAL type", "type", int(header.Type))
		}

		if !hasNext {
			break
		}
		pos = nextPos
	}

	return slices
}

func (p *Parser) parseSPS(body []byte) error {
	r := NewBitReader(body)
	var sps SPS

	sps.ProfileIDC = ProfileIDC(r.Bits(8))
	r.Skip(4) // constraint_set flags + reserved
	r.Skip(4)
	sps.LevelIDC = int(r.Bits(8))
	sps.ID = int(r.GolombUnsigned31())

	if sps.ProfileIDC >= 100 {
		sps.ChromaFormatIDC = ChromaFormatIDC(r.GolombUnsigned31())
		if sps.ChromaFormatIDC > Chroma444 {
			return errors.NewRuntimeError(errors.KindBadParse, "nal.parseSPS", fmt.Errorf("invalid chroma format %d", sps.ChromaFormatIDC))
		}
		if sps.ChromaFormatIDC == Chroma444 {
			r.Bit() // residual_colour_transform_flag
		}
		sps.BitDepthLuma = int(r.GolombUnsigned()) + 8
		sps.BitDepthChroma = int(r.GolombUnsigned()) + 8
		r.Bit() // qpprime_y_zero_transform_bypass_flag
		if r.Bit() != 0 {
			for i := 0; i < 8; i++ {
				decodeScalingList(r)
			}
		}
	} else {
		sps.ChromaFormatIDC = Chroma420
		sps.BitDepthLuma = 8
		sps.BitDepthChroma = 8
	}

	sps.Log2MaxFrameNum = int(r.GolombUnsigned()) + 4
	sps.MaxFrameNum = 1 << uint(sps.Log2MaxFrameNum)
	sps.POCType = POCType(r.GolombUnsigned31())
	switch sps.POCType {
	case POCType0:
		sps.Log2MaxPOCLsb = int(r.GolombUnsigned()) + 4
	case POCType1:
		sps.DeltaPICOrderAlwaysZero = r.Bit() != 0
		sps.OffsetForNonRefPic = r.GolombSigned()
		sps.OffsetForTopToBottom = r.GolombSigned()
		sps.POCCycleLength = int(r.GolombUnsigned())
		sps.OffsetForRefFrame = make([]int32, sps.POCCycleLength)
		for i := 0; i < sps.POCCycleLength; i++ {
			sps.OffsetForRefFrame[i] = r.GolombSigned()
		}
	}

	sps.RefFrameCount = int(r.GolombUnsigned31())
	sps.GapsInFrameNumAllowed = r.Bit() != 0
	sps.MBWidth = int(r.GolombUnsigned()) + 1
	sps.MBHeight = int(r.GolombUnsigned()) + 1
	sps.FrameMBSOnly = r.Bit() != 0
	if !sps.FrameMBSOnly {
		sps.MBAff = r.Bit() != 0
	}
	sps.Direct8x8Inference = r.Bit() != 0

	if r.Bit() != 0 { // frame_cropping_flag
		sps.CropLeft = int(r.GolombUnsigned())
		sps.CropRight = int(r.GolombUnsigned())
		sps.CropTop = int(r.GolombUnsigned())
		sps.CropBottom = int(r.GolombUnsigned())
	}

	sps.Width = sps.MBWidth * 16
	sps.Height = sps.MBHeight * 16

	if r.Bit() != 0 { // vui_parameters_present_flag
		if err := parseVUI(r); err != nil {
			return err
		}
	}

	if err := checkTrailingBits(r); err != nil {
		return err
	}

	p.sps = sps
	return nil
}

func decodeScalingList(r *BitReader) {
	if r.Bit() == 0 {
		return
	}
	next, last := 8, 8
	for i := 0; i < 16; i++ {
		if next != 0 {
			delta := r.GolombSigned()
			next = int((int32(last) + delta) & 0xff)
		}
		if i == 0 && next == 0 {
			break
		}
		if next != 0 {
			last = next
		}
	}
}

func parseVUI(r *BitReader) error {
	if r.Bit() != 0 { // aspect_ratio_info_present_flag
		ratioIDC := r.Bits(8)
		if ratioIDC == 255 {
			r.Bits(32) // extended SAR width/height
		}
	}
	if r.Bit() != 0 { // overscan_info_present_flag
		r.Bit()
	}
	if r.Bit() != 0 { // video_signal_type_present_flag
		r.Bits(4)
		if r.Bit() != 0 { // colour_description_present_flag
			r.Bits(24)
		}
	}
	if r.Bit() != 0 { // chroma_loc_info_present_flag
		r.GolombUnsigned()
		r.GolombUnsigned()
	}
	if r.Bit() != 0 { // timing_info_present_flag
		r.Bits(32) // num_units_in_tick
		r.Bits(32) // time_scale
		r.Bit()    // fixed_frame_rate_flag
	}
	if r.Bit() != 0 { // nal_hrd_parameters_present_flag
		skipHRD(r)
	}
	if r.Bit() != 0 { // vcl_hrd_parameters_present_flag
		skipHRD(r)
	}
	r.Bit() // pic_struct_present_flag
	if r.Bit() != 0 { // bitstream_restriction_flag
		r.Bit()
		r.GolombUnsigned()
		r.GolombUnsigned()
		r.GolombUnsigned()
		r.GolombUnsigned()
		r.GolombUnsigned()
	}
	return nil
}

func skipHRD(r *BitReader) {
	cpbCnt := int(r.GolombUnsigned()) + 1
	r.Bits(4) // bit_rate_scale
	r.Bits(4) // cpb_size_scale
	for i := 0; i < cpbCnt; i++ {
		r.GolombUnsigned()
		r.GolombUnsigned()
		r.Bit()
	}
	r.Bits(5) // initial_cpb_removal_delay_length_minus1
	r.Bits(5) // cpb_removal_delay_length_minus1
	r.Bits(5) // dpb_output_delay_length_minus1
	r.Bits(5) // time_offset_length
}

func (p *Parser) parsePPS(body []byte) error {
	r := NewBitReader(body)
	var pps PPS

	pps.ID = int(r.GolombUnsigned())
	pps.SPSID = int(r.GolombUnsigned31())
	pps.CABAC = r.Bit() != 0
	pps.PicOrderPresent = r.Bit() != 0
	pps.SliceGroupCount = int(r.GolombUnsigned()) + 1
	if pps.SliceGroupCount > 1 {
		r.GolombUnsigned() // slice_group_map_type
		logger.Warn("nal: slice group parsing unsupported")
	}
	pps.RefCount[0] = int(r.GolombUnsigned()) + 1
	pps.RefCount[1] = int(r.GolombUnsigned()) + 1
	pps.WeightedPred = r.Bit() != 0
	pps.WeightedBipredIDC = int(r.Bits(2))
	pps.InitQP = int(r.GolombSigned()) + 26
	pps.InitQS = int(r.GolombSigned()) + 26
	pps.ChromaQPIndexOffset[0] = r.GolombSigned()
	pps.DeblockingFilterParamsPresent = r.Bit() != 0
	pps.ConstrainedIntraPred = r.Bit() != 0
	pps.RedundantPicCntPresent = r.Bit() != 0

	if r.MoreRBSPData() { // optional PPS extension (transform_8x8_mode etc.)
		pps.Transform8x8Mode = r.Bit() != 0
		if r.Bit() != 0 {
			logger.Warn("nal: PPS scaling matrix present, not decoded")
		}
		pps.ChromaQPIndexOffset[1] = r.GolombSigned()
	} else {
		pps.ChromaQPIndexOffset[1] = pps.ChromaQPIndexOffset[0]
	}

	if err := checkTrailingBits(r); err != nil {
		return err
	}

	p.pps = pps
	return nil
}

// checkTrailingBits validates RBSP trailing bits: a stop bit of 1, zero
// padding to the byte boundary, then exactly 16 trailing zero bits.
func checkTrailingBits(r *BitReader) error {
	if r.Bit() == 0 {
		return errors.NewRuntimeError(errors.KindBadParse, "nal.checkTrailingBits", fmt.Errorf("missing stop bit"))
	}
	remainder := 8 - (r.Pos() % 8)
	if remainder != 8 {
		if r.Bits(remainder) != 0 {
			return errors.NewRuntimeError(errors.KindBadParse, "nal.checkTrailingBits", fmt.Errorf("non-zero padding bits"))
		}
	}
	if r.Len()-r.Pos() != 16 {
		return errors.NewRuntimeError(errors.KindBadParse, "nal.checkTrailingBits", fmt.Errorf("missing trailing zero word"))
	}
	if r.Bits(16) != 0 {
		return errors.NewRuntimeError(errors.KindBadParse, "nal.checkTrailingBits", fmt.Errorf("non-zero trailing word"))
	}
	return nil
}

func (p *Parser) createSlice(body []byte, header NALHeader) (Slice, error) {
	r := NewBitReader(body)
	var s Slice
	s.Type = header.Type
	s.RefIDC = header.RefIDC

	r.GolombUnsigned() // first_mb_in_slice
	s.SliceType = SliceType(r.GolombUnsigned31() % 5)
	s.KeyFrame = s.Type == CodedSliceIDR

	ppsID := int(r.GolombUnsigned())
	if p.pps.ID != ppsID {
		return Slice{}, errors.NewRuntimeError(errors.KindBadParse, "nal.createSlice", fmt.Errorf("unknown PPS id %d", ppsID))
	}
	s.PPS = &p.pps
	s.SPS = &p.sps

	s.FrameNumber = int(r.Bits(p.sps.Log2MaxFrameNum))

	if !p.sps.FrameMBSOnly {
		s.FieldPicFlag = r.Bit() != 0
		if s.FieldPicFlag {
			s.BottomFieldFlag = r.Bit() != 0
		}
	}

	if s.Type == CodedSliceIDR {
		s.IDRPicID = int(r.GolombUnsigned())
		s.PrevRefFrameNum = 0
		p.prevRefFrame = s.FrameNumber
	} else {
		s.PrevRefFrameNum = p.prevRefFrame
		if s.RefIDC > 0 {
			p.prevRefFrame = s.FrameNumber
		}
	}

	switch p.sps.POCType {
	case POCType0:
		s.PicOrderCntLsb = int(r.Bits(p.sps.Log2MaxPOCLsb))
		if p.pps.PicOrderPresent && !s.FieldPicFlag {
			s.DeltaPicOrderCntBottom = r.GolombSigned()
		}
	case POCType1:
		if !p.sps.DeltaPICOrderAlwaysZero {
			s.DeltaPicOrderCnt[0] = r.GolombSigned()
			if p.pps.PicOrderPresent && !s.FieldPicFlag {
				s.DeltaPicOrderCnt[1] = r.GolombSigned()
			}
		}
	}

	if p.pps.RedundantPicCntPresent {
		s.RedundantPicCnt = int(r.GolombUnsigned())
	}

	if s.SliceType == SlicePType || s.SliceType == SliceSPType {
		s.NumRefIdxActiveOverride = r.Bit() != 0
		if s.NumRefIdxActiveOverride {
			s.NumRefIdx10ActiveMinus1 = int(r.GolombUnsigned())
		}
	}

	if s.SliceType != SliceIType && s.SliceType != SliceSIType {
		if r.Bit() != 0 {
			logger.Error("nal: ref pic list reordering not decoded")
		}
	}

	if p.pps.WeightedPred && (s.SliceType == SlicePType || s.SliceType == SliceSPType) {
		logger.Error("nal: weighted pred table not decoded")
	}

	if s.RefIDC != 0 {
		if s.Type == CodedSliceIDR {
			r.Bit() // no_output_of_prior_pics_flag
			r.Bit() // long_term_reference_flag
		} else if r.Bit() != 0 { // adaptive_ref_pic_marking_mode_flag
			logger.Error("nal: adaptive ref marking not decoded")
		}
	}

	if p.sps.MaxFrameNum > 0 {
		s.PicNum = s.FrameNumber % p.sps.MaxFrameNum
	}

	return s, nil
}

// GetNALType returns the type of the NAL unit assumed to start at byte 4 of
// data (the NvPipe-style convention where the 5th byte is the NAL header of
// the first, and usually only, unit in the buffer).
func GetNALType(data []byte) NALType {
	if len(data) <= 4 {
		return Unspecified0
	}
	return NALType(data[4] & 0x1F)
}

// ValidNAL reports whether data begins with the 4-byte Annex-B start code.
func ValidNAL(data []byte) bool {
	return len(data) > 4 && data[0] == 0 && data[1] == 0 && data[2] == 0 && data[3] == 1
}

// IsIFrame reports whether data's first NAL unit is an SPS, the convention
// this runtime's encoders use to mark keyframes.
func IsIFrame(data []byte) bool {
	return GetNALType(data) == SPS
}
