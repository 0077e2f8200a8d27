package nal

// NALHeader is the one-byte NAL unit header: forbidden_zero_bit, ref_idc,
// and the 5-bit unit type.
type NALHeader struct {
	Forbidden bool
	RefIDC    uint8
	Type      NALType
}

func extractNALHeader(b byte) NALHeader {
	return NALHeader{
		Forbidden: b&0x80 != 0,
		RefIDC:    (b >> 5) & 0x03,
		Type:      NALType(b & 0x1F),
	}
}

// NALType enumerates H.264 Network Abstraction Layer unit types.
type NALType int

const (
	Unspecified0 NALType = iota
	CodedSliceNonIDR
	CodedSlicePartA
	CodedSlicePartB
	CodedSlicePartC
	CodedSliceIDR
	SEI
	SPS
	PPS
	AccessDelimiter
	EndOfSeq
	EndOfStream
	FilterData
	SPSExt
	PrefixNALUnit
	SubsetSPS
)

// ProfileIDC identifies the H.264 coding profile.
type ProfileIDC int

const (
	ProfileInvalid ProfileIDC = 0
	ProfileBaseline ProfileIDC = 66
	ProfileMain     ProfileIDC = 77
	ProfileExtended ProfileIDC = 88
	ProfileHigh     ProfileIDC = 100
	ProfileHigh10   ProfileIDC = 110
)

// POCType is the picture-order-count derivation method (sps.pic_order_cnt_type).
type POCType int

const (
	POCType0 POCType = iota
	POCType1
	POCType2
)

// ChromaFormatIDC is the chroma subsampling format.
type ChromaFormatIDC int

const (
	ChromaMonochrome ChromaFormatIDC = iota
	Chroma420
	Chroma422
	Chroma444
)

// SliceType is the coding type of a slice's macroblocks.
type SliceType int

const (
	SlicePType SliceType = iota
	SliceBType
	SliceIType
	SliceSPType
	SliceSIType
)

// SPS is a parsed sequence parameter set. Profile/level, chroma format and
// bit depths, frame-num/POC derivation parameters, reference-frame count,
// dimensions and cropping are populated; VUI timing/HRD flags are read to
// stay position-synchronised
// with the bitstream but not retained beyond validation.
type SPS struct {
	ID                   int
	ProfileIDC           ProfileIDC
	LevelIDC             int
	ChromaFormatIDC      ChromaFormatIDC
	BitDepthLuma         int
	BitDepthChroma       int
	Log2MaxFrameNum      int
	MaxFrameNum          int
	POCType              POCType
	Log2MaxPOCLsb        int
	DeltaPICOrderAlwaysZero bool
	OffsetForNonRefPic   int32
	OffsetForTopToBottom int32
	POCCycleLength       int
	OffsetForRefFrame    []int32
	RefFrameCount        int
	GapsInFrameNumAllowed bool
	MBWidth              int
	MBHeight             int
	FrameMBSOnly         bool
	MBAff                bool
	Direct8x8Inference   bool
	CropLeft, CropRight, CropTop, CropBottom int

	Width, Height int
}

// PPS is a parsed picture parameter set.
type PPS struct {
	ID                 int
	SPSID              int
	CABAC              bool
	PicOrderPresent    bool
	SliceGroupCount    int
	RefCount           [2]int
	WeightedPred       bool
	WeightedBipredIDC  int
	InitQP             int
	InitQS             int
	ChromaQPIndexOffset [2]int32
	DeblockingFilterParamsPresent bool
	ConstrainedIntraPred bool
	RedundantPicCntPresent bool
	Transform8x8Mode   bool
}

// Slice is one parsed coded-slice NAL, referencing the SPS/PPS active at
// the time it was parsed.
type Slice struct {
	Type       NALType
	RefIDC     uint8
	SliceType  SliceType
	KeyFrame   bool
	FrameNumber int
	FieldPicFlag bool
	BottomFieldFlag bool
	IDRPicID   int
	PicOrderCntLsb int
	DeltaPicOrderCntBottom int32
	DeltaPicOrderCnt [2]int32
	RedundantPicCnt int
	NumRefIdxActiveOverride bool
	NumRefIdx10ActiveMinus1 int
	PrevRefFrameNum int
	PicNum     int
	Offset     int
	Size       int

	PPS *PPS
	SPS *SPS
}
