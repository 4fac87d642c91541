// Package video holds the frame and format types shared between the
// camera-facing and gadget-facing halves of the streaming pipeline.
package video

// Layout identifies how pixel data is arranged in a SourceFrame.
type Layout int

// Source frame layouts.
const (
	// LayoutRGBA is 8-bit interleaved RGBA with a row stride.
	LayoutRGBA Layout = iota
	// LayoutYUV420 is 8-bit 4:2:0 YUV in three planes. A UVPixelStride of
	// 2 denotes semi-planar (interleaved chroma) data, 1 denotes planar.
	LayoutYUV420
)

// SourceFrame is one frame delivered by a camera session. Plane slices
// reference memory owned by the session and stay valid until the pipeline
// reports the frame as consumed, after which they must not be touched.
type SourceFrame struct {
	Width       int
	Height      int
	TimestampNs int64
	Layout      Layout

	// Rotation is the clockwise correction to apply before output.
	// Only 0 and 180 are supported.
	Rotation int

	// Release returns the plane memory to the session once the pipeline
	// has consumed the frame. May be nil.
	Release func()

	// RGBA layout.
	RGBA       []byte
	RGBAStride int

	// YUV420 layout.
	Y             []byte
	U             []byte
	V             []byte
	YStride       int
	UVStride      int
	UVPixelStride int
}

// FrameSpec is one advertised frame size with its supported intervals
// in 100ns units, fastest first.
type FrameSpec struct {
	Width     uint32
	Height    uint32
	Intervals []uint32
}

// FormatSpec is one advertised pixel format with its frame sizes, ordered
// as exposed in the USB descriptors (1-indexed on the wire).
type FormatSpec struct {
	FourCC uint32
	Frames []FrameSpec
}
