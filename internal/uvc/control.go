// Package uvc implements the device side of the USB Video Class
// streaming protocol on top of the kernel's uvc gadget function: control
// request handling, probe/commit format negotiation, and the streaming
// state machine that moves frames from the pool to the host.
package uvc

import (
	"encoding/binary"

	"github.com/smazurov/webcamd/internal/video"
)

// intervalsPerSecond converts between UVC frame intervals (100ns units)
// and frames per second.
const intervalsPerSecond = 10_000_000

// streamingControlSize is the wire size of uvc_streaming_control.
const streamingControlSize = 26

// defaultMaxPayloadSize is the isochronous payload advertised to the
// host when the config does not override it.
const defaultMaxPayloadSize = 3072

// legacyControlLength is the control length some host stacks send for
// SET_CUR; answering with it keeps them happy.
const legacyControlLength = 48

// StreamingControl mirrors uvc_streaming_control, the payload of the
// probe and commit VideoStreaming controls. All fields are little-endian
// on the wire.
type StreamingControl struct {
	Hint                   uint16
	FormatIndex            uint8
	FrameIndex             uint8
	FrameInterval          uint32
	KeyFrameRate           uint16
	PFrameRate             uint16
	CompQuality            uint16
	CompWindowSize         uint16
	Delay                  uint16
	MaxVideoFrameSize      uint32
	MaxPayloadTransferSize uint32
}

func (c *StreamingControl) marshal(dst []byte) {
	le := binary.LittleEndian
	le.PutUint16(dst[0:], c.Hint)
	dst[2] = c.FormatIndex
	dst[3] = c.FrameIndex
	le.PutUint32(dst[4:], c.FrameInterval)
	le.PutUint16(dst[8:], c.KeyFrameRate)
	le.PutUint16(dst[10:], c.PFrameRate)
	le.PutUint16(dst[12:], c.CompQuality)
	le.PutUint16(dst[14:], c.CompWindowSize)
	le.PutUint16(dst[16:], c.Delay)
	le.PutUint32(dst[18:], c.MaxVideoFrameSize)
	le.PutUint32(dst[22:], c.MaxPayloadTransferSize)
}

func unmarshalStreamingControl(src []byte) StreamingControl {
	le := binary.LittleEndian
	return StreamingControl{
		Hint:                   le.Uint16(src[0:]),
		FormatIndex:            src[2],
		FrameIndex:             src[3],
		FrameInterval:          le.Uint32(src[4:]),
		KeyFrameRate:           le.Uint16(src[8:]),
		PFrameRate:             le.Uint16(src[10:]),
		CompQuality:            le.Uint16(src[12:]),
		CompWindowSize:         le.Uint16(src[14:]),
		Delay:                  le.Uint16(src[16:]),
		MaxVideoFrameSize:      le.Uint32(src[18:]),
		MaxPayloadTransferSize: le.Uint32(src[22:]),
	}
}

// FPS returns the frame rate the control's interval encodes.
func (c *StreamingControl) FPS() float64 {
	if c.FrameInterval == 0 {
		return 0
	}
	return float64(intervalsPerSecond) / float64(c.FrameInterval)
}

// clampIndex confines a 1-indexed descriptor index to the table. Hosts
// may request indices past the end; those clamp to the last entry. Zero
// is treated as the first entry so a resolved control never carries an
// index of zero.
func clampIndex(idx uint8, n int) int {
	i := int(idx)
	if i < 1 {
		i = 1
	}
	if i > n {
		i = n
	}
	return i
}

// snapInterval picks the first advertised interval at least as large as
// the requested one, falling back to the largest (slowest) on overshoot.
// Intervals are advertised fastest first, so a request of zero resolves
// to the fastest rate.
func snapInterval(intervals []uint32, requested uint32) uint32 {
	for _, iv := range intervals {
		if iv >= requested {
			return iv
		}
	}
	return intervals[len(intervals)-1]
}

// resolve normalizes a requested (format, frame, interval) triplet
// against the advertised descriptor table and fills ctrl with the
// resulting selection.
func resolve(formats []video.FormatSpec, ctrl *StreamingControl, formatIndex, frameIndex uint8, interval uint32, maxPayload uint32) {
	fi := clampIndex(formatIndex, len(formats))
	format := formats[fi-1]

	ri := clampIndex(frameIndex, len(format.Frames))
	frame := format.Frames[ri-1]

	*ctrl = StreamingControl{
		Hint:                   1,
		FormatIndex:            uint8(fi),
		FrameIndex:             uint8(ri),
		FrameInterval:          snapInterval(frame.Intervals, interval),
		MaxVideoFrameSize:      frame.Width * frame.Height * 2,
		MaxPayloadTransferSize: maxPayload,
	}
}

// selection looks up the format and frame a resolved control refers to.
func selection(formats []video.FormatSpec, ctrl *StreamingControl) (video.FormatSpec, video.FrameSpec) {
	fi := clampIndex(ctrl.FormatIndex, len(formats))
	format := formats[fi-1]
	ri := clampIndex(ctrl.FrameIndex, len(format.Frames))
	return format, format.Frames[ri-1]
}
