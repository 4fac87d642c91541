//go:build linux

package v4l2

// DeviceInfo contains information about a V4L2 device node.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	Driver     string
	Caps       uint32
}

// FormatInfo contains information about a supported pixel format.
type FormatInfo struct {
	PixelFormat uint32
	FormatName  string
	Emulated    bool
}

// Resolution represents a supported video resolution.
type Resolution struct {
	Width  uint32
	Height uint32
}

// Framerate represents a supported framerate as a fraction.
type Framerate struct {
	Numerator   uint32
	Denominator uint32
}

// FPS returns the framerate as frames per second.
func (f Framerate) FPS() float64 {
	if f.Numerator == 0 {
		return 0
	}
	return float64(f.Denominator) / float64(f.Numerator)
}

// Format describes the active pixel format on a device.
type Format struct {
	Width       uint32
	Height      uint32
	PixelFormat uint32
	SizeImage   uint32
}

// Capability flags.
const (
	V4L2_CAP_VIDEO_CAPTURE = 0x00000001
	V4L2_CAP_VIDEO_OUTPUT  = 0x00000002
	V4L2_CAP_STREAMING     = 0x04000000
	V4L2_CAP_DEVICE_CAPS   = 0x80000000
)

// Format flags.
const (
	V4L2_FMT_FLAG_EMULATED = 0x0002
)

// Common pixel formats.
const (
	V4L2_PIX_FMT_YUYV   = 0x56595559 // 'YUYV'
	V4L2_PIX_FMT_MJPEG  = 0x47504A4D // 'MJPG'
	V4L2_PIX_FMT_NV12   = 0x3231564E // 'NV12'
	V4L2_PIX_FMT_YUV420 = 0x32315559 // 'YU12'
)

// Frame size types.
const (
	V4L2_FRMSIZE_TYPE_DISCRETE   = 1
	V4L2_FRMSIZE_TYPE_CONTINUOUS = 2
	V4L2_FRMSIZE_TYPE_STEPWISE   = 3
)

// Frame interval types.
const (
	V4L2_FRMIVAL_TYPE_DISCRETE   = 1
	V4L2_FRMIVAL_TYPE_CONTINUOUS = 2
	V4L2_FRMIVAL_TYPE_STEPWISE   = 3
)

// Buffer types.
const (
	V4L2_BUF_TYPE_VIDEO_CAPTURE = 1
	V4L2_BUF_TYPE_VIDEO_OUTPUT  = 2
)

// Memory types.
const (
	V4L2_MEMORY_MMAP = 1
)

// Field orders.
const (
	V4L2_FIELD_NONE = 1
)

// Colorspaces.
const (
	V4L2_COLORSPACE_SRGB = 8
)
