//go:build linux

package v4l2

import (
	"errors"
	"syscall"
	"unsafe"
)

// Formats enumerates the pixel formats the output queue supports.
func (d *Device) Formats() ([]FormatInfo, error) {
	var formats []FormatInfo

	for i := uint32(0); ; i++ {
		fmtdesc := v4l2_fmtdesc{
			index: i,
			typ:   V4L2_BUF_TYPE_VIDEO_OUTPUT,
		}

		if err := ioctl(d.fd, VIDIOC_ENUM_FMT, unsafe.Pointer(&fmtdesc)); err != nil {
			if errors.Is(err, syscall.EINVAL) {
				break // End of enumeration
			}
			return nil, err
		}

		formats = append(formats, FormatInfo{
			PixelFormat: fmtdesc.pixelformat,
			FormatName:  cstr(fmtdesc.description[:]),
			Emulated:    fmtdesc.flags&V4L2_FMT_FLAG_EMULATED != 0,
		})
	}

	return formats, nil
}

// Resolutions enumerates supported frame sizes for pixelFormat. Stepwise
// and continuous ranges are reduced to their minimum size.
func (d *Device) Resolutions(pixelFormat uint32) ([]Resolution, error) {
	var resolutions []Resolution

	for i := uint32(0); ; i++ {
		frmsize := v4l2_frmsizeenum{
			index:        i,
			pixel_format: pixelFormat,
		}

		if err := ioctl(d.fd, VIDIOC_ENUM_FRAMESIZES, unsafe.Pointer(&frmsize)); err != nil {
			if errors.Is(err, syscall.EINVAL) {
				break // End of enumeration
			}
			if errors.Is(err, syscall.ENOTTY) {
				return []Resolution{}, nil
			}
			return nil, err
		}

		switch frmsize.typ {
		case V4L2_FRMSIZE_TYPE_DISCRETE:
			resolutions = append(resolutions, Resolution{
				Width:  frmsize.discrete.width,
				Height: frmsize.discrete.height,
			})
		case V4L2_FRMSIZE_TYPE_CONTINUOUS, V4L2_FRMSIZE_TYPE_STEPWISE:
			stepwise := (*v4l2_frmsize_stepwise)(unsafe.Pointer(&frmsize.discrete))
			resolutions = append(resolutions, Resolution{
				Width:  stepwise.min_width,
				Height: stepwise.min_height,
			})
			return resolutions, nil // Only one stepwise entry
		}
	}

	return resolutions, nil
}

// Framerates enumerates supported frame intervals for a format and size.
// Stepwise and continuous ranges are reduced to their minimum interval.
func (d *Device) Framerates(pixelFormat, width, height uint32) ([]Framerate, error) {
	var framerates []Framerate

	for i := uint32(0); ; i++ {
		frmival := v4l2_frmivalenum{
			index:        i,
			pixel_format: pixelFormat,
			width:        width,
			height:       height,
		}

		if err := ioctl(d.fd, VIDIOC_ENUM_FRAMEINTERVALS, unsafe.Pointer(&frmival)); err != nil {
			if errors.Is(err, syscall.EINVAL) {
				break // End of enumeration
			}
			if errors.Is(err, syscall.ENOTTY) {
				return []Framerate{}, nil
			}
			return nil, err
		}

		switch frmival.typ {
		case V4L2_FRMIVAL_TYPE_DISCRETE:
			framerates = append(framerates, Framerate{
				Numerator:   frmival.discrete.numerator,
				Denominator: frmival.discrete.denominator,
			})
		case V4L2_FRMIVAL_TYPE_CONTINUOUS, V4L2_FRMIVAL_TYPE_STEPWISE:
			stepwise := (*v4l2_frmival_stepwise)(unsafe.Pointer(&frmival.discrete))
			framerates = append(framerates, Framerate{
				Numerator:   stepwise.min.numerator,
				Denominator: stepwise.min.denominator,
			})
			return framerates, nil // Only one stepwise entry
		}
	}

	return framerates, nil
}

// FormatFourCC converts a 4-byte pixel format to a human-readable string.
func FormatFourCC(format uint32) string {
	b := make([]byte, 4)
	b[0] = byte(format & 0xFF)
	b[1] = byte((format >> 8) & 0xFF)
	b[2] = byte((format >> 16) & 0xFF)
	b[3] = byte((format >> 24) & 0xFF)
	return string(b)
}

// FourCC builds a pixel format value from its four-character code.
func FourCC(code string) uint32 {
	if len(code) != 4 {
		return 0
	}
	return uint32(code[0]) | uint32(code[1])<<8 | uint32(code[2])<<16 | uint32(code[3])<<24
}
