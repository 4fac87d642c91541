//go:build linux

package v4l2

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"unsafe"
)

// FindOutputNode scans /sys/class/video4linux for the first node that
// exposes video output, skipping paths listed in ignored. The uvc gadget
// function registers exactly one such node when bound.
func FindOutputNode(ignored []string) (*DeviceInfo, error) {
	devices, err := findDevices(V4L2_CAP_VIDEO_OUTPUT, ignored)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no video output node found")
	}
	return &devices[0], nil
}

// FindOutputNodes returns every video output node, skipping ignored paths.
func FindOutputNodes(ignored []string) ([]DeviceInfo, error) {
	return findDevices(V4L2_CAP_VIDEO_OUTPUT, ignored)
}

// FindCaptureNodes returns every video capture node on the system.
func FindCaptureNodes() ([]DeviceInfo, error) {
	return findDevices(V4L2_CAP_VIDEO_CAPTURE, nil)
}

func findDevices(capMask uint32, ignored []string) ([]DeviceInfo, error) {
	entries, err := os.ReadDir("/sys/class/video4linux")
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	var devices []DeviceInfo

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		devicePath := "/dev/" + entry.Name()
		if slices.Contains(ignored, devicePath) {
			continue
		}

		fd, err := open(devicePath)
		if err != nil {
			continue
		}

		cap := v4l2_capability{}
		if err := ioctl(fd, VIDIOC_QUERYCAP, unsafe.Pointer(&cap)); err != nil {
			close(fd)
			continue
		}
		close(fd)

		caps := cap.capabilities
		if caps&V4L2_CAP_DEVICE_CAPS != 0 {
			caps = cap.device_caps
		}
		if caps&capMask == 0 {
			continue
		}

		devices = append(devices, DeviceInfo{
			DevicePath: devicePath,
			DeviceName: cstr(cap.card[:]),
			Driver:     cstr(cap.driver[:]),
			Caps:       caps,
		})
	}

	return devices, nil
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
