//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"
)

// ErrNotOutputDevice is returned by OpenOutput for nodes that lack the
// video output capability.
var ErrNotOutputDevice = errors.New("v4l2: node is not a video output device")

// ErrNotReady is returned by DequeueBuffer and DequeueEvent when the
// non-blocking device has nothing to deliver.
var ErrNotReady = syscall.EAGAIN

// Device is an open V4L2 video output node, typically the uvc gadget
// function node. The fd is non-blocking; callers multiplex readiness with
// epoll.
type Device struct {
	fd   int
	path string
	info DeviceInfo
}

// OpenOutput opens path and verifies it exposes video output.
func OpenOutput(path string) (*Device, error) {
	fd, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	cap := v4l2_capability{}
	if err := ioctl(fd, VIDIOC_QUERYCAP, unsafe.Pointer(&cap)); err != nil {
		close(fd)
		return nil, fmt.Errorf("failed to query capabilities of %s: %w", path, err)
	}

	caps := cap.capabilities
	if caps&V4L2_CAP_DEVICE_CAPS != 0 {
		caps = cap.device_caps
	}
	if caps&V4L2_CAP_VIDEO_OUTPUT == 0 {
		close(fd)
		return nil, fmt.Errorf("%s: %w", path, ErrNotOutputDevice)
	}

	return &Device{
		fd:   fd,
		path: path,
		info: DeviceInfo{
			DevicePath: path,
			DeviceName: cstr(cap.card[:]),
			Driver:     cstr(cap.driver[:]),
			Caps:       caps,
		},
	}, nil
}

// Fd returns the underlying file descriptor for epoll registration.
func (d *Device) Fd() int { return d.fd }

// Path returns the device node path.
func (d *Device) Path() string { return d.path }

// Info returns the capability information captured at open time.
func (d *Device) Info() DeviceInfo { return d.info }

// Close releases the device node.
func (d *Device) Close() error {
	return close(d.fd)
}

// gadgetEventTypes are the driver-private events the uvc function delivers.
var gadgetEventTypes = []uint32{
	EventConnect,
	EventDisconnect,
	EventStreamOn,
	EventStreamOff,
	EventSetup,
	EventData,
}

// SubscribeGadgetEvents subscribes to all uvc gadget event types.
func (d *Device) SubscribeGadgetEvents() error {
	for _, typ := range gadgetEventTypes {
		sub := v4l2_event_subscription{typ: typ}
		if err := ioctl(d.fd, VIDIOC_SUBSCRIBE_EVENT, unsafe.Pointer(&sub)); err != nil {
			return fmt.Errorf("failed to subscribe to event 0x%08x: %w", typ, err)
		}
	}
	return nil
}

// UnsubscribeGadgetEvents reverses SubscribeGadgetEvents.
func (d *Device) UnsubscribeGadgetEvents() error {
	var firstErr error
	for _, typ := range gadgetEventTypes {
		sub := v4l2_event_subscription{typ: typ}
		if err := ioctl(d.fd, VIDIOC_UNSUBSCRIBE_EVENT, unsafe.Pointer(&sub)); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to unsubscribe from event 0x%08x: %w", typ, err)
		}
	}
	return firstErr
}

// DequeueEvent dequeues and decodes one pending gadget event. Returns
// ErrNotReady when no event is queued.
func (d *Device) DequeueEvent() (*GadgetEvent, error) {
	ev := v4l2_event{}
	if err := ioctl(d.fd, VIDIOC_DQEVENT, unsafe.Pointer(&ev)); err != nil {
		if errors.Is(err, syscall.EAGAIN) {
			return nil, ErrNotReady
		}
		return nil, fmt.Errorf("failed to dequeue event: %w", err)
	}
	return decodeGadgetEvent(&ev), nil
}

// SendResponse answers the control transfer the host is waiting on.
func (d *Device) SendResponse(resp *RequestData) error {
	if err := ioctl(d.fd, UVCIOC_SEND_RESPONSE, unsafe.Pointer(resp)); err != nil {
		return fmt.Errorf("failed to send uvc response: %w", err)
	}
	return nil
}

// SetFormat applies f on the output queue and returns the format the
// driver settled on.
func (d *Device) SetFormat(f Format) (Format, error) {
	vf := v4l2_format{typ: V4L2_BUF_TYPE_VIDEO_OUTPUT}
	vf.pix.width = f.Width
	vf.pix.height = f.Height
	vf.pix.pixelformat = f.PixelFormat
	vf.pix.field = V4L2_FIELD_NONE
	vf.pix.sizeimage = f.SizeImage
	vf.pix.colorspace = V4L2_COLORSPACE_SRGB
	if f.PixelFormat == V4L2_PIX_FMT_YUYV {
		vf.pix.bytesperline = f.Width * 2
	}

	if err := ioctl(d.fd, VIDIOC_S_FMT, unsafe.Pointer(&vf)); err != nil {
		return Format{}, fmt.Errorf("failed to set format %s %dx%d: %w",
			FormatFourCC(f.PixelFormat), f.Width, f.Height, err)
	}

	return Format{
		Width:       vf.pix.width,
		Height:      vf.pix.height,
		PixelFormat: vf.pix.pixelformat,
		SizeImage:   vf.pix.sizeimage,
	}, nil
}

// RequestBuffers asks the driver for count mmap buffers on the output
// queue and returns how many were actually allocated. A count of zero
// releases the buffers.
func (d *Device) RequestBuffers(count uint32) (uint32, error) {
	req := v4l2_requestbuffers{
		count:  count,
		typ:    V4L2_BUF_TYPE_VIDEO_OUTPUT,
		memory: V4L2_MEMORY_MMAP,
	}
	if err := ioctl(d.fd, VIDIOC_REQBUFS, unsafe.Pointer(&req)); err != nil {
		return 0, fmt.Errorf("failed to request %d buffers: %w", count, err)
	}
	return req.count, nil
}

// MapBuffer queries buffer index and maps it read-write into the process.
func (d *Device) MapBuffer(index uint32) ([]byte, error) {
	buf := v4l2_buffer{
		index:  index,
		typ:    V4L2_BUF_TYPE_VIDEO_OUTPUT,
		memory: V4L2_MEMORY_MMAP,
	}
	if err := ioctl(d.fd, VIDIOC_QUERYBUF, unsafe.Pointer(&buf)); err != nil {
		return nil, fmt.Errorf("failed to query buffer %d: %w", index, err)
	}

	data, err := syscall.Mmap(d.fd, int64(buf.m), int(buf.length),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap buffer %d: %w", index, err)
	}
	return data, nil
}

// UnmapBuffer releases a mapping returned by MapBuffer.
func (d *Device) UnmapBuffer(data []byte) error {
	return syscall.Munmap(data)
}

// QueueBuffer hands buffer index with bytesUsed valid bytes to the driver.
func (d *Device) QueueBuffer(index, bytesUsed uint32) error {
	buf := v4l2_buffer{
		index:     index,
		typ:       V4L2_BUF_TYPE_VIDEO_OUTPUT,
		memory:    V4L2_MEMORY_MMAP,
		bytesused: bytesUsed,
	}
	if err := ioctl(d.fd, VIDIOC_QBUF, unsafe.Pointer(&buf)); err != nil {
		return fmt.Errorf("failed to queue buffer %d: %w", index, err)
	}
	return nil
}

// DequeueBuffer reclaims a buffer the driver has transmitted. Returns
// ErrNotReady when none is done yet.
func (d *Device) DequeueBuffer() (uint32, error) {
	buf := v4l2_buffer{
		typ:    V4L2_BUF_TYPE_VIDEO_OUTPUT,
		memory: V4L2_MEMORY_MMAP,
	}
	if err := ioctl(d.fd, VIDIOC_DQBUF, unsafe.Pointer(&buf)); err != nil {
		if errors.Is(err, syscall.EAGAIN) {
			return 0, ErrNotReady
		}
		return 0, fmt.Errorf("failed to dequeue buffer: %w", err)
	}
	return buf.index, nil
}

// StreamOn starts the output queue.
func (d *Device) StreamOn() error {
	typ := uint32(V4L2_BUF_TYPE_VIDEO_OUTPUT)
	if err := ioctl(d.fd, VIDIOC_STREAMON, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("failed to start streaming: %w", err)
	}
	return nil
}

// StreamOff stops the output queue and reclaims all queued buffers.
func (d *Device) StreamOff() error {
	typ := uint32(V4L2_BUF_TYPE_VIDEO_OUTPUT)
	if err := ioctl(d.fd, VIDIOC_STREAMOFF, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("failed to stop streaming: %w", err)
	}
	return nil
}
