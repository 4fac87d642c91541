//go:build linux

package v4l2

import "unsafe"

// UVC gadget event types. The uvc function driver delivers these through
// the V4L2 event interface, offset into the driver-private range.
const (
	v4l2EventPrivateStart = 0x08000000

	EventConnect    = v4l2EventPrivateStart + 0
	EventDisconnect = v4l2EventPrivateStart + 1
	EventStreamOn   = v4l2EventPrivateStart + 2
	EventStreamOff  = v4l2EventPrivateStart + 3
	EventSetup      = v4l2EventPrivateStart + 4
	EventData       = v4l2EventPrivateStart + 5
)

// UVCIOC_SEND_RESPONSE - _IOW('U', 1, struct uvc_request_data), same on all
// architectures since the payload has fixed layout.
const UVCIOC_SEND_RESPONSE = 0x40405501

// USB control request decoding masks.
const (
	USB_TYPE_MASK  = 0x60
	USB_TYPE_CLASS = 0x20

	USB_RECIP_MASK      = 0x1f
	USB_RECIP_DEVICE    = 0
	USB_RECIP_INTERFACE = 1
)

// UVC class-specific request codes.
const (
	UVC_SET_CUR  = 0x01
	UVC_GET_CUR  = 0x81
	UVC_GET_MIN  = 0x82
	UVC_GET_MAX  = 0x83
	UVC_GET_RES  = 0x84
	UVC_GET_LEN  = 0x85
	UVC_GET_INFO = 0x86
	UVC_GET_DEF  = 0x87
)

// VideoStreaming interface control selectors.
const (
	UVC_VS_PROBE_CONTROL  = 0x01
	UVC_VS_COMMIT_CONTROL = 0x02
)

// RequestDataSize is the size of the data array in uvc_request_data.
const RequestDataSize = 60

// SetupRequest is a decoded usb_ctrlrequest (8 bytes on the wire).
type SetupRequest struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// IsClass reports whether the request targets the UVC class layer.
func (s SetupRequest) IsClass() bool {
	return s.RequestType&USB_TYPE_MASK == USB_TYPE_CLASS
}

// Recipient returns the USB_RECIP_* recipient bits.
func (s SetupRequest) Recipient() uint8 {
	return s.RequestType & USB_RECIP_MASK
}

// ControlSelector returns the control selector from wValue.
func (s SetupRequest) ControlSelector() uint8 {
	return uint8(s.Value >> 8)
}

// InterfaceID returns the target interface from wIndex.
func (s SetupRequest) InterfaceID() uint8 {
	return uint8(s.Index)
}

// RequestData mirrors struct uvc_request_data: the payload exchanged with
// the gadget driver for control transfers. A Length of -1 (errorResponse)
// tells the driver to stall the control endpoint.
type RequestData struct {
	Length int32
	Data   [RequestDataSize]byte
}

var _ [64]byte = [unsafe.Sizeof(RequestData{})]byte{}

// GadgetEvent is a decoded gadget event dequeued from the uvc function node.
type GadgetEvent struct {
	Type uint32

	// Setup is valid when Type == EventSetup.
	Setup SetupRequest

	// Data holds the host payload when Type == EventData.
	Data   [RequestDataSize]byte
	Length int32
}

// decodeGadgetEvent interprets the union of a dequeued v4l2_event as a
// uvc_event. The union layout is identical on all supported architectures:
// usb_ctrlrequest is packed and uvc_request_data has fixed-width members.
func decodeGadgetEvent(ev *v4l2_event) *GadgetEvent {
	ge := &GadgetEvent{Type: ev.typ}
	switch ev.typ {
	case EventSetup:
		ge.Setup = SetupRequest{
			RequestType: ev.u[0],
			Request:     ev.u[1],
			Value:       uint16(ev.u[2]) | uint16(ev.u[3])<<8,
			Index:       uint16(ev.u[4]) | uint16(ev.u[5])<<8,
			Length:      uint16(ev.u[6]) | uint16(ev.u[7])<<8,
		}
	case EventData:
		ge.Length = int32(uint32(ev.u[0]) | uint32(ev.u[1])<<8 | uint32(ev.u[2])<<16 | uint32(ev.u[3])<<24)
		copy(ge.Data[:], ev.u[4:4+RequestDataSize])
	}
	return ge
}
