//go:build linux

package v4l2

import (
	"bytes"
	"testing"
)

func TestDecodeSetupEvent(t *testing.T) {
	// GET_CUR of the probe control on interface 1, as the host would
	// encode it: bmRequestType=0xa1, bRequest=0x81, wValue=0x0100,
	// wIndex=0x0001, wLength=26.
	ev := v4l2_event{typ: EventSetup}
	copy(ev.u[:8], []byte{0xa1, 0x81, 0x00, 0x01, 0x01, 0x00, 0x1a, 0x00})

	ge := decodeGadgetEvent(&ev)
	if ge.Type != EventSetup {
		t.Fatalf("Type = %#x, want EventSetup", ge.Type)
	}

	s := ge.Setup
	if !s.IsClass() {
		t.Error("IsClass() = false, want true")
	}
	if got := s.Recipient(); got != USB_RECIP_INTERFACE {
		t.Errorf("Recipient() = %d, want interface", got)
	}
	if got := s.ControlSelector(); got != UVC_VS_PROBE_CONTROL {
		t.Errorf("ControlSelector() = %#x, want probe", got)
	}
	if got := s.InterfaceID(); got != 1 {
		t.Errorf("InterfaceID() = %d, want 1", got)
	}
	if s.Request != UVC_GET_CUR {
		t.Errorf("Request = %#x, want GET_CUR", s.Request)
	}
	if s.Length != 26 {
		t.Errorf("Length = %d, want 26", s.Length)
	}
}

func TestDecodeDataEvent(t *testing.T) {
	ev := v4l2_event{typ: EventData}
	// length = 26 little-endian, then the payload
	ev.u[0] = 26
	payload := []byte{0x01, 0x00, 0x02, 0x01}
	copy(ev.u[4:], payload)

	ge := decodeGadgetEvent(&ev)
	if ge.Length != 26 {
		t.Errorf("Length = %d, want 26", ge.Length)
	}
	if !bytes.Equal(ge.Data[:4], payload) {
		t.Errorf("Data[:4] = %v, want %v", ge.Data[:4], payload)
	}
}

func TestDecodeStandardRequestNotClass(t *testing.T) {
	// GET_DESCRIPTOR is a standard request; the class check must reject it.
	ev := v4l2_event{typ: EventSetup}
	copy(ev.u[:8], []byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00})

	ge := decodeGadgetEvent(&ev)
	if ge.Setup.IsClass() {
		t.Error("IsClass() = true for a standard request")
	}
}
