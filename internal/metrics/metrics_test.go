package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.FrameEncoded("YUYV")
	m.FrameDropped("no free buffer")
	m.FrameTransmitted()
	m.ObserveEncodeSeconds(0.001)
	m.ControlRequest("GET_CUR")
	m.SetStreaming(true)
	m.SetHostConnected(false)

	if m.Handler() == nil {
		t.Fatal("nil metrics Handler() = nil")
	}
}

func TestExposition(t *testing.T) {
	m := New()
	m.FrameEncoded("MJPG")
	m.FrameDropped("encode failed")
	m.FrameTransmitted()
	m.ControlRequest("SET_CUR")
	m.SetStreaming(true)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		`webcamd_frames_encoded_total{format="MJPG"} 1`,
		`webcamd_frames_dropped_total{reason="encode failed"} 1`,
		`webcamd_frames_transmitted_total 1`,
		`webcamd_control_requests_total{request="SET_CUR"} 1`,
		`webcamd_streaming 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
