package service

import (
	"testing"
	"time"

	"github.com/smazurov/webcamd/internal/api"
	"github.com/smazurov/webcamd/internal/camera"
	"github.com/smazurov/webcamd/internal/events"
	"github.com/smazurov/webcamd/internal/logging"
)

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewRequiresSource(t *testing.T) {
	if _, err := New(Options{}, events.New(), nil); err == nil {
		t.Fatal("New accepted options without a camera source")
	}
}

func TestStatusTracksBusEvents(t *testing.T) {
	bus := events.New()
	s := &Service{
		opts:   Options{Source: camera.TestPattern{}},
		bus:    bus,
		log:    logging.GetLogger("service"),
		status: api.Status{Device: "/dev/video0"},
	}
	s.mu.Lock()
	s.subscribeStatus()
	s.mu.Unlock()

	bus.Publish(events.HostConnectedEvent{DevicePath: "/dev/video0"})
	waitFor(t, func() bool { return s.Status().HostConnected }, "host connected")

	bus.Publish(events.StreamStartedEvent{Format: "YUYV", Width: 1280, Height: 720, FPS: 30})
	waitFor(t, func() bool {
		st := s.Status()
		return st.Streaming && st.Format == "YUYV" && st.Width == 1280 && st.FPS == 30
	}, "stream started")

	bus.Publish(events.FrameDroppedEvent{Reason: "no free buffer"})
	bus.Publish(events.FrameDroppedEvent{Reason: "encode failed"})
	waitFor(t, func() bool { return s.Status().FramesDropped == 2 }, "two dropped frames")

	bus.Publish(events.StreamStoppedEvent{Reason: "streamoff"})
	waitFor(t, func() bool {
		st := s.Status()
		return !st.Streaming && st.Format == "" && st.Width == 0
	}, "stream stopped")

	bus.Publish(events.HostDisconnectedEvent{DevicePath: "/dev/video0"})
	waitFor(t, func() bool { return !s.Status().HostConnected }, "host disconnected")

	if got := s.Status().Device; got != "/dev/video0" {
		t.Errorf("Device = %q, want /dev/video0", got)
	}
}
