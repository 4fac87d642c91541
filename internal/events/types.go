package events

// Event type constants for kelindar/event.
const (
	TypeStreamStarted uint32 = iota + 1
	TypeStreamStopped
	TypeHostConnected
	TypeHostDisconnected
	TypeFrameDropped
	TypeNodeChanged
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StreamStartedEvent is published when the host commits a format and the
// gadget begins transmitting frames.
type StreamStartedEvent struct {
	Format    string  `json:"format" example:"MJPG" doc:"Negotiated pixel format fourcc"`
	Width     uint32  `json:"width" example:"1280" doc:"Negotiated frame width"`
	Height    uint32  `json:"height" example:"720" doc:"Negotiated frame height"`
	FPS       float64 `json:"fps" example:"30" doc:"Negotiated frame rate"`
	Timestamp string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStartedEvent.
func (e StreamStartedEvent) Type() uint32 { return TypeStreamStarted }

// StreamStoppedEvent is published when streaming ends, whether from a
// host stream-off request or a teardown.
type StreamStoppedEvent struct {
	Reason    string `json:"reason" example:"streamoff" doc:"Why the stream stopped"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStoppedEvent.
func (e StreamStoppedEvent) Type() uint32 { return TypeStreamStopped }

// HostConnectedEvent is published when the gadget driver reports a host
// attaching to the function.
type HostConnectedEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Gadget video node"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for HostConnectedEvent.
func (e HostConnectedEvent) Type() uint32 { return TypeHostConnected }

// HostDisconnectedEvent is published when the USB host detaches.
type HostDisconnectedEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Gadget video node"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for HostDisconnectedEvent.
func (e HostDisconnectedEvent) Type() uint32 { return TypeHostDisconnected }

// FrameDroppedEvent is published when a camera frame cannot reach the
// host, for example on buffer starvation or an encode failure.
type FrameDroppedEvent struct {
	Reason    string `json:"reason" example:"no free buffer" doc:"Why the frame was dropped"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameDroppedEvent.
func (e FrameDroppedEvent) Type() uint32 { return TypeFrameDropped }

// NodeChangedEvent is published when the gadget video node appears or
// disappears from /dev, as seen by the filesystem watcher.
type NodeChangedEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Gadget video node"`
	Present    bool   `json:"present" example:"false" doc:"Whether the node currently exists"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for NodeChangedEvent.
func (e NodeChangedEvent) Type() uint32 { return TypeNodeChanged }
