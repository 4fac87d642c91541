package uvc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/webcamd/internal/camera"
	"github.com/smazurov/webcamd/internal/encoder"
	"github.com/smazurov/webcamd/internal/events"
	"github.com/smazurov/webcamd/internal/framepool"
	"github.com/smazurov/webcamd/internal/logging"
	"github.com/smazurov/webcamd/internal/metrics"
	"github.com/smazurov/webcamd/internal/video"
	"github.com/smazurov/webcamd/pkg/linuxav/v4l2"
)

// defaultBufferCount is one delivery buffer plus three fill buffers.
const defaultBufferCount = 4

// GadgetNode is the slice of the V4L2 output device the state machine
// needs. Implemented by *v4l2.Device; faked in tests.
type GadgetNode interface {
	SendResponse(resp *v4l2.RequestData) error
	SetFormat(f v4l2.Format) (v4l2.Format, error)
	RequestBuffers(count uint32) (uint32, error)
	MapBuffer(index uint32) ([]byte, error)
	UnmapBuffer(data []byte) error
	QueueBuffer(index, bytesUsed uint32) error
	DequeueBuffer() (uint32, error)
	StreamOn() error
	StreamOff() error
}

// FrameProducer feeds encoded frames into the pool while streaming.
// Implemented by *camera.Bridge.
type FrameProducer interface {
	Start(pool *framepool.Pool, encCfg encoder.Config, camCfg camera.Config) error
	Stop()
}

// Config describes the formats the gadget advertises and how streaming
// sessions are provisioned.
type Config struct {
	// Formats mirrors the USB descriptors bound into configfs, in
	// descriptor order. The engine replaces it with the node's own
	// enumeration when the node supports one, so it mainly covers
	// nodes that enumerate nothing. Must not be empty and every frame
	// needs at least one interval.
	Formats []video.FormatSpec

	// BufferCount is the number of gadget buffers to request.
	BufferCount int

	// MaxPayloadSize overrides the advertised isochronous payload size.
	MaxPayloadSize uint32

	// JPEGQuality applies to MJPEG sessions.
	JPEGQuality int

	// Rotation is the orientation correction for the camera, 0 or 180.
	Rotation int
}

func (c *Config) validate() error {
	if len(c.Formats) == 0 {
		return errors.New("uvc: no formats configured")
	}
	for _, f := range c.Formats {
		if len(f.Frames) == 0 {
			return fmt.Errorf("uvc: format %s has no frames", v4l2.FormatFourCC(f.FourCC))
		}
		for _, fr := range f.Frames {
			if fr.Width == 0 || fr.Height == 0 || len(fr.Intervals) == 0 {
				return fmt.Errorf("uvc: format %s has an invalid %dx%d frame",
					v4l2.FormatFourCC(f.FourCC), fr.Width, fr.Height)
			}
		}
	}
	if c.BufferCount == 0 {
		c.BufferCount = defaultBufferCount
	}
	if c.BufferCount < 2 {
		return fmt.Errorf("uvc: buffer count %d too small", c.BufferCount)
	}
	if c.MaxPayloadSize == 0 {
		c.MaxPayloadSize = defaultMaxPayloadSize
	}
	return nil
}

// Device is the protocol state machine for one gadget node. Event
// handlers run on the engine's event loop goroutine; only Interrupt and
// Streaming are safe from other goroutines.
type Device struct {
	node     GadgetNode
	path     string
	cfg      Config
	producer FrameProducer
	bus      *events.Bus
	met      *metrics.Metrics
	log      *slog.Logger

	probe      StreamingControl
	commit     StreamingControl
	committed  bool
	dataTarget uint8 // selector with an armed data phase, 0 = none

	mu           sync.Mutex
	pool         *framepool.Pool
	streaming    bool
	disconnected bool
}

func newDevice(node GadgetNode, path string, cfg Config, producer FrameProducer, bus *events.Bus, met *metrics.Metrics) *Device {
	d := &Device{
		node:     node,
		path:     path,
		cfg:      cfg,
		producer: producer,
		bus:      bus,
		met:      met,
		log:      logging.GetLogger("uvc"),
	}
	resolve(cfg.Formats, &d.probe, 1, 1, 0, cfg.MaxPayloadSize)
	resolve(cfg.Formats, &d.commit, 1, 1, 0, cfg.MaxPayloadSize)
	return d
}

// Streaming reports whether the output queue is live.
func (d *Device) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streaming
}

// Disconnected reports whether the host has detached.
func (d *Device) Disconnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnected
}

// Interrupt breaks a transmit path blocked on the frame pool. Called
// from outside the event loop during shutdown. The buffers stay mapped
// until teardownStreaming has joined the producer.
func (d *Device) Interrupt() {
	d.mu.Lock()
	pool := d.pool
	d.mu.Unlock()
	if pool != nil {
		pool.Interrupt()
	}
}

// HandleEvent dispatches one dequeued gadget event.
func (d *Device) HandleEvent(ge *v4l2.GadgetEvent) error {
	switch ge.Type {
	case v4l2.EventConnect:
		d.handleConnect()
	case v4l2.EventDisconnect:
		d.handleDisconnect()
	case v4l2.EventSetup:
		return d.handleSetup(ge.Setup)
	case v4l2.EventData:
		return d.handleData(ge)
	case v4l2.EventStreamOn:
		return d.handleStreamOn()
	case v4l2.EventStreamOff:
		d.teardownStreaming("streamoff")
	default:
		d.log.Debug("Ignoring unknown gadget event", "type", fmt.Sprintf("0x%08x", ge.Type))
	}
	return nil
}

func (d *Device) handleConnect() {
	d.log.Info("Host connected", "device", d.path)
	d.met.SetHostConnected(true)
	d.publish(events.HostConnectedEvent{DevicePath: d.path, Timestamp: timestamp()})
}

func (d *Device) handleDisconnect() {
	d.teardownStreaming("disconnect")
	d.mu.Lock()
	d.disconnected = true
	d.mu.Unlock()

	d.log.Info("Host disconnected", "device", d.path)
	d.met.SetHostConnected(false)
	d.publish(events.HostDisconnectedEvent{DevicePath: d.path, Timestamp: timestamp()})
}

// handleSetup answers the setup phase of a class control transfer. Every
// setup event must be answered, with a stall for anything unsupported,
// or the host's control pipe wedges.
func (d *Device) handleSetup(s v4l2.SetupRequest) error {
	resp := v4l2.RequestData{Length: -1} // stall unless a case says otherwise

	if s.IsClass() && s.Recipient() == v4l2.USB_RECIP_INTERFACE {
		d.met.ControlRequest(requestName(s.Request))
		d.handleClassRequest(s, &resp)
	}

	if err := d.node.SendResponse(&resp); err != nil {
		return fmt.Errorf("answering setup request 0x%02x: %w", s.Request, err)
	}
	return nil
}

func (d *Device) handleClassRequest(s v4l2.SetupRequest, resp *v4l2.RequestData) {
	sel := s.ControlSelector()
	if sel != v4l2.UVC_VS_PROBE_CONTROL && sel != v4l2.UVC_VS_COMMIT_CONTROL {
		d.log.Debug("Stalling request for unsupported selector",
			"selector", sel, "request", requestName(s.Request))
		return
	}

	switch s.Request {
	case v4l2.UVC_SET_CUR:
		// Arm the data phase; the payload arrives as a data event.
		d.dataTarget = sel
		resp.Length = legacyControlLength

	case v4l2.UVC_GET_CUR:
		ctrl := d.probe
		if sel == v4l2.UVC_VS_COMMIT_CONTROL {
			ctrl = d.commit
		}
		ctrl.marshal(resp.Data[:])
		resp.Length = streamingControlSize

	case v4l2.UVC_GET_MIN, v4l2.UVC_GET_DEF:
		var ctrl StreamingControl
		resolve(d.cfg.Formats, &ctrl, 1, 1, 0, d.cfg.MaxPayloadSize)
		ctrl.marshal(resp.Data[:])
		resp.Length = streamingControlSize

	case v4l2.UVC_GET_MAX:
		var ctrl StreamingControl
		resolve(d.cfg.Formats, &ctrl, 255, 255, 255, d.cfg.MaxPayloadSize)
		ctrl.marshal(resp.Data[:])
		resp.Length = streamingControlSize

	case v4l2.UVC_GET_RES:
		// All-zero resolution payload.
		resp.Length = streamingControlSize

	case v4l2.UVC_GET_LEN:
		resp.Data[0] = legacyControlLength
		resp.Data[1] = 0
		resp.Length = 2

	case v4l2.UVC_GET_INFO:
		resp.Data[0] = 0x03 // supports GET and SET
		resp.Length = 1
	}
}

// handleData consumes the data phase of a SET_CUR transfer. A commit
// write also programs the node with the negotiated format; this is the
// point where resolution, format, and frame rate become binding.
func (d *Device) handleData(ge *v4l2.GadgetEvent) error {
	target := d.dataTarget
	d.dataTarget = 0
	if target == 0 {
		d.log.Debug("Dropping data event with no armed control")
		return nil
	}
	if ge.Length < streamingControlSize {
		d.log.Warn("Short control payload", "length", ge.Length)
		return nil
	}

	req := unmarshalStreamingControl(ge.Data[:streamingControlSize])

	var ctrl StreamingControl
	resolve(d.cfg.Formats, &ctrl, req.FormatIndex, req.FrameIndex, req.FrameInterval, d.cfg.MaxPayloadSize)

	if target != v4l2.UVC_VS_COMMIT_CONTROL {
		d.probe = ctrl
		d.log.Debug("Probe control set",
			"format", ctrl.FormatIndex, "frame", ctrl.FrameIndex, "fps", ctrl.FPS())
		return nil
	}

	d.commit = ctrl
	d.committed = true
	d.log.Debug("Commit control set",
		"format", ctrl.FormatIndex, "frame", ctrl.FrameIndex, "fps", ctrl.FPS())
	if err := d.applyFormat(&ctrl); err != nil {
		return fmt.Errorf("applying committed format: %w", err)
	}
	return nil
}

// applyFormat programs the node with the selection a control resolves to.
func (d *Device) applyFormat(ctrl *StreamingControl) error {
	format, frame := selection(d.cfg.Formats, ctrl)
	_, err := d.node.SetFormat(v4l2.Format{
		Width:       frame.Width,
		Height:      frame.Height,
		PixelFormat: format.FourCC,
		SizeImage:   frame.Width * frame.Height * 2,
	})
	return err
}

// handleStreamOn provisions buffers and the camera pipeline for the
// committed format, then starts the output queue. A host that never
// committed gets the default selection.
func (d *Device) handleStreamOn() error {
	if d.Streaming() {
		return nil
	}

	ctrl := d.commit
	format, frame := selection(d.cfg.Formats, &ctrl)

	// Commit already programmed the node. A host that skips the commit
	// phase streams the default selection.
	if !d.committed {
		if err := d.applyFormat(&ctrl); err != nil {
			return err
		}
	}

	count, err := d.node.RequestBuffers(uint32(d.cfg.BufferCount))
	if err != nil {
		return err
	}

	pool, err := framepool.New(d.node, int(count))
	if err != nil {
		d.releaseBuffers()
		return err
	}

	err = d.producer.Start(pool,
		encoder.Config{
			Width:       frame.Width,
			Height:      frame.Height,
			PixelFormat: format.FourCC,
			JPEGQuality: d.cfg.JPEGQuality,
		},
		camera.Config{
			Width:           frame.Width,
			Height:          frame.Height,
			FrameIntervalNs: int64(ctrl.FrameInterval) * 100,
			Rotation:        d.cfg.Rotation,
		})
	if err != nil {
		_ = pool.Close()
		d.releaseBuffers()
		return err
	}

	if err := d.node.StreamOn(); err != nil {
		d.producer.Stop()
		_ = pool.Close()
		d.releaseBuffers()
		return err
	}

	d.mu.Lock()
	d.pool = pool
	d.streaming = true
	d.mu.Unlock()

	// Prime the queue with the first frame; blocks until the camera
	// produces one.
	buf, err := pool.TakeLatestAndSwap()
	if err != nil {
		d.teardownStreaming("prime failed")
		return err
	}
	if err := d.node.QueueBuffer(buf.Index, uint32(buf.BytesUsed)); err != nil {
		d.teardownStreaming("prime failed")
		return err
	}
	d.met.FrameTransmitted()

	d.log.Info("Streaming started",
		"format", v4l2.FormatFourCC(format.FourCC),
		"width", frame.Width, "height", frame.Height, "fps", ctrl.FPS())
	d.met.SetStreaming(true)
	d.publish(events.StreamStartedEvent{
		Format:    v4l2.FormatFourCC(format.FourCC),
		Width:     frame.Width,
		Height:    frame.Height,
		FPS:       ctrl.FPS(),
		Timestamp: timestamp(),
	})
	return nil
}

// handleWriteReady services one transmit-complete notification: reclaim
// the sent buffer and queue the freshest frame. Blocks on the pool until
// the camera delivers one.
func (d *Device) handleWriteReady() error {
	d.mu.Lock()
	pool := d.pool
	streaming := d.streaming
	d.mu.Unlock()
	if !streaming {
		return nil
	}

	if _, err := d.node.DequeueBuffer(); err != nil {
		if errors.Is(err, v4l2.ErrNotReady) {
			return nil
		}
		return err
	}

	buf, err := pool.TakeLatestAndSwap()
	if err != nil {
		// Pool closed underneath us; teardown is in progress.
		return nil
	}
	if err := d.node.QueueBuffer(buf.Index, uint32(buf.BytesUsed)); err != nil {
		return err
	}
	d.met.FrameTransmitted()
	return nil
}

// teardownStreaming unwinds handleStreamOn. Order matters: stop the
// driver first so no buffer is in flight, then the producer so nothing
// publishes into a dying pool, then release the mappings.
func (d *Device) teardownStreaming(reason string) {
	d.mu.Lock()
	if !d.streaming {
		d.mu.Unlock()
		return
	}
	d.streaming = false
	pool := d.pool
	d.pool = nil
	d.mu.Unlock()

	if err := d.node.StreamOff(); err != nil {
		d.log.Warn("Stream off failed", "error", err)
	}
	d.producer.Stop()
	if err := pool.Close(); err != nil {
		d.log.Warn("Buffer unmap failed", "error", err)
	}
	d.releaseBuffers()

	// Negotiation state resets to defaults for the next session.
	resolve(d.cfg.Formats, &d.probe, 1, 1, 0, d.cfg.MaxPayloadSize)
	resolve(d.cfg.Formats, &d.commit, 1, 1, 0, d.cfg.MaxPayloadSize)
	d.committed = false

	d.log.Info("Streaming stopped", "reason", reason)
	d.met.SetStreaming(false)
	d.publish(events.StreamStoppedEvent{Reason: reason, Timestamp: timestamp()})
}

func (d *Device) releaseBuffers() {
	if _, err := d.node.RequestBuffers(0); err != nil {
		d.log.Debug("Releasing gadget buffers failed", "error", err)
	}
}

func (d *Device) publish(ev events.Event) {
	if d.bus != nil {
		d.bus.Publish(ev)
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func requestName(req uint8) string {
	switch req {
	case v4l2.UVC_SET_CUR:
		return "SET_CUR"
	case v4l2.UVC_GET_CUR:
		return "GET_CUR"
	case v4l2.UVC_GET_MIN:
		return "GET_MIN"
	case v4l2.UVC_GET_MAX:
		return "GET_MAX"
	case v4l2.UVC_GET_RES:
		return "GET_RES"
	case v4l2.UVC_GET_LEN:
		return "GET_LEN"
	case v4l2.UVC_GET_INFO:
		return "GET_INFO"
	case v4l2.UVC_GET_DEF:
		return "GET_DEF"
	default:
		return fmt.Sprintf("0x%02x", req)
	}
}
