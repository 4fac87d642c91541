package camera

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/smazurov/webcamd/internal/encoder"
	"github.com/smazurov/webcamd/internal/events"
	"github.com/smazurov/webcamd/internal/framepool"
	"github.com/smazurov/webcamd/internal/logging"
	"github.com/smazurov/webcamd/internal/metrics"
	"github.com/smazurov/webcamd/internal/video"
	"github.com/smazurov/webcamd/pkg/linuxav/v4l2"
)

// Bridge connects a camera source to the frame pool through the encoder.
// One Bridge instance serves one streaming session: Start when the host
// commits a format, Stop on stream-off or disconnect.
type Bridge struct {
	source Source
	bus    *events.Bus
	met    *metrics.Metrics
	log    *slog.Logger

	pool       *framepool.Pool
	enc        *encoder.Encoder
	session    Session
	formatName string
}

// NewBridge wires a bridge to its camera source. The bus and metrics may
// be nil.
func NewBridge(source Source, bus *events.Bus, met *metrics.Metrics) *Bridge {
	return &Bridge{
		source: source,
		bus:    bus,
		met:    met,
		log:    logging.GetLogger("camera"),
	}
}

// Start spins up the encoder worker and opens a capture session feeding
// it. The pool must already be sized for the committed format.
func (b *Bridge) Start(pool *framepool.Pool, encCfg encoder.Config, camCfg Config) error {
	if b.session != nil {
		return fmt.Errorf("camera: bridge already started")
	}

	enc, err := encoder.New(encCfg, b.onEncoded)
	if err != nil {
		return err
	}

	b.pool = pool
	b.enc = enc
	b.formatName = v4l2.FormatFourCC(encCfg.PixelFormat)
	enc.Start()

	session, err := b.source.Open(camCfg, b.deliver)
	if err != nil {
		enc.Stop()
		b.enc = nil
		b.pool = nil
		return fmt.Errorf("camera: opening session: %w", err)
	}
	b.session = session

	b.log.Info("Capture session started",
		"width", camCfg.Width, "height", camCfg.Height,
		"format", b.formatName, "rotation", camCfg.Rotation)
	return nil
}

// Stop closes the capture session, then drains the encoder so every
// in-flight frame releases its buffers. Safe to call when not started.
func (b *Bridge) Stop() {
	if b.session == nil {
		return
	}
	if err := b.session.Close(); err != nil {
		b.log.Warn("Capture session close failed", "error", err)
	}
	b.session = nil

	b.enc.Stop()
	b.enc = nil
	b.pool = nil
	b.log.Info("Capture session stopped")
}

// deliver runs on the session's delivery goroutine. It must never block:
// when the pool is starved the frame is dropped on the floor.
func (b *Bridge) deliver(f video.SourceFrame) error {
	buf := b.pool.AcquireFree()
	if buf == nil {
		if f.Release != nil {
			f.Release()
		}
		b.dropFrame("no free buffer")
		return ErrFrameRejected
	}
	b.enc.Encode(encoder.Request{Frame: f, Dest: buf})
	return nil
}

// onEncoded runs on the encoder worker.
func (b *Bridge) onEncoded(req encoder.Request, bytesUsed int, ok bool) {
	if req.Frame.Release != nil {
		defer req.Frame.Release()
	}

	if !ok {
		b.pool.Cancel(req.Dest)
		b.dropFrame("encode failed")
		return
	}

	b.pool.Publish(req.Dest, req.Frame.TimestampNs, bytesUsed)
	b.met.FrameEncoded(b.formatName)
	if req.Frame.TimestampNs > 0 {
		latency := time.Now().UnixNano() - req.Frame.TimestampNs
		if latency > 0 {
			b.met.ObserveEncodeSeconds(float64(latency) / float64(time.Second))
		}
	}
}

func (b *Bridge) dropFrame(reason string) {
	b.met.FrameDropped(reason)
	if b.bus != nil {
		b.bus.Publish(events.FrameDroppedEvent{
			Reason:    reason,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
	b.log.Debug("Frame dropped", "reason", reason)
}
