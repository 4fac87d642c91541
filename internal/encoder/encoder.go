// Package encoder converts camera frames into the negotiated USB stream
// format. Conversion runs on a dedicated worker goroutine so camera and
// gadget event handling never wait on pixel work.
package encoder

import (
	"fmt"
	"log/slog"

	"github.com/smazurov/webcamd/internal/framepool"
	"github.com/smazurov/webcamd/internal/logging"
	"github.com/smazurov/webcamd/internal/video"
	"github.com/smazurov/webcamd/pkg/linuxav/v4l2"
)

// defaultJPEGQuality matches common UVC webcam output well enough while
// keeping frames comfortably inside the gadget buffer.
const defaultJPEGQuality = 80

// Config fixes the output geometry and format for one streaming session.
type Config struct {
	Width       uint32
	Height      uint32
	PixelFormat uint32 // v4l2.V4L2_PIX_FMT_YUYV or v4l2.V4L2_PIX_FMT_MJPEG
	JPEGQuality int
}

// Request pairs one source frame with the gadget buffer it should land in.
type Request struct {
	Frame video.SourceFrame
	Dest  *framepool.Buffer
}

// Done reports the outcome of one request. bytesUsed is the payload
// length written into Dest on success and zero otherwise. The callback
// runs on the worker goroutine; after it returns the source frame memory
// may be reused.
type Done func(req Request, bytesUsed int, ok bool)

// Encoder owns the conversion worker for one streaming session.
type Encoder struct {
	cfg    Config
	onDone Done

	queue   chan Request
	stop    chan struct{}
	drained chan struct{}

	// I420 scratch planes reused across frames.
	y, u, v []byte

	log *slog.Logger
}

// New prepares an encoder for the given session config. Start must be
// called before Encode.
func New(cfg Config, onDone Done) (*Encoder, error) {
	switch cfg.PixelFormat {
	case v4l2.V4L2_PIX_FMT_YUYV, v4l2.V4L2_PIX_FMT_MJPEG:
	default:
		return nil, fmt.Errorf("encoder: unsupported pixel format %s", v4l2.FormatFourCC(cfg.PixelFormat))
	}
	if cfg.Width == 0 || cfg.Height == 0 || cfg.Width%2 != 0 || cfg.Height%2 != 0 {
		return nil, fmt.Errorf("encoder: invalid output size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = defaultJPEGQuality
	}

	w, h := int(cfg.Width), int(cfg.Height)
	return &Encoder{
		cfg:     cfg,
		onDone:  onDone,
		queue:   make(chan Request, 8),
		stop:    make(chan struct{}),
		drained: make(chan struct{}),
		y:       make([]byte, w*h),
		u:       make([]byte, w*h/4),
		v:       make([]byte, w*h/4),
		log:     logging.GetLogger("encoder"),
	}, nil
}

// Start launches the worker goroutine.
func (e *Encoder) Start() {
	go e.run()
}

// Encode queues one frame for conversion. After shutdown begins the
// request fails immediately through the Done callback.
func (e *Encoder) Encode(req Request) {
	select {
	case <-e.stop:
		e.onDone(req, 0, false)
		return
	default:
	}
	select {
	case <-e.stop:
		e.onDone(req, 0, false)
	case e.queue <- req:
	}
}

// Stop shuts the worker down and fails every request still queued, so
// callers can release source frames and pool buffers. Blocks until the
// worker has exited.
func (e *Encoder) Stop() {
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
	<-e.drained

	// A racing Encode may have slipped a request in after the worker
	// drained. Fail it here so no buffer leaks.
	for {
		select {
		case req := <-e.queue:
			e.onDone(req, 0, false)
		default:
			return
		}
	}
}

func (e *Encoder) run() {
	defer close(e.drained)
	for {
		select {
		case <-e.stop:
			for {
				select {
				case req := <-e.queue:
					e.onDone(req, 0, false)
				default:
					return
				}
			}
		case req := <-e.queue:
			n, err := e.encode(req)
			if err != nil {
				e.log.Warn("Frame encode failed", "error", err)
				e.onDone(req, 0, false)
				continue
			}
			e.onDone(req, n, true)
		}
	}
}

// encode converts one frame into req.Dest and returns the payload length.
func (e *Encoder) encode(req Request) (int, error) {
	f := &req.Frame
	if f.Width != int(e.cfg.Width) || f.Height != int(e.cfg.Height) {
		return 0, fmt.Errorf("source %dx%d does not match output %dx%d",
			f.Width, f.Height, e.cfg.Width, e.cfg.Height)
	}

	switch f.Layout {
	case video.LayoutRGBA:
		if err := rgbaToI420(f, e.y, e.u, e.v); err != nil {
			return 0, err
		}
	case video.LayoutYUV420:
		if err := yuv420ToI420(f, e.y, e.u, e.v); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("unknown source layout %d", f.Layout)
	}

	switch f.Rotation {
	case 0:
	case 180:
		rotate180I420(e.y, e.u, e.v, f.Width, f.Height)
	default:
		return 0, fmt.Errorf("unsupported rotation %d", f.Rotation)
	}

	switch e.cfg.PixelFormat {
	case v4l2.V4L2_PIX_FMT_YUYV:
		return packYUYV(e.y, e.u, e.v, f.Width, f.Height, req.Dest.Data)
	case v4l2.V4L2_PIX_FMT_MJPEG:
		return encodeJPEG(e.y, e.u, e.v, f.Width, f.Height, e.cfg.JPEGQuality, req.Dest.Data)
	}
	return 0, fmt.Errorf("unsupported pixel format %s", v4l2.FormatFourCC(e.cfg.PixelFormat))
}
