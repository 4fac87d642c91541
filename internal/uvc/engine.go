package uvc

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/smazurov/webcamd/internal/events"
	"github.com/smazurov/webcamd/internal/logging"
	"github.com/smazurov/webcamd/internal/metrics"
	"github.com/smazurov/webcamd/internal/video"
	"github.com/smazurov/webcamd/pkg/linuxav/epoll"
	"github.com/smazurov/webcamd/pkg/linuxav/v4l2"
)

// pollTimeoutMs bounds each epoll wait so the loop notices stop requests
// even when the bus is idle.
const pollTimeoutMs = 66

// Notifier receives lifecycle callbacks from the engine. Callbacks run
// on a fresh goroutine, so implementations may call back into Stop.
type Notifier interface {
	// OnDisconnect fires after the host detaches and streaming has been
	// torn down. The engine's event loop has already exited; the owner
	// should call Stop to release the node.
	OnDisconnect()
}

// Engine owns one gadget node: the open device, its epoll loop, and the
// protocol state machine. Start and Stop are idempotent and may be
// called from any goroutine.
type Engine struct {
	path     string
	cfg      Config
	producer FrameProducer
	bus      *events.Bus
	met      *metrics.Metrics
	notifier Notifier
	log      *slog.Logger

	mu      sync.Mutex
	node    *v4l2.Device
	mux     *epoll.Multiplexer
	device  *Device
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewEngine prepares an engine for the gadget node at path. The bus,
// metrics, and notifier may be nil.
func NewEngine(path string, cfg Config, producer FrameProducer, bus *events.Bus, met *metrics.Metrics, notifier Notifier) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		path:     path,
		cfg:      cfg,
		producer: producer,
		bus:      bus,
		met:      met,
		notifier: notifier,
		log:      logging.GetLogger("uvc"),
	}, nil
}

// Start opens the gadget node, subscribes to its events, and launches
// the event loop. Calling Start on a running engine is a no-op.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	node, err := v4l2.OpenOutput(e.path)
	if err != nil {
		return err
	}
	if err := node.SubscribeGadgetEvents(); err != nil {
		_ = node.Close()
		return err
	}

	mux, err := epoll.New()
	if err != nil {
		_ = node.Close()
		return err
	}
	if err := mux.Add(node.Fd(), epoll.Pri); err != nil {
		_ = mux.Close()
		_ = node.Close()
		return fmt.Errorf("registering gadget node: %w", err)
	}

	// The node's own enumeration reflects the descriptors bound into
	// configfs, so the indices it yields always match what the host
	// sees. The configured table covers nodes that enumerate nothing.
	cfg := e.cfg
	if specs, enumErr := enumerateFormats(node); enumErr != nil {
		e.log.Warn("Format enumeration failed, using configured formats", "error", enumErr)
	} else if len(specs) > 0 {
		cfg.Formats = specs
		e.log.Info("Advertising formats from gadget node", "formats", len(specs))
	} else {
		e.log.Info("Gadget node enumerates no formats, using configured formats")
	}

	e.node = node
	e.mux = mux
	e.device = newDevice(node, e.path, cfg, e.producer, e.bus, e.met)
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	e.running = true

	e.log.Info("Engine started", "device", e.path, "driver", node.Info().Driver)
	go e.loop(node, mux, e.device, e.stop, e.done)
	return nil
}

// Stop shuts the event loop down, tears down any active stream, and
// closes the node. Safe to call on a stopped engine.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	node, mux, device := e.node, e.mux, e.device
	stop, done := e.stop, e.done
	e.node, e.mux, e.device = nil, nil, nil
	e.mu.Unlock()

	close(stop)
	// The loop may be blocked waiting for a camera frame; interrupting
	// the pool breaks it out.
	device.Interrupt()
	<-done

	device.teardownStreaming("shutdown")
	if err := node.UnsubscribeGadgetEvents(); err != nil {
		e.log.Debug("Unsubscribe failed", "error", err)
	}
	if err := mux.Close(); err != nil {
		e.log.Debug("Closing epoll failed", "error", err)
	}
	if err := node.Close(); err != nil {
		e.log.Warn("Closing gadget node failed", "error", err)
	}
	e.log.Info("Engine stopped", "device", e.path)
}

// Running reports whether the event loop is live.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// loop is the single-goroutine event pump. All protocol handling happens
// here; the write-ready path may block briefly on the frame pool.
func (e *Engine) loop(node *v4l2.Device, mux *epoll.Multiplexer, device *Device, stop, done chan struct{}) {
	defer close(done)

	watchingOut := false
	for {
		select {
		case <-stop:
			return
		default:
		}

		ready, err := mux.Wait(pollTimeoutMs)
		if err != nil {
			e.log.Error("Event wait failed", "error", err)
			return
		}

		for _, ev := range ready {
			if ev.Events&epoll.Pri != 0 {
				if err := e.drainEvents(node, device); err != nil {
					e.log.Error("Gadget event handling failed", "error", err)
				}
			}
			if ev.Events&epoll.Out != 0 {
				if err := device.handleWriteReady(); err != nil {
					e.log.Error("Transmit failed", "error", err)
				}
			}
		}

		if device.Disconnected() {
			if e.notifier != nil {
				go e.notifier.OnDisconnect()
			}
			return
		}

		// Watch for transmit readiness only while streaming, otherwise
		// EPOLLOUT floods the loop.
		if streaming := device.Streaming(); streaming != watchingOut {
			mask := uint32(epoll.Pri)
			if streaming {
				mask |= epoll.Out
			}
			if err := mux.Modify(node.Fd(), mask); err != nil {
				e.log.Error("Updating event mask failed", "error", err)
				return
			}
			watchingOut = streaming
		}
	}
}

// formatEnumerator is the discovery slice of the gadget node.
// Implemented by *v4l2.Device.
type formatEnumerator interface {
	Formats() ([]v4l2.FormatInfo, error)
	Resolutions(pixelFormat uint32) ([]v4l2.Resolution, error)
	Framerates(pixelFormat, width, height uint32) ([]v4l2.Framerate, error)
}

// enumerateFormats walks the node's format, frame size, and frame
// interval enumerations and builds the advertised table from them.
// Formats without usable frames are skipped; an empty table means the
// node does not support enumeration.
func enumerateFormats(node formatEnumerator) ([]video.FormatSpec, error) {
	infos, err := node.Formats()
	if err != nil {
		return nil, err
	}

	var specs []video.FormatSpec
	for _, info := range infos {
		sizes, err := node.Resolutions(info.PixelFormat)
		if err != nil {
			return nil, err
		}

		spec := video.FormatSpec{FourCC: info.PixelFormat}
		for _, size := range sizes {
			rates, err := node.Framerates(info.PixelFormat, size.Width, size.Height)
			if err != nil {
				return nil, err
			}

			frame := video.FrameSpec{Width: size.Width, Height: size.Height}
			for _, rate := range rates {
				if rate.Numerator == 0 || rate.Denominator == 0 {
					continue
				}
				frame.Intervals = append(frame.Intervals,
					uint32(uint64(rate.Numerator)*intervalsPerSecond/uint64(rate.Denominator)))
			}
			if len(frame.Intervals) == 0 {
				continue
			}
			sort.Slice(frame.Intervals, func(i, j int) bool {
				return frame.Intervals[i] < frame.Intervals[j]
			})
			spec.Frames = append(spec.Frames, frame)
		}
		if len(spec.Frames) == 0 {
			continue
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// drainEvents empties the node's event queue.
func (e *Engine) drainEvents(node *v4l2.Device, device *Device) error {
	for {
		ge, err := node.DequeueEvent()
		if err != nil {
			if errors.Is(err, v4l2.ErrNotReady) {
				return nil
			}
			return err
		}
		if err := device.HandleEvent(ge); err != nil {
			return err
		}
	}
}
