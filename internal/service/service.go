// Package service wires the streaming engine into a long-running
// daemon: gadget node discovery, host disconnect recovery, a /dev
// watcher for forced node removal, and systemd readiness notification.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/fsnotify/fsnotify"

	"github.com/smazurov/webcamd/internal/api"
	"github.com/smazurov/webcamd/internal/camera"
	"github.com/smazurov/webcamd/internal/config"
	"github.com/smazurov/webcamd/internal/events"
	"github.com/smazurov/webcamd/internal/logging"
	"github.com/smazurov/webcamd/internal/metrics"
	"github.com/smazurov/webcamd/internal/uvc"
	"github.com/smazurov/webcamd/internal/video"
	"github.com/smazurov/webcamd/pkg/linuxav/v4l2"
)

// devDir is the directory watched for gadget node removal.
const devDir = "/dev"

// Options configures the service.
type Options struct {
	// Device is the gadget node path. Empty means discover the first
	// video-output node, honoring IgnoredNodes.
	Device string

	// IgnoredNodes lists nodes discovery must skip, from the vendor
	// overlay.
	IgnoredNodes []string

	// IgnoredNodesFile, when set, is watched so overlay updates apply
	// to the next discovery without a restart.
	IgnoredNodesFile string

	// Formats mirrors the descriptors bound into configfs.
	Formats []video.FormatSpec

	// Source produces camera frames while streaming.
	Source camera.Source

	BufferCount int
	JPEGQuality int
	Rotation    int
}

// Service owns the engine and its recovery logic. Start and Stop are
// not safe for concurrent use with each other.
type Service struct {
	opts Options
	bus  *events.Bus
	met  *metrics.Metrics
	log  *slog.Logger

	engine *uvc.Engine
	path   string

	watcher   *fsnotify.Watcher
	watchDone chan struct{}
	overlay   *config.Watcher[[]string]

	mu      sync.Mutex
	running bool
	status  api.Status
	unsubs  []func()
}

// New builds the service. The engine is constructed on Start so that
// discovery runs each time the service comes up.
func New(opts Options, bus *events.Bus, met *metrics.Metrics) (*Service, error) {
	if opts.Source == nil {
		return nil, errors.New("service: no camera source")
	}
	return &Service{
		opts: opts,
		bus:  bus,
		met:  met,
		log:  logging.GetLogger("service"),
	}, nil
}

// Start discovers the gadget node, launches the engine, and begins
// watching /dev. Notifies systemd once the engine is up.
func (s *Service) Start() error {
	path := s.opts.Device
	if path == "" {
		info, err := v4l2.FindOutputNode(s.opts.IgnoredNodes)
		if err != nil {
			return fmt.Errorf("discovering gadget node: %w", err)
		}
		path = info.DevicePath
		s.log.Info("Discovered gadget node", "device", path, "name", info.DeviceName)
	}

	bridge := camera.NewBridge(s.opts.Source, s.bus, s.met)
	engine, err := uvc.NewEngine(path, uvc.Config{
		Formats:     s.opts.Formats,
		BufferCount: s.opts.BufferCount,
		JPEGQuality: s.opts.JPEGQuality,
		Rotation:    s.opts.Rotation,
	}, bridge, s.bus, s.met, s)
	if err != nil {
		return err
	}
	if err := engine.Start(); err != nil {
		return fmt.Errorf("starting engine on %s: %w", path, err)
	}

	s.mu.Lock()
	s.engine = engine
	s.path = path
	s.status = api.Status{Device: path}
	s.running = true
	s.subscribeStatus()
	s.mu.Unlock()

	if err := s.watchDev(); err != nil {
		s.log.Warn("Node watcher unavailable", "error", err)
	}
	s.watchOverlay()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		s.log.Warn("sd_notify failed", "error", err)
	} else if !ok {
		s.log.Debug("Not running under systemd")
	}

	s.log.Info("Service started", "device", path)
	return nil
}

// Stop tears the service down: notify systemd, stop watching /dev, and
// shut the engine down. Safe to call on a stopped service.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	engine := s.engine
	watcher, watchDone := s.watcher, s.watchDone
	overlay := s.overlay
	s.watcher, s.watchDone, s.overlay = nil, nil, nil
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		s.log.Debug("sd_notify failed", "error", err)
	}

	if watcher != nil {
		_ = watcher.Close()
		<-watchDone
	}
	if overlay != nil {
		_ = overlay.Stop()
	}
	for _, unsub := range unsubs {
		unsub()
	}
	engine.Stop()
	s.log.Info("Service stopped")
}

// OnDisconnect restarts the engine after a host detach so the gadget is
// ready for the next connect. Runs on its own goroutine.
func (s *Service) OnDisconnect() {
	s.mu.Lock()
	running := s.running
	engine := s.engine
	s.mu.Unlock()
	if !running {
		return
	}

	s.log.Info("Host detached, rearming engine")
	engine.Stop()
	if err := engine.Start(); err != nil {
		s.log.Error("Rearming engine failed", "error", err)
	}
}

// Status implements api.StatusProvider.
func (s *Service) Status() api.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// subscribeStatus mirrors bus events into the status snapshot. Caller
// holds s.mu.
func (s *Service) subscribeStatus() {
	s.unsubs = append(s.unsubs,
		s.bus.Subscribe(func(e events.StreamStartedEvent) {
			s.mu.Lock()
			s.status.Streaming = true
			s.status.Format = e.Format
			s.status.Width = e.Width
			s.status.Height = e.Height
			s.status.FPS = e.FPS
			s.mu.Unlock()
		}),
		s.bus.Subscribe(func(e events.StreamStoppedEvent) {
			s.mu.Lock()
			s.status.Streaming = false
			s.status.Format = ""
			s.status.Width, s.status.Height, s.status.FPS = 0, 0, 0
			s.mu.Unlock()
		}),
		s.bus.Subscribe(func(e events.HostConnectedEvent) {
			s.mu.Lock()
			s.status.HostConnected = true
			s.mu.Unlock()
		}),
		s.bus.Subscribe(func(e events.HostDisconnectedEvent) {
			s.mu.Lock()
			s.status.HostConnected = false
			s.mu.Unlock()
		}),
		s.bus.Subscribe(func(e events.FrameDroppedEvent) {
			s.mu.Lock()
			s.status.FramesDropped++
			s.mu.Unlock()
		}),
	)
}

// watchOverlay tracks vendor ignore-list updates so the next discovery
// honors them.
func (s *Service) watchOverlay() {
	if s.opts.IgnoredNodesFile == "" {
		return
	}

	overlay := config.NewConfigWatcher(s.opts.IgnoredNodesFile,
		config.LoadIgnoredNodes, s.log)
	overlay.OnReload(func(nodes []string) {
		s.mu.Lock()
		s.opts.IgnoredNodes = nodes
		s.mu.Unlock()
		s.log.Info("Vendor ignore list updated", "nodes", len(nodes))
	})
	if err := overlay.Start(); err != nil {
		// Overlay files are optional and often absent.
		s.log.Debug("Not watching vendor overlay", "error", err)
		return
	}

	s.mu.Lock()
	s.overlay = overlay
	s.mu.Unlock()
}

// watchDev watches /dev for the gadget node being force-removed, which
// the gadget driver does not always surface as a disconnect event.
func (s *Service) watchDev() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(devDir); err != nil {
		watcher.Close()
		return err
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.watcher = watcher
	s.watchDone = done
	s.mu.Unlock()

	go s.watchLoop(watcher, done)
	return nil
}

func (s *Service) watchLoop(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name != s.path {
				continue
			}
			switch {
			case event.Op&fsnotify.Remove != 0:
				s.log.Warn("Gadget node removed", "device", s.path)
				s.publishNodeChange(false)
				go s.nodeRemoved()
			case event.Op&fsnotify.Create != 0:
				s.log.Info("Gadget node appeared", "device", s.path)
				s.publishNodeChange(true)
				go s.nodeAppeared()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("Node watcher error", "error", err)
		}
	}
}

// nodeRemoved mirrors a protocol disconnect when the node vanishes out
// from under the engine.
func (s *Service) nodeRemoved() {
	s.mu.Lock()
	running := s.running
	engine := s.engine
	s.mu.Unlock()
	if running {
		engine.Stop()
	}
}

// nodeAppeared rearms the engine once the node is back. The gadget
// driver may need a moment to finish binding after the node shows up.
func (s *Service) nodeAppeared() {
	s.mu.Lock()
	running := s.running
	engine := s.engine
	s.mu.Unlock()
	if !running || engine.Running() {
		return
	}

	for attempt := 0; attempt < 5; attempt++ {
		if err := engine.Start(); err == nil {
			return
		} else if attempt == 4 {
			s.log.Error("Rearming engine after node reappearance failed", "error", err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func (s *Service) publishNodeChange(present bool) {
	if s.bus != nil {
		s.bus.Publish(events.NodeChangedEvent{
			DevicePath: s.path,
			Present:    present,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		})
	}
}
