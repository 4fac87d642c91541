package camera

import (
	"fmt"
	"sync"
	"time"

	"github.com/smazurov/webcamd/internal/video"
)

// barColors are the classic vertical color bars, left to right.
var barColors = [8][3]byte{
	{235, 235, 235}, // white
	{235, 235, 16},  // yellow
	{16, 235, 235},  // cyan
	{16, 235, 16},   // green
	{235, 16, 235},  // magenta
	{235, 16, 16},   // red
	{16, 16, 235},   // blue
	{16, 16, 16},    // black
}

// TestPattern is a built-in frame source that renders moving color bars.
// It stands in for a hardware camera during bring-up and lets the whole
// pipeline run on machines without a capture device.
type TestPattern struct{}

// Open implements Source.
func (TestPattern) Open(cfg Config, deliver Deliver) (Session, error) {
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("testpattern: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	interval := time.Duration(cfg.FrameIntervalNs)
	if interval <= 0 {
		interval = time.Second / 30
	}

	s := &patternSession{
		cfg:      cfg,
		deliver:  deliver,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.frames.New = func() any {
		return make([]byte, int(cfg.Width)*int(cfg.Height)*4)
	}
	go s.run()
	return s, nil
}

type patternSession struct {
	cfg      Config
	deliver  Deliver
	interval time.Duration
	frames   sync.Pool
	stop     chan struct{}
	done     chan struct{}
}

func (s *patternSession) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
	return nil
}

func (s *patternSession) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	frameNo := 0
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		buf := s.frames.Get().([]byte)
		s.render(buf, frameNo)
		frameNo++

		s.deliver(video.SourceFrame{
			Width:       int(s.cfg.Width),
			Height:      int(s.cfg.Height),
			TimestampNs: time.Now().UnixNano(),
			Layout:      video.LayoutRGBA,
			Rotation:    s.cfg.Rotation,
			RGBA:        buf,
			RGBAStride:  int(s.cfg.Width) * 4,
			Release:     func() { s.frames.Put(buf) },
		})
	}
}

// render paints the bars plus a sweeping highlight column so motion is
// visible on the host side.
func (s *patternSession) render(buf []byte, frameNo int) {
	w, h := int(s.cfg.Width), int(s.cfg.Height)
	barWidth := (w + len(barColors) - 1) / len(barColors)
	sweep := (frameNo * 4) % w

	for x := 0; x < w; x++ {
		c := barColors[x/barWidth]
		if x >= sweep && x < sweep+8 {
			c = [3]byte{128, 128, 128}
		}
		for y := 0; y < h; y++ {
			o := (y*w + x) * 4
			buf[o] = c[0]
			buf[o+1] = c[1]
			buf[o+2] = c[2]
			buf[o+3] = 0xff
		}
	}
}
