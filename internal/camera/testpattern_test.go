package camera

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/webcamd/internal/video"
)

func TestTestPatternDeliversFrames(t *testing.T) {
	var count atomic.Int32
	var lastTS atomic.Int64

	session, err := TestPattern{}.Open(
		Config{Width: 32, Height: 16, FrameIntervalNs: int64(5 * time.Millisecond)},
		func(f video.SourceFrame) error {
			if f.Width != 32 || f.Height != 16 {
				t.Errorf("frame size = %dx%d, want 32x16", f.Width, f.Height)
			}
			if f.Layout != video.LayoutRGBA {
				t.Errorf("layout = %d, want RGBA", f.Layout)
			}
			if f.TimestampNs <= lastTS.Load() {
				t.Errorf("timestamp %d not increasing past %d", f.TimestampNs, lastTS.Load())
			}
			lastTS.Store(f.TimestampNs)
			if f.RGBA[3] != 0xff {
				t.Error("alpha channel not opaque")
			}
			if f.Release != nil {
				f.Release()
			}
			count.Add(1)
			return nil
		})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	waitFor(t, func() bool { return count.Load() >= 3 }, "three frames")

	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// No deliveries after Close returns.
	n := count.Load()
	time.Sleep(25 * time.Millisecond)
	if count.Load() != n {
		t.Errorf("frames delivered after Close: %d -> %d", n, count.Load())
	}

	// Close is idempotent.
	if err := session.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestTestPatternRejectsZeroSize(t *testing.T) {
	if _, err := (TestPattern{}).Open(Config{}, func(video.SourceFrame) error { return nil }); err == nil {
		t.Fatal("Open with zero size succeeded")
	}
}
