// Package camera abstracts the frame producer feeding the gadget and
// bridges its output into the shared frame pool.
package camera

import (
	"errors"

	"github.com/smazurov/webcamd/internal/video"
)

// ErrFrameRejected is returned by Deliver when the pipeline cannot take
// the frame. The frame has already been released.
var ErrFrameRejected = errors.New("camera: frame rejected")

// Config describes the capture a streaming session requires. The source
// must deliver frames of exactly this geometry.
type Config struct {
	Width           uint32
	Height          uint32
	FrameIntervalNs int64

	// Rotation is the orientation correction the source should request
	// from the pipeline, 0 or 180.
	Rotation int
}

// Deliver receives one frame from a session. Implementations must not
// block on pixel work; they hand the frame to the encode worker and
// return. The frame's Release func fires when the pipeline is done.
// A rejected frame is released immediately and reported with
// ErrFrameRejected; sessions may use the result to adapt pacing.
type Deliver func(f video.SourceFrame) error

// Session is an active capture session producing frames until closed.
type Session interface {
	// Close stops frame delivery. No Deliver call is in flight or will
	// be made after Close returns.
	Close() error
}

// Source creates capture sessions. Implemented by the built-in test
// pattern generator and by hardware camera integrations.
type Source interface {
	// Open starts capturing with the given config, delivering frames to
	// deliver until the session is closed.
	Open(cfg Config, deliver Deliver) (Session, error)
}
