package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/smazurov/webcamd/internal/video"
	"github.com/smazurov/webcamd/pkg/linuxav/v4l2"
)

// ParseFormats parses the advertised-format option. Specs are separated
// by semicolons, each "name:WxH@fps[,fps...]":
//
//	yuyv:640x480@30,15;mjpeg:1280x720@30
//
// Frames with the same pixel format merge into one format entry, in
// spec order. Intervals come out in 100ns units, fastest first, which
// is the order negotiation expects.
func ParseFormats(spec string) ([]video.FormatSpec, error) {
	var formats []video.FormatSpec
	index := map[uint32]int{}

	for _, part := range strings.Split(spec, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, rest, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("format %q: missing pixel format", part)
		}

		var fourcc uint32
		switch strings.ToLower(name) {
		case "yuyv":
			fourcc = v4l2.V4L2_PIX_FMT_YUYV
		case "mjpeg", "mjpg":
			fourcc = v4l2.V4L2_PIX_FMT_MJPEG
		default:
			return nil, fmt.Errorf("format %q: unsupported pixel format %q", part, name)
		}

		dims, rates, ok := strings.Cut(rest, "@")
		if !ok {
			return nil, fmt.Errorf("format %q: missing frame rates", part)
		}

		w, h, ok := strings.Cut(dims, "x")
		if !ok {
			return nil, fmt.Errorf("format %q: bad size %q", part, dims)
		}
		width, err := strconv.ParseUint(w, 10, 32)
		if err != nil || width == 0 {
			return nil, fmt.Errorf("format %q: bad width %q", part, w)
		}
		height, err := strconv.ParseUint(h, 10, 32)
		if err != nil || height == 0 {
			return nil, fmt.Errorf("format %q: bad height %q", part, h)
		}

		var intervals []uint32
		for _, rate := range strings.Split(rates, ",") {
			fps, err := strconv.ParseUint(strings.TrimSpace(rate), 10, 32)
			if err != nil || fps == 0 {
				return nil, fmt.Errorf("format %q: bad frame rate %q", part, rate)
			}
			intervals = append(intervals, uint32(10_000_000/fps))
		}
		sort.Slice(intervals, func(i, j int) bool { return intervals[i] < intervals[j] })

		frame := video.FrameSpec{
			Width:     uint32(width),
			Height:    uint32(height),
			Intervals: intervals,
		}

		if i, seen := index[fourcc]; seen {
			formats[i].Frames = append(formats[i].Frames, frame)
		} else {
			index[fourcc] = len(formats)
			formats = append(formats, video.FormatSpec{FourCC: fourcc, Frames: []video.FrameSpec{frame}})
		}
	}

	if len(formats) == 0 {
		return nil, fmt.Errorf("no formats in %q", spec)
	}
	return formats, nil
}
