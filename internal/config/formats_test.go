package config

import (
	"reflect"
	"testing"

	"github.com/smazurov/webcamd/internal/video"
	"github.com/smazurov/webcamd/pkg/linuxav/v4l2"
)

func TestParseFormats(t *testing.T) {
	got, err := ParseFormats("yuyv:640x480@30,15; yuyv:1280x720@15; mjpeg:1920x1080@30")
	if err != nil {
		t.Fatalf("ParseFormats: %v", err)
	}

	want := []video.FormatSpec{
		{
			FourCC: v4l2.V4L2_PIX_FMT_YUYV,
			Frames: []video.FrameSpec{
				{Width: 640, Height: 480, Intervals: []uint32{333333, 666666}},
				{Width: 1280, Height: 720, Intervals: []uint32{666666}},
			},
		},
		{
			FourCC: v4l2.V4L2_PIX_FMT_MJPEG,
			Frames: []video.FrameSpec{
				{Width: 1920, Height: 1080, Intervals: []uint32{333333}},
			},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("formats = %+v, want %+v", got, want)
	}
}

func TestParseFormatsIntervalOrder(t *testing.T) {
	got, err := ParseFormats("yuyv:640x480@15,60,30")
	if err != nil {
		t.Fatalf("ParseFormats: %v", err)
	}
	// Fastest first regardless of spec order.
	want := []uint32{166666, 333333, 666666}
	if !reflect.DeepEqual(got[0].Frames[0].Intervals, want) {
		t.Errorf("intervals = %v, want %v", got[0].Frames[0].Intervals, want)
	}
}

func TestParseFormatsErrors(t *testing.T) {
	tests := []struct {
		name string
		spec string
	}{
		{"empty", ""},
		{"unknown format", "h264:640x480@30"},
		{"missing rates", "yuyv:640x480"},
		{"bad size", "yuyv:640@30"},
		{"zero width", "yuyv:0x480@30"},
		{"zero fps", "yuyv:640x480@0"},
		{"garbage fps", "yuyv:640x480@fast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFormats(tt.spec); err == nil {
				t.Errorf("ParseFormats(%q) succeeded", tt.spec)
			}
		})
	}
}
