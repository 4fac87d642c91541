//go:build linux

package v4l2

import "testing"

func TestFormatFourCC(t *testing.T) {
	tests := []struct {
		name   string
		format uint32
		want   string
	}{
		{"YUYV", V4L2_PIX_FMT_YUYV, "YUYV"},
		{"MJPEG", V4L2_PIX_FMT_MJPEG, "MJPG"},
		{"NV12", V4L2_PIX_FMT_NV12, "NV12"},
		{"zero", 0, "\x00\x00\x00\x00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatFourCC(tt.format); got != tt.want {
				t.Errorf("FormatFourCC(%#x) = %q, want %q", tt.format, got, tt.want)
			}
		})
	}
}

func TestFourCC(t *testing.T) {
	tests := []struct {
		code string
		want uint32
	}{
		{"YUYV", V4L2_PIX_FMT_YUYV},
		{"MJPG", V4L2_PIX_FMT_MJPEG},
		{"bad", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if got := FourCC(tt.code); got != tt.want {
			t.Errorf("FourCC(%q) = %#x, want %#x", tt.code, got, tt.want)
		}
	}
}

func TestFramerateFPS(t *testing.T) {
	tests := []struct {
		name string
		fr   Framerate
		want float64
	}{
		{"30fps", Framerate{1, 30}, 30},
		{"29.97fps", Framerate{1001, 30000}, 30000.0 / 1001.0},
		{"zero numerator", Framerate{0, 30}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fr.FPS(); got != tt.want {
				t.Errorf("FPS() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCstr(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"terminated", []byte{'u', 'v', 'c', 0, 'x', 'x'}, "uvc"},
		{"unterminated", []byte{'a', 'b'}, "ab"},
		{"empty", []byte{0}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cstr(tt.in); got != tt.want {
				t.Errorf("cstr(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
