package encoder

import (
	"bytes"
	"image/jpeg"
	"testing"
	"time"

	"github.com/smazurov/webcamd/internal/framepool"
	"github.com/smazurov/webcamd/internal/video"
	"github.com/smazurov/webcamd/pkg/linuxav/v4l2"
)

func flatRGBA(w, h int, r, g, b byte) video.SourceFrame {
	buf := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		buf[i*4] = r
		buf[i*4+1] = g
		buf[i*4+2] = b
		buf[i*4+3] = 0xff
	}
	return video.SourceFrame{
		Width:      w,
		Height:     h,
		Layout:     video.LayoutRGBA,
		RGBA:       buf,
		RGBAStride: w * 4,
	}
}

func TestRGBAToYUYVFlatGray(t *testing.T) {
	// Mid gray maps to Y=126, U=V=128 under BT.601 studio swing.
	f := flatRGBA(8, 4, 128, 128, 128)
	y := make([]byte, 8*4)
	u := make([]byte, 8)
	v := make([]byte, 8)
	if err := rgbaToI420(&f, y, u, v); err != nil {
		t.Fatalf("rgbaToI420: %v", err)
	}

	dst := make([]byte, 8*4*2)
	n, err := packYUYV(y, u, v, 8, 4, dst)
	if err != nil {
		t.Fatalf("packYUYV: %v", err)
	}
	if n != len(dst) {
		t.Fatalf("packYUYV wrote %d bytes, want %d", n, len(dst))
	}

	for i := 0; i < n; i += 4 {
		if dst[i] != 126 || dst[i+1] != 128 || dst[i+2] != 126 || dst[i+3] != 128 {
			t.Fatalf("pixel pair at %d = %v, want [126 128 126 128]", i, dst[i:i+4])
		}
	}
}

func TestPackYUYVRejectsShortBuffer(t *testing.T) {
	y := make([]byte, 8*4)
	u := make([]byte, 8)
	v := make([]byte, 8)
	if _, err := packYUYV(y, u, v, 8, 4, make([]byte, 10)); err == nil {
		t.Fatal("packYUYV into short buffer succeeded")
	}
}

func TestYUV420SemiPlanarRepack(t *testing.T) {
	// 4x2 semi-planar source: chroma rows interleave U and V with pixel
	// stride 2, both plane views offset into the same backing array.
	w, h := 4, 2
	yPlane := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	uv := []byte{0x10, 0x20, 0x11, 0x21}
	f := video.SourceFrame{
		Width:         w,
		Height:        h,
		Layout:        video.LayoutYUV420,
		Y:             yPlane,
		U:             uv,
		V:             uv[1:],
		YStride:       w,
		UVStride:      4,
		UVPixelStride: 2,
	}

	y := make([]byte, w*h)
	u := make([]byte, w*h/4)
	v := make([]byte, w*h/4)
	if err := yuv420ToI420(&f, y, u, v); err != nil {
		t.Fatalf("yuv420ToI420: %v", err)
	}

	if !bytes.Equal(y, yPlane) {
		t.Errorf("y = %v, want %v", y, yPlane)
	}
	if !bytes.Equal(u, []byte{0x10, 0x11}) {
		t.Errorf("u = %v, want [10 11]", u)
	}
	if !bytes.Equal(v, []byte{0x20, 0x21}) {
		t.Errorf("v = %v, want [20 21]", v)
	}
}

func TestRotate180(t *testing.T) {
	y := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	u := []byte{9, 10}
	v := []byte{11, 12}
	rotate180I420(y, u, v, 4, 2)

	if !bytes.Equal(y, []byte{8, 7, 6, 5, 4, 3, 2, 1}) {
		t.Errorf("y = %v after rotation", y)
	}
	if u[0] != 10 || v[0] != 12 {
		t.Errorf("chroma = %v %v after rotation", u, v)
	}
}

func TestEncodeMJPEGRoundTrip(t *testing.T) {
	w, h := 64, 48
	done := make(chan int, 1)
	enc, err := New(Config{
		Width:       uint32(w),
		Height:      uint32(h),
		PixelFormat: v4l2.V4L2_PIX_FMT_MJPEG,
	}, func(req Request, bytesUsed int, ok bool) {
		if !ok {
			done <- -1
			return
		}
		done <- bytesUsed
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	enc.Start()
	defer enc.Stop()

	dest := &framepool.Buffer{Data: make([]byte, w*h*2)}
	enc.Encode(Request{Frame: flatRGBA(w, h, 200, 60, 60), Dest: dest})

	n := <-done
	if n <= 0 {
		t.Fatalf("encode failed, bytesUsed = %d", n)
	}

	img, err := jpeg.Decode(bytes.NewReader(dest.Data[:n]))
	if err != nil {
		t.Fatalf("decoding produced JPEG: %v", err)
	}
	if img.Bounds().Dx() != w || img.Bounds().Dy() != h {
		t.Errorf("decoded size = %v, want %dx%d", img.Bounds(), w, h)
	}

	// Flat input should stay roughly the same color after the trip.
	r, g, b, _ := img.At(w/2, h/2).RGBA()
	if diff(int(r>>8), 200) > 16 || diff(int(g>>8), 60) > 16 || diff(int(b>>8), 60) > 16 {
		t.Errorf("center pixel = %d,%d,%d, want near 200,60,60", r>>8, g>>8, b>>8)
	}
}

func diff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func TestEncodeRejectsSizeMismatch(t *testing.T) {
	done := make(chan bool, 1)
	enc, err := New(Config{
		Width:       32,
		Height:      32,
		PixelFormat: v4l2.V4L2_PIX_FMT_YUYV,
	}, func(req Request, bytesUsed int, ok bool) {
		done <- ok
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	enc.Start()
	defer enc.Stop()

	dest := &framepool.Buffer{Data: make([]byte, 32*32*2)}
	enc.Encode(Request{Frame: flatRGBA(16, 16, 0, 0, 0), Dest: dest})
	if ok := <-done; ok {
		t.Fatal("encode of mismatched frame reported success")
	}
}

func TestStopFailsPendingRequests(t *testing.T) {
	results := make(chan bool, 8)
	enc, err := New(Config{
		Width:       16,
		Height:      16,
		PixelFormat: v4l2.V4L2_PIX_FMT_YUYV,
	}, func(req Request, bytesUsed int, ok bool) {
		results <- ok
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	enc.Start()
	enc.Stop()

	// After Stop every request fails immediately instead of blocking,
	// so callers can release their buffers.
	for i := 0; i < 3; i++ {
		enc.Encode(Request{
			Frame: flatRGBA(16, 16, 0, 0, 0),
			Dest:  &framepool.Buffer{Data: make([]byte, 16*16*2)},
		})
	}
	for i := 0; i < 3; i++ {
		select {
		case ok := <-results:
			if ok {
				t.Fatal("request after Stop reported success")
			}
		case <-time.After(time.Second):
			t.Fatal("missing completion callback after Stop")
		}
	}

	// Stop is idempotent.
	enc.Stop()
}
