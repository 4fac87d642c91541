package encoder

import (
	"fmt"
	"image"
	"image/jpeg"

	"github.com/smazurov/webcamd/internal/video"
)

// rgbaToI420 converts interleaved RGBA into planar I420 using BT.601
// studio-swing coefficients. Chroma is averaged over each 2x2 block.
func rgbaToI420(f *video.SourceFrame, y, u, v []byte) error {
	w, h := f.Width, f.Height
	stride := f.RGBAStride
	if stride < w*4 {
		return fmt.Errorf("rgba stride %d too small for width %d", stride, w)
	}
	if len(f.RGBA) < (h-1)*stride+w*4 {
		return fmt.Errorf("rgba plane too short: %d bytes", len(f.RGBA))
	}

	for row := 0; row < h; row++ {
		src := f.RGBA[row*stride:]
		dst := y[row*w:]
		for col := 0; col < w; col++ {
			r := int32(src[col*4])
			g := int32(src[col*4+1])
			b := int32(src[col*4+2])
			dst[col] = uint8((66*r+129*g+25*b+128)>>8 + 16)
		}
	}

	cw := w / 2
	for row := 0; row < h/2; row++ {
		top := f.RGBA[(row*2)*stride:]
		bot := f.RGBA[(row*2+1)*stride:]
		for col := 0; col < cw; col++ {
			o := col * 8
			r := (int32(top[o]) + int32(top[o+4]) + int32(bot[o]) + int32(bot[o+4]) + 2) / 4
			g := (int32(top[o+1]) + int32(top[o+5]) + int32(bot[o+1]) + int32(bot[o+5]) + 2) / 4
			b := (int32(top[o+2]) + int32(top[o+6]) + int32(bot[o+2]) + int32(bot[o+6]) + 2) / 4
			u[row*cw+col] = uint8((-38*r-74*g+112*b+128)>>8 + 128)
			v[row*cw+col] = uint8((112*r-94*g-18*b+128)>>8 + 128)
		}
	}
	return nil
}

// yuv420ToI420 repacks planar or semi-planar 4:2:0 source planes into
// contiguous I420 scratch planes.
func yuv420ToI420(f *video.SourceFrame, y, u, v []byte) error {
	w, h := f.Width, f.Height
	if f.YStride < w {
		return fmt.Errorf("y stride %d too small for width %d", f.YStride, w)
	}
	ps := f.UVPixelStride
	if ps != 1 && ps != 2 {
		return fmt.Errorf("unsupported uv pixel stride %d", ps)
	}

	for row := 0; row < h; row++ {
		copy(y[row*w:(row+1)*w], f.Y[row*f.YStride:])
	}

	cw := w / 2
	for row := 0; row < h/2; row++ {
		us := f.U[row*f.UVStride:]
		vs := f.V[row*f.UVStride:]
		if ps == 1 {
			copy(u[row*cw:(row+1)*cw], us)
			copy(v[row*cw:(row+1)*cw], vs)
			continue
		}
		for col := 0; col < cw; col++ {
			u[row*cw+col] = us[col*2]
			v[row*cw+col] = vs[col*2]
		}
	}
	return nil
}

// rotate180I420 rotates the scratch planes in place. A 180 degree turn is
// a straight reversal of each plane.
func rotate180I420(y, u, v []byte, w, h int) {
	reverse(y[:w*h])
	reverse(u[:w*h/4])
	reverse(v[:w*h/4])
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// packYUYV interleaves I420 planes into YUYV 4:2:2. Each chroma sample
// covers a 2x2 block in the source and a 2x1 pair in the output, so
// chroma rows are repeated.
func packYUYV(y, u, v []byte, w, h int, dst []byte) (int, error) {
	need := w * h * 2
	if len(dst) < need {
		return 0, fmt.Errorf("yuyv output needs %d bytes, buffer has %d", need, len(dst))
	}

	cw := w / 2
	for row := 0; row < h; row++ {
		ys := y[row*w:]
		us := u[(row/2)*cw:]
		vs := v[(row/2)*cw:]
		out := dst[row*w*2:]
		for col := 0; col < cw; col++ {
			out[col*4] = ys[col*2]
			out[col*4+1] = us[col]
			out[col*4+2] = ys[col*2+1]
			out[col*4+3] = vs[col]
		}
	}
	return need, nil
}

// encodeJPEG compresses the I420 planes into dst as a baseline JPEG and
// returns the compressed size. Fails if the result would not fit.
func encodeJPEG(y, u, v []byte, w, h, quality int, dst []byte) (int, error) {
	img := &image.YCbCr{
		Y:              y,
		Cb:             u,
		Cr:             v,
		YStride:        w,
		CStride:        w / 2,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, w, h),
	}

	sw := &sliceWriter{buf: dst}
	if err := jpeg.Encode(sw, img, &jpeg.Options{Quality: quality}); err != nil {
		return 0, fmt.Errorf("jpeg encode: %w", err)
	}
	return sw.n, nil
}

// sliceWriter writes into a fixed slice and errors on overflow, keeping
// jpeg.Encode from growing past the gadget buffer.
type sliceWriter struct {
	buf []byte
	n   int
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > len(w.buf) {
		return 0, fmt.Errorf("frame buffer full at %d bytes", len(w.buf))
	}
	copy(w.buf[w.n:], p)
	w.n += len(p)
	return len(p), nil
}
