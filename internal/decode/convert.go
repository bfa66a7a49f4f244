package decode

import (
	"github.com/asticode/go-astiav"

	"github.com/mackatwentytsuru/ndi-ingest-core/internal/model"
)

// nv12ToBGRA converts a decoded NV12 or YUV420P picture to tightly packed
// BGRA using the same BT.601 coefficients as internal/render's UYVY path,
// generalized to 2x2 chroma subsampling instead of UYVY's 2x1.
func nv12ToBGRA(f *astiav.Frame) (model.FourCC, int, []byte, error) {
	w, h := f.Width(), f.Height()
	yPlane := f.Data().Bytes(0, f.Linesize(0)*h)
	yStride := f.Linesize(0)

	var cbPlane, crPlane []byte
	var cStride int
	planar := f.PixelFormat() == astiav.PixelFormatYuv420P

	if planar {
		cStride = f.Linesize(1)
		cbPlane = f.Data().Bytes(1, cStride*((h+1)/2))
		crPlane = f.Data().Bytes(2, cStride*((h+1)/2))
	} else {
		// NV12: interleaved Cb,Cr pairs in a single second plane.
		cStride = f.Linesize(1)
		cbPlane = f.Data().Bytes(1, cStride*((h+1)/2))
	}

	dst := make([]byte, w*h*4)
	for row := 0; row < h; row++ {
		yOff := row * yStride
		cRow := row / 2
		do := row * w * 4
		for x := 0; x < w; x++ {
			y := yPlane[yOff+x]

			var u, v byte
			if planar {
				cOff := cRow*cStride + x/2
				u = cbPlane[cOff]
				v = crPlane[cOff]
			} else {
				cOff := cRow*cStride + (x/2)*2
				u = cbPlane[cOff]
				v = cbPlane[cOff+1]
			}

			r, g, b := yuvToRGBPlanar(y, u, v)
			dst[do+x*4], dst[do+x*4+1], dst[do+x*4+2], dst[do+x*4+3] = b, g, r, 0xFF
		}
	}
	return model.FourCCBGRA, w * 4, dst, nil
}

// yuvToRGBPlanar is the same BT.601 conversion internal/render/bt601.go
// uses; duplicated at the byte level here since decode deliberately avoids
// importing internal/render's unexported helper (decode only needs the
// Surface type from that package, not its conversion internals).
func yuvToRGBPlanar(y, u, v byte) (r, g, b byte) {
	c := int32(y) - 16
	d := int32(u) - 128
	e := int32(v) - 128

	rr := (298*c + 409*e + 128) >> 8
	gg := (298*c - 100*d - 208*e + 128) >> 8
	bb := (298*c + 516*d + 128) >> 8

	return clampByte(rr), clampByte(gg), clampByte(bb)
}

func clampByte(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
