package render

import (
	"fmt"
	"log"
	"sync"

	"github.com/mackatwentytsuru/ndi-ingest-core/internal/model"
)

// Renderer converts a borrowed uncompressed frame to RGBA and blits it
// into the bound Surface.
type Renderer struct {
	mu      sync.Mutex
	surface Surface

	// dst is the single reusable RGBA backing array; width/height track
	// the dimensions it was last sized for. Reallocated only when the
	// frame's dimensions change (teacher's frameBuf.put reuse rule).
	dst    []byte
	width  int32
	height int32
}

// New constructs a Renderer with no bound surface.
func New() *Renderer { return &Renderer{} }

// SetSurface binds or unbinds the display surface; Renderer's internal
// lock guards both the bitmap and the surface reference.
func (r *Renderer) SetSurface(s Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surface = s
}

func (r *Renderer) HasSurface() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.surface != nil
}

// Render implements the conversion+blit pipeline. It never retains frame
// past the call.
func (r *Renderer) Render(frame *model.VideoFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.surface == nil {
		return nil
	}

	rowBytes, err := rowBytesFor(frame.FourCC, frame.Width)
	if err != nil {
		log.Printf("render: %v", err)
		return nil
	}
	stride := int(frame.LineStride)
	if stride == 0 {
		stride = rowBytes
	}
	absStride := stride
	if absStride < 0 {
		absStride = -absStride
	}
	if absStride < rowBytes {
		log.Printf("render: stride %d smaller than row bytes %d, dropping frame", stride, rowBytes)
		return nil
	}
	need := (int(frame.Height)-1)*absStride + rowBytes
	if need < 0 || len(frame.Data) < need {
		log.Printf("render: buffer too small (%d < %d), dropping frame", len(frame.Data), need)
		return nil
	}

	r.ensureDst(frame.Width, frame.Height)

	if err := convertToRGBA(frame, stride, r.dst); err != nil {
		log.Printf("render: %v", err)
		return nil
	}

	canvas, cw, ch, cstride, err := r.surface.Lock()
	if err != nil {
		return err
	}
	defer r.surface.Unlock()
	blit(r.dst, int(frame.Width), int(frame.Height), canvas, cw, ch, cstride)
	return nil
}

func (r *Renderer) ensureDst(w, h int32) {
	if w == r.width && h == r.height && r.dst != nil {
		return
	}
	r.dst = make([]byte, int(w)*int(h)*4)
	r.width, r.height = w, h
}

// rowBytesFor returns the minimum row byte count for a tightly packed row
// of the given FourCC and width, or an UnsupportedPixelFormat-flavored
// error for anything outside the supported pixel-format set.
func rowBytesFor(fcc model.FourCC, width int32) (int, error) {
	switch fcc {
	case model.FourCCBGRA, model.FourCCBGRX, model.FourCCRGBA, model.FourCCRGBX:
		return int(width) * 4, nil
	case model.FourCCUYVY:
		if width%2 != 0 {
			return 0, fmt.Errorf("UYVY width %d not even", width)
		}
		return int(width) * 2, nil
	default:
		return 0, model.NewError(model.KindUnsupportedPixelFormat, fcc.String(), nil)
	}
}

// convertToRGBA dispatches to the per-FourCC conversion,
// honoring a possibly-negative stride (bottom-up layout).
func convertToRGBA(frame *model.VideoFrame, stride int, dst []byte) error {
	w, h := int(frame.Width), int(frame.Height)
	src := frame.Data

	rowOffset := func(row int) int {
		if stride < 0 {
			return (h - 1 - row) * -stride
		}
		return row * stride
	}

	switch frame.FourCC {
	case model.FourCCBGRA:
		for row := 0; row < h; row++ {
			so := rowOffset(row)
			do := row * w * 4
			for x := 0; x < w; x++ {
				b, g, r, a := src[so+x*4], src[so+x*4+1], src[so+x*4+2], src[so+x*4+3]
				dst[do+x*4], dst[do+x*4+1], dst[do+x*4+2], dst[do+x*4+3] = r, g, b, a
			}
		}
	case model.FourCCBGRX:
		for row := 0; row < h; row++ {
			so := rowOffset(row)
			do := row * w * 4
			for x := 0; x < w; x++ {
				b, g, r := src[so+x*4], src[so+x*4+1], src[so+x*4+2]
				dst[do+x*4], dst[do+x*4+1], dst[do+x*4+2], dst[do+x*4+3] = r, g, b, 0xFF
			}
		}
	case model.FourCCRGBA:
		for row := 0; row < h; row++ {
			so := rowOffset(row)
			do := row * w * 4
			copy(dst[do:do+w*4], src[so:so+w*4])
		}
	case model.FourCCRGBX:
		for row := 0; row < h; row++ {
			so := rowOffset(row)
			do := row * w * 4
			for x := 0; x < w; x++ {
				dst[do+x*4] = src[so+x*4]
				dst[do+x*4+1] = src[so+x*4+1]
				dst[do+x*4+2] = src[so+x*4+2]
				dst[do+x*4+3] = 0xFF
			}
		}
	case model.FourCCUYVY:
		for row := 0; row < h; row++ {
			so := rowOffset(row)
			do := row * w * 4
			for x := 0; x+1 < w; x += 2 {
				u := src[so+x*2]
				y0 := src[so+x*2+1]
				v := src[so+x*2+2]
				y1 := src[so+x*2+3]

				r0, g0, b0 := yuvToRGB(y0, u, v)
				dst[do+x*4], dst[do+x*4+1], dst[do+x*4+2], dst[do+x*4+3] = r0, g0, b0, 0xFF

				r1, g1, b1 := yuvToRGB(y1, u, v)
				dst[do+(x+1)*4], dst[do+(x+1)*4+1], dst[do+(x+1)*4+2], dst[do+(x+1)*4+3] = r1, g1, b1, 0xFF
			}
		}
	default:
		return model.NewError(model.KindUnsupportedPixelFormat, frame.FourCC.String(), nil)
	}
	return nil
}

// blit copies src (w*h RGBA, tightly packed) into the destination
// canvas, stretching isn't performed here (aspect handling is the
// caller's layout concern) — it writes a straight,
// row-for-row copy clipped to the smaller of the two dimensions.
func blit(src []byte, w, h int, canvas []byte, cw, ch, cstride int) {
	rowBytes := w * 4
	if cw < w {
		rowBytes = cw * 4
	}
	rows := h
	if ch < h {
		rows = ch
	}
	for row := 0; row < rows; row++ {
		so := row * w * 4
		do := row * cstride
		copy(canvas[do:do+rowBytes], src[so:so+rowBytes])
	}
}
