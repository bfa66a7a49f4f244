package render

import (
	"testing"

	"github.com/mackatwentytsuru/ndi-ingest-core/internal/model"
)

type fakeSurface struct {
	canvas  []byte
	w, h    int
	stride  int
}

func newFakeSurface(w, h int) *fakeSurface {
	stride := w * 4
	return &fakeSurface{canvas: make([]byte, stride*h), w: w, h: h, stride: stride}
}

func (s *fakeSurface) Lock() ([]byte, int, int, int, error) { return s.canvas, s.w, s.h, s.stride, nil }
func (s *fakeSurface) Unlock()                               {}

func blackUYVYFrame(w, h int32) *model.VideoFrame {
	// U,Y0,V,Y1 quadruples with Y=16 and U=V=128 (BT.601 black).
	row := make([]byte, w*2)
	for i := range row {
		if i%2 == 0 {
			row[i] = 128 // U or V
		} else {
			row[i] = 16 // Y
		}
	}
	data := make([]byte, 0, int(h)*len(row))
	for r := int32(0); r < h; r++ {
		data = append(data, row...)
	}
	return model.NewVideoFrame(w, h, model.FourCCUYVY, 0, 30, 1, 0, data, func() {})
}

func TestUYVYRenderBlack(t *testing.T) {
	surf := newFakeSurface(4, 2)
	r := New()
	r.SetSurface(surf)

	if err := r.Render(blackUYVYFrame(4, 2)); err != nil {
		t.Fatalf("Render: %v", err)
	}
	for i := 0; i < len(surf.canvas); i += 4 {
		px := surf.canvas[i : i+4]
		if px[0] != 0 || px[1] != 0 || px[2] != 0 || px[3] != 255 {
			t.Fatalf("pixel %d: expected (0,0,0,255), got %v", i/4, px)
		}
	}
}

func TestBT601WhiteFloor(t *testing.T) {
	r, g, b := yuvToRGB(235, 128, 128)
	if r < 250 || g < 250 || b < 250 {
		t.Fatalf("expected near-white output for Y=235,U=V=128, got (%d,%d,%d)", r, g, b)
	}
}

func TestBT601Black(t *testing.T) {
	r, g, b := yuvToRGB(16, 128, 128)
	if r != 0 || g != 0 || b != 0 {
		t.Fatalf("expected (0,0,0) for Y=16,U=V=128, got (%d,%d,%d)", r, g, b)
	}
}

func TestBGRARenderWritesExactByteCount(t *testing.T) {
	surf := newFakeSurface(3, 2)
	r := New()
	r.SetSurface(surf)

	data := make([]byte, 3*2*4)
	for i := range data {
		data[i] = byte(i)
	}
	frame := model.NewVideoFrame(3, 2, model.FourCCBGRA, 0, 30, 1, 0, data, func() {})
	if err := r.Render(frame); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(r.dst) != 3*2*4 {
		t.Fatalf("expected backing buffer of %d bytes, got %d", 3*2*4, len(r.dst))
	}
}

func TestRejectsUndersizedStride(t *testing.T) {
	surf := newFakeSurface(4, 2)
	r := New()
	r.SetSurface(surf)

	frame := model.NewVideoFrame(4, 2, model.FourCCBGRA, 8, 30, 1, 0, make([]byte, 4*2*4), func() {})
	if err := r.Render(frame); err != nil {
		t.Fatalf("Render should absorb invalid-stride frames, got error: %v", err)
	}
	// Canvas must be untouched (frame dropped before any blit).
	for _, b := range surf.canvas {
		if b != 0 {
			t.Fatal("expected canvas untouched for a dropped frame")
		}
	}
}

func TestNegativeStrideFlipsRowOrder(t *testing.T) {
	surf := newFakeSurface(1, 2)
	r := New()
	r.SetSurface(surf)

	// Row 0 (top, per-stride iteration) carries red; row 1 carries blue.
	// With stride = -4 (bottom-up), buffer offset 0 is logically the LAST
	// row, so the red bytes at offset 0 should land in canvas row 1.
	data := []byte{
		255, 0, 0, 255, // offset 0: red, bottom-up -> canvas row 1
		0, 0, 255, 255, // offset 4: blue, bottom-up -> canvas row 0
	}
	frame := model.NewVideoFrame(1, 2, model.FourCCRGBA, -4, 30, 1, 0, data, func() {})
	if err := r.Render(frame); err != nil {
		t.Fatalf("Render: %v", err)
	}
	row0 := surf.canvas[0:4]
	row1 := surf.canvas[4:8]
	if row0[2] != 255 { // blue channel
		t.Fatalf("expected canvas row 0 to be blue, got %v", row0)
	}
	if row1[0] != 255 { // red channel
		t.Fatalf("expected canvas row 1 to be red, got %v", row1)
	}
}
