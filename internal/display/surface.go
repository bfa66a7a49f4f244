// Package display provides a miqt-backed render.Surface: a single QWidget
// that paints whatever RGBA bitmap the Renderer or Decoder last wrote,
// letterboxed to the widget's current size. Adapted from a
// VideoWidget in videowidget.go, stripped of the frameless-window
// drag/resize/snap/glue machinery and the tray context menu — that
// multi-camera window chrome belongs to the original demo app, not to a
// single-stream ingest surface.
package display

import (
	"sync"
	"unsafe"

	"github.com/mappu/miqt/qt"
	"github.com/mappu/miqt/qt/mainthread"
)

// Surface implements render.Surface and decode's blit target atop a
// single QWidget, repainting on demand from whatever was last written
// into its backing bitmap.
type Surface struct {
	*qt.QWidget

	mu     sync.Mutex
	canvas []byte
	width  int
	height int
	stride int
}

// New builds a Surface parented to parent (nil for a top-level window).
func New(parent *qt.QWidget) *Surface {
	s := &Surface{QWidget: qt.NewQWidget(parent)}
	s.SetAttribute2(qt.WA_OpaquePaintEvent, true)
	s.SetAutoFillBackground(false)
	s.SetMinimumSize2(32, 32)
	s.SetSizePolicy2(qt.QSizePolicy__Expanding, qt.QSizePolicy__Expanding)

	s.OnPaintEvent(func(super func(event *qt.QPaintEvent), event *qt.QPaintEvent) {
		p := qt.NewQPainter2(s.QPaintDevice)
		defer p.End()
		p.FillRect6(s.Rect(), qt.NewQColor11(0, 0, 0, 255))

		s.mu.Lock()
		srcW, srcH := s.width, s.height
		data := s.canvas
		s.mu.Unlock()
		if srcW <= 0 || srcH <= 0 || len(data) < srcW*srcH*4 {
			return
		}

		img := qt.NewQImage3(srcW, srcH, qt.QImage__Format_RGBA8888)
		defer img.Delete()
		bits := img.Bits()
		dst := unsafe.Slice((*byte)(bits), srcW*srcH*4)
		copy(dst, data[:srcW*srcH*4])

		dstW, dstH := s.Width(), s.Height()
		if dstW <= 0 || dstH <= 0 {
			return
		}
		dest := letterboxRect(srcW, srcH, dstW, dstH)
		srcRect := qt.NewQRect4(0, 0, srcW, srcH)
		p.SetRenderHint2(qt.QPainter__SmoothPixmapTransform, true)
		p.DrawImage2(dest, img, srcRect)
	})

	return s
}

// Lock implements render.Surface: it hands back the current RGBA backing
// buffer the caller writes into; it does not reallocate it (ResizeCanvas
// does). The caller must call Unlock before the widget may safely repaint.
func (s *Surface) Lock() ([]byte, int, int, int, error) {
	s.mu.Lock()
	return s.canvas, s.width, s.height, s.stride, nil
}

// Unlock releases the lock taken by Lock and schedules a repaint. Render
// calls land on the capture/decode goroutines, never the Qt event loop, so
// the repaint request is dispatched through mainthread.Wait the same way
// cross-thread Qt calls are elsewhere dispatched for any call originating off the GUI
// thread.
func (s *Surface) Unlock() {
	s.mu.Unlock()
	mainthread.Wait(func() { s.Update() })
}

// ResizeCanvas reallocates the backing bitmap for a new source
// resolution; named distinctly from the embedded QWidget's own Resize
// (window size) since this resizes the source bitmap, not the widget.
// The wiring layer calls this (via the Router's geometry-change callback)
// whenever the incoming frame's dimensions change.
func (s *Surface) ResizeCanvas(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width == s.width && height == s.height && s.canvas != nil {
		return
	}
	s.width, s.height = width, height
	s.stride = width * 4
	s.canvas = make([]byte, s.stride*height)
}

// letterboxRect computes the aspect-preserving destination rectangle for
// blitting a srcW x srcH bitmap into a dstW x dstH widget, exactly the
// scale-and-center math used by the original single-window paint handler.
func letterboxRect(srcW, srcH, dstW, dstH int) *qt.QRect {
	sx := float64(dstW) / float64(srcW)
	sy := float64(dstH) / float64(srcH)
	scale := sx
	if sy < scale {
		scale = sy
	}
	outW := int(float64(srcW)*scale + 0.5)
	outH := int(float64(srcH)*scale + 0.5)
	offX := (dstW - outW) / 2
	offY := (dstH - outH) / 2
	return qt.NewQRect4(offX, offY, outW, outH)
}
