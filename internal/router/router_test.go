package router

import (
	"testing"
	"time"

	"github.com/mackatwentytsuru/ndi-ingest-core/internal/model"
)

type fakeSurface struct{ has bool }

func (s *fakeSurface) HasSurface() bool { return s.has }

type fakeRenderer struct{ calls int }

func (r *fakeRenderer) Render(f *model.VideoFrame) error { r.calls++; return nil }

type fakeDecoder struct {
	inited bool
	submits int
}

func (d *fakeDecoder) EnsureInitialized(w, h int32, fcc model.FourCC) error { d.inited = true; return nil }
func (d *fakeDecoder) Submit(f *model.VideoFrameCopy)                      { d.submits++ }
func (d *fakeDecoder) Teardown()                                           { d.inited = false }
func (d *fakeDecoder) Initialized() bool                                   { return d.inited }

type fakeRecorder struct {
	enabled bool
	enqueued int
}

func (r *fakeRecorder) Enabled() bool { return r.enabled }
func (r *fakeRecorder) Enqueue(f *model.VideoFrameCopy, timeout time.Duration) bool {
	r.enqueued++
	return true
}

func newFrame(fcc model.FourCC, compressed bool) *model.VideoFrame {
	return model.NewVideoFrame(4, 2, fcc, 0, 30, 1, 0, make([]byte, 16), func() {})
}

func TestDropsWhenNoSurface(t *testing.T) {
	surf := &fakeSurface{has: false}
	ren := &fakeRenderer{}
	dec := &fakeDecoder{}
	rec := &fakeRecorder{enabled: true}
	r := New(surf, ren, dec, rec)

	r.Dispatch(newFrame(model.FourCCUYVY, false))
	if ren.calls != 0 || rec.enqueued != 0 {
		t.Fatalf("expected no dispatch without a surface, got render=%d recorder=%d", ren.calls, rec.enqueued)
	}
}

func TestUncompressedGoesToRendererAndTearsDownDecoder(t *testing.T) {
	surf := &fakeSurface{has: true}
	ren := &fakeRenderer{}
	dec := &fakeDecoder{inited: true}
	rec := &fakeRecorder{}
	r := New(surf, ren, dec, rec)

	r.Dispatch(newFrame(model.FourCCUYVY, false))
	if ren.calls != 1 {
		t.Fatalf("expected 1 render call, got %d", ren.calls)
	}
	if dec.Initialized() {
		t.Fatal("expected decoder torn down on uncompressed frame")
	}
}

func TestCompressedGoesToDecoder(t *testing.T) {
	surf := &fakeSurface{has: true}
	ren := &fakeRenderer{}
	dec := &fakeDecoder{}
	rec := &fakeRecorder{}
	r := New(surf, ren, dec, rec)

	r.Dispatch(newFrame(model.FourCCH264, true))
	if ren.calls != 0 {
		t.Fatalf("expected renderer untouched for compressed frame, got %d calls", ren.calls)
	}
	if dec.submits != 1 {
		t.Fatalf("expected 1 decoder submit, got %d", dec.submits)
	}
}

func TestVideoInfoChangeCallback(t *testing.T) {
	surf := &fakeSurface{has: true}
	r := New(surf, &fakeRenderer{}, &fakeDecoder{}, &fakeRecorder{})

	var infos []string
	r.OnVideoInfo(func(s string) { infos = append(infos, s) })

	r.Dispatch(newFrame(model.FourCCUYVY, false))
	r.Dispatch(newFrame(model.FourCCUYVY, false)) // unchanged geometry/fourcc: no new emission
	r.Dispatch(newFrame(model.FourCCBGRA, false))  // fourcc changed: new emission

	if len(infos) != 2 {
		t.Fatalf("expected 2 video-info emissions, got %d: %v", len(infos), infos)
	}
}

func TestRecorderEnabledReceivesCopy(t *testing.T) {
	surf := &fakeSurface{has: true}
	rec := &fakeRecorder{enabled: true}
	r := New(surf, &fakeRenderer{}, &fakeDecoder{}, rec)

	r.Dispatch(newFrame(model.FourCCUYVY, false))
	if rec.enqueued != 1 {
		t.Fatalf("expected 1 enqueue, got %d", rec.enqueued)
	}
}
