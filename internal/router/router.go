// Package router implements the FrameRouter: the per-frame dispatch
// algorithm that classifies a borrowed frame, maintains the video-info and
// bitrate digests shown in an on-screen display, and fans the
// frame out to the Renderer, Decoder and Recorder. The bitrate/sliding
// window accounting follows the byte counters accumulated by the
// teacher's decode loop in video.go.
package router

import (
	"fmt"
	"sync"
	"time"

	"github.com/mackatwentytsuru/ndi-ingest-core/internal/model"
)

// recorderOfferTimeout is the bounded-wait before a frame is dropped when
// the Recorder queue is full.
const recorderOfferTimeout = 200 * time.Millisecond

// Renderer is the uncompressed-frame consumer; Render is called
// synchronously on the capture thread.
type Renderer interface {
	Render(frame *model.VideoFrame) error
}

// Decoder is the compressed-frame consumer. EnsureInitialized lazily
// initializes the decoder, or reinitializes it when the geometry or codec
// changes; Submit enqueues
// (with drop-oldest overflow) onto the decoder's own input queue; Teardown
// releases the decoder on an uncompressed-frame arrival or shutdown.
type Decoder interface {
	EnsureInitialized(width, height int32, fourCC model.FourCC) error
	Submit(frame *model.VideoFrameCopy)
	Teardown()
	Initialized() bool
}

// Recorder is the Recorder's ingest surface; Enqueue returns false if the
// frame was dropped because the queue was full past the offer deadline.
type Recorder interface {
	Enabled() bool
	Enqueue(frame *model.VideoFrameCopy, timeout time.Duration) (accepted bool)
}

// SurfaceProvider reports whether a display surface is currently bound;
// the router drops frames (after releasing them) when none is bound.
type SurfaceProvider interface {
	HasSurface() bool
}

// Router implements the per-frame dispatch algorithm.
type Router struct {
	surface  SurfaceProvider
	renderer Renderer
	decoder  Decoder
	recorder Recorder

	mu               sync.Mutex
	lastFourCC       model.FourCC
	lastWidth        int32
	lastHeight       int32
	lastIsCompressed bool
	videoInfo        string

	windowStart time.Time
	windowBytes int64
	bitrate     string

	onVideoInfo      func(string)
	onBitrate        func(string)
	onGeometryChange func(width, height int32)
}

// New builds a Router wired to its three consumers.
func New(surface SurfaceProvider, renderer Renderer, decoder Decoder, recorder Recorder) *Router {
	return &Router{surface: surface, renderer: renderer, decoder: decoder, recorder: recorder, windowStart: time.Now()}
}

// OnVideoInfo/OnBitrate register callbacks fired when the respective OSD
// digest changes.
func (r *Router) OnVideoInfo(f func(string)) { r.onVideoInfo = f }
func (r *Router) OnBitrate(f func(string))   { r.onBitrate = f }

// OnGeometryChange registers a callback fired with the new (width,
// height) whenever a frame's dimensions differ from the previous one —
// the display surface uses this to reallocate its backing bitmap before
// frames of the new size start arriving.
func (r *Router) OnGeometryChange(f func(width, height int32)) { r.onGeometryChange = f }

// Dispatch implements the per-frame algorithm. It always releases frame
// exactly once before returning.
func (r *Router) Dispatch(frame *model.VideoFrame) {
	defer frame.Release()

	if r.surface == nil || !r.surface.HasSurface() {
		return
	}

	r.updateVideoInfo(frame)
	r.accumulateBitrate(int64(len(frame.Data)))

	if r.recorder != nil && r.recorder.Enabled() {
		cp := frame.Copy()
		r.recorder.Enqueue(cp, recorderOfferTimeout)
	}

	if frame.IsCompressed() {
		if err := r.decoder.EnsureInitialized(frame.Width, frame.Height, frame.FourCC); err == nil {
			r.decoder.Submit(frame.Copy())
		}
		return
	}

	if r.decoder != nil && r.decoder.Initialized() {
		r.decoder.Teardown()
	}
	_ = r.renderer.Render(frame)
}

func (r *Router) updateVideoInfo(frame *model.VideoFrame) {
	r.mu.Lock()
	changed := frame.FourCC != r.lastFourCC || frame.Width != r.lastWidth ||
		frame.Height != r.lastHeight || frame.IsCompressed() != r.lastIsCompressed
	r.lastFourCC = frame.FourCC
	r.lastWidth = frame.Width
	r.lastHeight = frame.Height
	r.lastIsCompressed = frame.IsCompressed()
	if changed {
		fps := 0.0
		if frame.FrameRateDen != 0 {
			fps = float64(frame.FrameRateNum) / float64(frame.FrameRateDen)
		}
		r.videoInfo = fmt.Sprintf("%dx%d @ %.2f | %s", frame.Width, frame.Height, fps, frame.FourCC.CodecLabel())
	}
	info := r.videoInfo
	r.mu.Unlock()

	if changed && r.onVideoInfo != nil {
		r.onVideoInfo(info)
	}
	if changed && r.onGeometryChange != nil {
		r.onGeometryChange(frame.Width, frame.Height)
	}
}

func (r *Router) accumulateBitrate(n int64) {
	r.mu.Lock()
	r.windowBytes += n
	elapsed := time.Since(r.windowStart)
	if elapsed < time.Second {
		r.mu.Unlock()
		return
	}
	bitsPerSec := float64(r.windowBytes*8) / elapsed.Seconds()
	var s string
	if bitsPerSec >= 1_000_000 {
		s = fmt.Sprintf("%.1f Mbps", bitsPerSec/1_000_000)
	} else {
		s = fmt.Sprintf("%d Kbps", int(bitsPerSec/1000))
	}
	r.bitrate = s
	r.windowBytes = 0
	r.windowStart = time.Now()
	r.mu.Unlock()

	if r.onBitrate != nil {
		r.onBitrate(s)
	}
}
