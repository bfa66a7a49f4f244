// Package decode implements the hardware decoder adapter:
// a lazily-initialized codec feeding a display surface, driven by an
// input goroutine that drains one bounded queue and an output goroutine
// that polls the codec for decoded pictures.
// The decode loop (SendPacket/ReceiveFrame, EAGAIN/EOF handling) and the
// scale-to-RGBA step are generalized from the original per-camera decode and
// bgraScaler in video.go, which did the same job for a demuxed RTSP
// elementary stream instead of a queue of pre-framed compressed buffers.
package decode

import (
	"log"
	"sync"
	"time"

	"github.com/asticode/go-astiav"

	"github.com/mackatwentytsuru/ndi-ingest-core/internal/model"
	"github.com/mackatwentytsuru/ndi-ingest-core/internal/render"
)

const (
	inputQueueSize   = 5
	inputPollPeriod  = 100 * time.Millisecond
	outputPollPeriod = 10 * time.Millisecond
	joinBound        = 2 * time.Second
)

// Decoder feeds a software H.264/H.265 decoder (astiav) whose output is
// scaled to RGBA and blitted to the bound Surface, standing in for the
// "surface-mode" hardware decode path — there is no
// portable Go surface-mode decode API in this stack, so the adapter
// reaches the same destination (pixels land on the shared Surface, never
// read back by a caller) via software decode + the same BT.601 scale path
// the Renderer uses.
type Decoder struct {
	surface *render.Renderer // shared sink; also satisfies render.Surface binding

	mu          sync.Mutex
	initialized bool
	width       int32
	height      int32
	fourCC      model.FourCC

	codecCtx *astiav.CodecContext
	parser   *astiav.CodecParserContext
	codec    *astiav.Codec

	inputQueue chan *model.VideoFrameCopy
	stop       chan struct{}
	doneIn     chan struct{}
	doneOut    chan struct{}

	framesDecoded int64
	lastRateNum   int32
	lastRateDen   int32
}

// New builds a Decoder that blits its decoded output through surface.
func New(surface *render.Renderer) *Decoder {
	return &Decoder{surface: surface}
}

func (d *Decoder) Initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

// EnsureInitialized takes the decoder mutex and, under it, returns at once
// when the codec is already initialized for the same (width,height,fourCC);
// otherwise it tears down any running codec and initializes a new one.
// There is no lock-free outer check, and the surface binding is not
// consulted.
func (d *Decoder) EnsureInitialized(width, height int32, fourCC model.FourCC) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized && d.width == width && d.height == height && d.fourCC == fourCC {
		return nil
	}
	if d.initialized {
		d.teardownLocked()
	}
	return d.initLocked(width, height, fourCC)
}

func (d *Decoder) initLocked(width, height int32, fourCC model.FourCC) error {
	var codecID astiav.CodecID
	switch fourCC {
	case model.FourCCH264:
		codecID = astiav.CodecIDH264
	case model.FourCCHEVC:
		codecID = astiav.CodecIDHevc
	default:
		return model.NewError(model.KindUnsupportedPixelFormat, fourCC.String(), nil)
	}

	codec := astiav.FindDecoder(codecID)
	if codec == nil {
		return model.NewError(model.KindHandleCreationFailed, "find decoder for "+fourCC.String(), nil)
	}
	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return model.NewError(model.KindHandleCreationFailed, "alloc codec context", nil)
	}
	if err := ctx.Open(codec, nil); err != nil {
		ctx.Free()
		return model.NewError(model.KindHandleCreationFailed, "open codec", err)
	}

	d.codec = codec
	d.codecCtx = ctx
	d.parser = astiav.AllocCodecParserContext(codec)
	d.width, d.height, d.fourCC = width, height, fourCC
	d.initialized = true

	d.inputQueue = make(chan *model.VideoFrameCopy, inputQueueSize)
	d.stop = make(chan struct{})
	d.doneIn = make(chan struct{})
	d.doneOut = make(chan struct{})

	go d.inputLoop()
	go d.outputLoop()

	log.Printf("decode: initialized %s %dx%d", fourCC, width, height)
	return nil
}

// Submit enqueues a compressed frame for decode, evicting the oldest
// queued entry if the bounded input queue is full (real-time over
// completeness).
func (d *Decoder) Submit(frame *model.VideoFrameCopy) {
	d.mu.Lock()
	q := d.inputQueue
	d.mu.Unlock()
	if q == nil {
		return
	}
	for {
		select {
		case q <- frame:
			return
		default:
			select {
			case <-q:
			default:
			}
		}
	}
}

func (d *Decoder) inputLoop() {
	defer close(d.doneIn)
	for {
		select {
		case <-d.stop:
			return
		case frame, ok := <-d.inputQueue:
			if !ok {
				return
			}
			d.feed(frame)
		case <-time.After(inputPollPeriod):
		}
	}
}

func (d *Decoder) feed(frame *model.VideoFrameCopy) {
	d.mu.Lock()
	ctx, parser := d.codecCtx, d.parser
	d.mu.Unlock()
	if ctx == nil {
		return
	}

	pkt := astiav.AllocPacket()
	defer pkt.Free()

	data := frame.Data
	for len(data) > 0 {
		consumed, err := parser.ParseData(ctx, pkt, data, astiav.NoPtsValue, astiav.NoPtsValue, 0)
		if err != nil {
			log.Printf("decode: parse error: %v", err)
			return
		}
		if consumed <= 0 {
			break
		}
		data = data[consumed:]
		if pkt.Size() == 0 {
			continue
		}
		pkt.SetPts(frame.Timestamp)
		if err := ctx.SendPacket(pkt); err != nil && err != astiav.ErrEagain {
			log.Printf("decode: send packet: %v", err)
		}
	}
}

func (d *Decoder) outputLoop() {
	defer close(d.doneOut)
	f := astiav.AllocFrame()
	defer f.Free()

	for {
		select {
		case <-d.stop:
			return
		default:
		}

		d.mu.Lock()
		ctx := d.codecCtx
		d.mu.Unlock()
		if ctx == nil {
			time.Sleep(outputPollPeriod)
			continue
		}

		err := ctx.ReceiveFrame(f)
		if err != nil {
			if err == astiav.ErrEagain || err == astiav.ErrEof {
				time.Sleep(outputPollPeriod)
				continue
			}
			log.Printf("decode: receive frame: %v", err)
			continue
		}

		d.framesDecoded++
		d.renderDecoded(f)
		f.Unref()
	}
}

// renderDecoded scales the decoded picture to RGBA using the same
// BT.601 pipeline the uncompressed Renderer uses and blits it to the
// shared Surface, so decoded output reaches the display without the
// caller ever reading pixels back out ("surface-mode").
func (d *Decoder) renderDecoded(f *astiav.Frame) {
	if d.surface == nil {
		return
	}
	fourCC, stride, data, err := nv12ToBGRA(f)
	if err != nil {
		log.Printf("decode: scale error: %v", err)
		return
	}
	vf := model.NewVideoFrame(int32(f.Width()), int32(f.Height()), fourCC, int32(stride), d.lastRateNum, d.lastRateDen, f.Pts(), data, func() {})
	if err := d.surface.Render(vf); err != nil {
		log.Printf("decode: render: %v", err)
	}
}

func (d *Decoder) Teardown() {
	d.mu.Lock()
	if !d.initialized {
		d.mu.Unlock()
		return
	}
	d.initialized = false
	stop := d.stop
	d.mu.Unlock()

	close(stop)
	waitBounded(d.doneIn, joinBound)
	waitBounded(d.doneOut, joinBound)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.teardownLocked()
}

func (d *Decoder) teardownLocked() {
	if d.codecCtx != nil {
		d.codecCtx.Free()
		d.codecCtx = nil
	}
	d.inputQueue = nil
}

func waitBounded(done <-chan struct{}, bound time.Duration) {
	select {
	case <-done:
	case <-time.After(bound):
		log.Printf("decode: worker did not stop within %s", bound)
	}
}

// FramesDecoded returns the running decoded-frame counter, for metrics.
func (d *Decoder) FramesDecoded() int64 { return d.framesDecoded }
