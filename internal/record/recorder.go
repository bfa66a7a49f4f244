// Package record implements the Recorder: a single
// background writer draining a bounded frame queue into a passthrough or
// software-encode fragmented-MP4 file, filenamed by capture time,
// resolution and codec.
package record

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mackatwentytsuru/ndi-ingest-core/internal/model"
)

const (
	queueSize      = 30
	writerJoinWait = 3 * time.Second
)

// Recorder drains a bounded queue of VideoFrameCopy entries onto a single
// background writer goroutine and muxes them into a fragmented MP4 file,
// either by passthrough (compressed source) or by software H.264 encode
// (uncompressed source).
type Recorder struct {
	mu        sync.Mutex
	dir       string
	recording atomic.Bool

	queue chan *model.VideoFrameCopy
	stop  chan struct{}
	done  chan struct{}

	muxer  *passthroughMuxer
	encode *encodeSession
	file   *os.File

	filename      string
	framesWritten int64
	framesDropped int64
}

// New constructs a Recorder that writes files under dir.
func New(dir string) *Recorder {
	return &Recorder{dir: dir}
}

// Enabled reports whether a recording is currently in progress; the
// Router only copies and enqueues frames while this is true.
func (r *Recorder) Enabled() bool { return r.recording.Load() }

// Enqueue offers frame to the writer queue, waiting up to timeout before
// dropping it (200ms-offer-then-drop backpressure
// policy).
func (r *Recorder) Enqueue(frame *model.VideoFrameCopy, timeout time.Duration) bool {
	r.mu.Lock()
	q := r.queue
	r.mu.Unlock()
	if q == nil {
		return false
	}
	select {
	case q <- frame:
		return true
	case <-time.After(timeout):
		atomic.AddInt64(&r.framesDropped, 1)
		log.Printf("record: queue full, dropping frame")
		return false
	}
}

// StartRecording begins a new recording for a stream with the given
// geometry. width/height/fourCC/frameRate are a snapshot the caller reads
// once from the live Receiver at call time (volatile-field
// resolution) — Recorder itself holds no reference to the Receiver. A zero
// width or height (nothing published yet) is rejected with
// UnsupportedRecordingFormat.
func (r *Recorder) StartRecording(width, height int32, fourCC model.FourCC, frameRateNum, frameRateDen int32) (string, error) {
	if width <= 0 || height <= 0 {
		return "", model.NewError(model.KindUnsupportedRecordingFormat, "no published video geometry", nil)
	}
	if !r.recording.CompareAndSwap(false, true) {
		return "", fmt.Errorf("recording already in progress")
	}

	name := fmt.Sprintf("NDI_%s_%dx%d_%s.mp4", time.Now().Format("20060102_150405"), width, height, codecLabelFor(fourCC))
	path := filepath.Join(r.dir, name)

	f, err := os.Create(path)
	if err != nil {
		r.recording.Store(false)
		return "", fmt.Errorf("create recording file: %w", err)
	}

	r.mu.Lock()
	r.file = f
	r.filename = name
	r.queue = make(chan *model.VideoFrameCopy, queueSize)
	r.stop = make(chan struct{})
	r.done = make(chan struct{})

	if fourCC.IsCompressed() {
		r.muxer = newPassthroughMuxer(f, fourCC, width, height)
		r.encode = nil
	} else {
		r.muxer = newPassthroughMuxer(f, model.FourCCH264, width, height)
		enc, encErr := newEncodeSession(width, height, frameRateNum, frameRateDen)
		if encErr != nil {
			r.mu.Unlock()
			f.Close()
			r.recording.Store(false)
			return "", encErr
		}
		r.encode = enc
	}
	queue, stop, done := r.queue, r.stop, r.done
	r.mu.Unlock()

	go r.writerLoop(queue, stop, done)
	log.Printf("record: started %s", path)
	return name, nil
}

// StopRecording idempotently ends the active recording, joining the
// writer thread with a bound.
func (r *Recorder) StopRecording() error {
	if !r.recording.CompareAndSwap(true, false) {
		return nil
	}
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(writerJoinWait):
		log.Printf("record: writer did not stop within %s", writerJoinWait)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encode != nil {
		r.encode.Close()
		r.encode = nil
	}
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	r.queue = nil
	log.Printf("record: stopped %s (%d frames written, %d dropped)", r.filename, r.framesWritten, r.framesDropped)
	return nil
}

func (r *Recorder) writerLoop(queue chan *model.VideoFrameCopy, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			r.drain(queue)
			return
		case frame := <-queue:
			r.write(frame)
		}
	}
}

func (r *Recorder) drain(queue chan *model.VideoFrameCopy) {
	for {
		select {
		case frame := <-queue:
			r.write(frame)
		default:
			return
		}
	}
}

func (r *Recorder) write(frame *model.VideoFrameCopy) {
	if frame.IsCompressed() {
		if err := r.muxer.WriteSample(frame.Data, frame.Timestamp); err != nil {
			log.Printf("record: mux error: %v", err)
			return
		}
		atomic.AddInt64(&r.framesWritten, 1)
		return
	}

	if r.encode == nil {
		return
	}
	packets, err := r.encode.Encode(frame, frame.Timestamp)
	if err != nil {
		log.Printf("record: encode error: %v", err)
		return
	}
	for _, pkt := range packets {
		if err := r.muxer.WriteSample(pkt, frame.Timestamp); err != nil {
			log.Printf("record: mux error: %v", err)
			continue
		}
		atomic.AddInt64(&r.framesWritten, 1)
	}
}

func codecLabelFor(fourCC model.FourCC) string {
	switch fourCC {
	case model.FourCCHEVC:
		return "H265"
	default:
		return "H264"
	}
}
