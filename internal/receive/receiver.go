// Package receive implements the Receiver state machine: it owns the
// native receiver handle, drives the capture loop, and routes every
// captured frame to a FrameHandler. The health-metrics/atomic-counter
// idiom and the reconnect backoff are generalized from a single-camera
// CamWindow (camera.go) and its decodeLoop (video.go), which did the same
// job for a single hardcoded RTSP source instead of a discovered NDI one.
package receive

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mackatwentytsuru/ndi-ingest-core/internal/model"
	"github.com/mackatwentytsuru/ndi-ingest-core/internal/ndi"
)

// ConnectionState is the Receiver's externally visible state.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

const (
	connectionLostThreshold = 5
	captureTimeoutMs        = 1000

	reconnectDelay    = 3000 * time.Millisecond
	reconnectMaxTries = 5

	asyncDisconnectJoin = 3 * time.Second
	syncDisconnectJoin  = 500 * time.Millisecond
)

// Config holds the fixed-enumeration receiver options.
type Config struct {
	Bandwidth        ndi.Bandwidth
	ColorFormat      ndi.ColorFormat
	AllowVideoFields bool
	AutoReconnect    bool
}

// DefaultConfig matches the stated default: BGRX_BGRA is
// display-friendly because the app-layer decoder handles compressed
// frames directly.
func DefaultConfig() Config {
	return Config{
		Bandwidth:        ndi.BandwidthHighest,
		ColorFormat:      ndi.ColorFormatBGRXBGRA,
		AllowVideoFields: false,
		AutoReconnect:    true,
	}
}

// FrameHandler receives every captured video frame; it MUST call
// frame.Release() exactly once (FrameRouter does this).
type FrameHandler func(frame *model.VideoFrame)

// Geometry is the most recently published frame shape, snapshotted so the
// Recorder can read "the current stream shape" without a data race (see
// DESIGN.md's open-question decision on reading volatile fields live).
type Geometry struct {
	Width, Height int32
	FourCC        model.FourCC
	Published     bool
}

// Metrics is a point-in-time health snapshot, mirroring camera.go's
// metricsTimer computation (fps/bitrate/drops/health 0-5).
type Metrics struct {
	FPS          float64
	BitrateKbps  float64
	DropsPct     float64
	Health       int // 0..5
	State        ConnectionState
	Reconnecting bool
	RetryCount   int
}

// Receiver owns a native receiver handle, the capture loop, and the
// connection-health/auto-reconnect policy.
type Receiver struct {
	rt      ndi.Runtime
	cfg     Config
	handler FrameHandler

	handle atomic.Uintptr // swap-to-null precedes native destroy

	mu          sync.Mutex
	state       ConnectionState
	sourceName  string
	lastErr     string
	running     bool
	stop        chan struct{}
	done        chan struct{}

	everReceived     atomic.Bool
	consecutiveNulls atomic.Int64

	framesDecoded atomic.Int64
	bytesVideo    atomic.Int64
	framesDropped atomic.Int64
	lastMetricsAt time.Time
	prevFrames    int64
	prevBytes     int64
	prevDrops     int64

	geometry atomic.Value // Geometry

	reconnectMu      sync.Mutex
	reconnecting     bool
	reconnectAttempt int
	reconnectTimer   *time.Timer
	reconnectCancel  chan struct{}

	lastSourceName string
	lastSourceURL  string

	onStateChange func(ConnectionState)
}

// New constructs a Receiver. handler is invoked on the capture goroutine
// for every frame; it must release the frame.
func New(rt ndi.Runtime, cfg Config, handler FrameHandler) *Receiver {
	r := &Receiver{rt: rt, cfg: cfg, handler: handler, state: StateDisconnected}
	r.geometry.Store(Geometry{})
	return r
}

// OnStateChange registers a callback invoked whenever the connection state
// transitions (used by the recorder-stop-on-disconnect rule).
func (r *Receiver) OnStateChange(f func(ConnectionState)) { r.onStateChange = f }

func (r *Receiver) setState(s ConnectionState, errMsg string) {
	r.mu.Lock()
	r.state = s
	r.lastErr = errMsg
	r.mu.Unlock()
	if r.onStateChange != nil {
		r.onStateChange(s)
	}
}

// State returns the current connection state.
func (r *Receiver) State() ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Geometry returns the most recently published frame shape; Published is
// false if no frame has been dispatched yet.
func (r *Receiver) Geometry() Geometry {
	return r.geometry.Load().(Geometry)
}

// Connect is legal from any state; if currently Connected or Connecting it
// first performs a disconnect.
func (r *Receiver) Connect(sourceName string) error {
	r.cancelReconnect()
	if r.State() != StateDisconnected {
		r.disconnect(asyncDisconnectJoin)
	}

	r.setState(StateConnecting, "")

	h, err := r.rt.CreateReceiver(ndi.RecvCreateSettings{
		SourceName:       sourceName,
		Bandwidth:        r.cfg.Bandwidth,
		ColorFormat:      r.cfg.ColorFormat,
		AllowVideoFields: r.cfg.AllowVideoFields,
	})
	if err != nil {
		r.setState(StateError, err.Error())
		r.maybeScheduleReconnect(sourceName)
		return model.NewError(model.KindHandleCreationFailed, "create receiver", err)
	}

	r.handle.Store(h)
	r.everReceived.Store(false)
	r.consecutiveNulls.Store(0)

	r.mu.Lock()
	r.sourceName = sourceName
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	stop, done := r.stop, r.done
	r.mu.Unlock()

	go r.captureLoop(stop, done)

	r.setState(StateConnected, "")
	r.resetReconnectOnSuccess(sourceName, "")
	return nil
}

// Disconnect tears down the receiver asynchronously (3 s join bound). It
// is legal from any state and idempotent.
func (r *Receiver) Disconnect() {
	r.cancelReconnect()
	r.disconnect(asyncDisconnectJoin)
	r.setState(StateDisconnected, "")
}

// DisconnectSync is the synchronous variant (500 ms join bound). Per the
// open-question resolution in DESIGN.md, this still joins the capture
// goroutine before destroying the native handle — it never skips the join,
// since doing so could destroy the receiver while a capture call is still
// in flight.
func (r *Receiver) DisconnectSync() {
	r.cancelReconnect()
	r.disconnect(syncDisconnectJoin)
	r.setState(StateDisconnected, "")
}

// disconnect performs the required shutdown ordering
// invariant 4: clear the running flag, join the capture goroutine with a
// bound, then destroy the native handle only after the goroutine is
// confirmed stopped. If the bound expires, the handle is cleared at once
// and its destroy waits in the background for the goroutine to exit.
func (r *Receiver) disconnect(joinBound time.Duration) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		if h := r.handle.Swap(0); h != 0 {
			r.rt.DestroyReceiver(h)
		}
		return
	}
	r.running = false
	stop, done := r.stop, r.done
	r.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(joinBound):
		log.Printf("receive: capture loop did not stop within %s", joinBound)
		if h := r.handle.Swap(0); h != 0 {
			go func() {
				<-done
				r.rt.DestroyReceiver(h)
			}()
		}
		return
	}

	if h := r.handle.Swap(0); h != 0 {
		r.rt.DestroyReceiver(h)
	}
}

func (r *Receiver) captureLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		h := r.handle.Load()
		if h == 0 {
			return
		}

		ft, frame, err := r.rt.CaptureV2(h, captureTimeoutMs)
		if err != nil {
			log.Printf("receive: capture error: %v", err)
			continue
		}

		switch ft {
		case ndi.FrameTypeVideo:
			r.everReceived.Store(true)
			r.consecutiveNulls.Store(0)
			r.dispatch(h, frame)
		case ndi.FrameTypeNone:
			r.consecutiveNulls.Add(1)
			if r.connectionLost(h) {
				log.Printf("receive: connection lost for %q", r.sourceNameSnapshot())
				r.onConnectionLost()
				return
			}
		default:
			// audio/metadata/status-change: not routed by this core.
		}
	}
}

// connectionLost implements the triple-guard against false-positive loss detection.
func (r *Receiver) connectionLost(h uintptr) bool {
	if !r.everReceived.Load() {
		return false
	}
	if r.consecutiveNulls.Load() < connectionLostThreshold {
		return false
	}
	return !r.rt.IsConnected(h)
}

func (r *Receiver) dispatch(h uintptr, nf *ndi.VideoFrame) {
	fcc := fourCCFromNative(nf.FourCC)
	r.framesDecoded.Add(1)
	r.bytesVideo.Add(int64(len(nf.Data)))

	r.geometry.Store(Geometry{Width: nf.Width, Height: nf.Height, FourCC: fcc, Published: true})

	vf := model.NewVideoFrame(nf.Width, nf.Height, fcc, nf.LineStride, nf.FrameRateNum, nf.FrameRateDen, nf.Timestamp, nf.Data, func() {
		r.rt.FreeVideo(h, nf)
	})
	r.handler(vf)
}

func (r *Receiver) onConnectionLost() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.setState(StateError, "connection lost")
	r.maybeScheduleReconnect(r.sourceNameSnapshot())
}

func (r *Receiver) sourceNameSnapshot() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sourceName
}

// fourCCFromNative maps the native 4-byte code to the model vocabulary.
func fourCCFromNative(b [4]byte) model.FourCC {
	switch string(b[:]) {
	case "UYVY":
		return model.FourCCUYVY
	case "BGRA":
		return model.FourCCBGRA
	case "BGRX":
		return model.FourCCBGRX
	case "RGBA":
		return model.FourCCRGBA
	case "RGBX":
		return model.FourCCRGBX
	case "NV12":
		return model.FourCCNV12
	case "I420", "YV12":
		return model.FourCCI420
	case "AVC1", "H264":
		return model.FourCCH264
	case "HEVC", "HVC1":
		return model.FourCCHEVC
	default:
		return model.FourCCUnknown
	}
}

// Performance mirrors the NDI receiver's performance() operation.
func (r *Receiver) Performance() ndi.Performance {
	h := r.handle.Load()
	if h == 0 {
		return ndi.Performance{TotalVideoFrames: -1}
	}
	return r.rt.GetPerformance(h)
}

// MetricsSnapshot computes the same fps/bitrate/drops/health figures as
// a periodic metrics timer, over the elapsed wall-clock
// interval since the previous snapshot.
func (r *Receiver) MetricsSnapshot() Metrics {
	now := time.Now()
	frames := r.framesDecoded.Load()
	bytes := r.bytesVideo.Load()
	drops := r.framesDropped.Load()

	var elapsed time.Duration
	if !r.lastMetricsAt.IsZero() {
		elapsed = now.Sub(r.lastMetricsAt)
	}
	dFrames := frames - r.prevFrames
	dBytes := bytes - r.prevBytes
	dDrops := drops - r.prevDrops
	r.lastMetricsAt = now
	r.prevFrames, r.prevBytes, r.prevDrops = frames, bytes, drops

	m := Metrics{State: r.State()}
	if elapsed > 0 {
		secs := elapsed.Seconds()
		m.FPS = float64(dFrames) / secs
		m.BitrateKbps = float64(dBytes*8) / secs / 1000
	}
	total := dFrames + dDrops
	if total > 0 {
		m.DropsPct = 100 * float64(dDrops) / float64(total)
	}
	m.Health = healthScore(m.FPS, m.DropsPct, m.State)

	r.reconnectMu.Lock()
	m.Reconnecting = r.reconnecting
	m.RetryCount = r.reconnectAttempt
	r.reconnectMu.Unlock()
	return m
}

// healthScore condenses fps/drops/state into the 0-5 chip shown by
// camera.go's health overlay.
func healthScore(fps, dropsPct float64, state ConnectionState) int {
	if state != StateConnected {
		return 0
	}
	score := 5
	switch {
	case fps < 1:
		score = 1
	case fps < 10:
		score = 2
	case fps < 20:
		score = 3
	case fps < 25:
		score = 4
	}
	if dropsPct > 10 && score > 1 {
		score--
	}
	if dropsPct > 30 {
		score = 1
	}
	return score
}
