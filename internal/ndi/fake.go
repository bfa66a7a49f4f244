package ndi

import (
	"sync"
	"time"
)

// Fake is an in-memory Runtime used by internal/discovery and
// internal/receive tests so the pipeline's logic can be exercised without a
// real libndi installation. Tests drive it via SetSources/PushFrame/
// SetConnected rather than touching native memory.
type Fake struct {
	mu sync.Mutex

	findHandle uintptr
	recvHandle uintptr
	nextHandle uintptr

	sources      []string
	waitSeen     []string
	waitSeenInit bool
	connected    bool

	frames chan *VideoFrame
	perf   Performance
}

// NewFake returns a ready-to-use Fake runtime.
func NewFake() *Fake {
	return &Fake{frames: make(chan *VideoFrame, 64)}
}

func (f *Fake) Initialize() error { return nil }
func (f *Fake) Destroy()          {}
func (f *Fake) Version() string  { return "fake-1.0" }

func (f *Fake) alloc() uintptr {
	f.nextHandle++
	return f.nextHandle
}

func (f *Fake) CreateFinder(showLocal bool, groups string, extraIPs []string) (uintptr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findHandle = f.alloc()
	return f.findHandle, nil
}

func (f *Fake) DestroyFinder(h uintptr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h == f.findHandle {
		f.findHandle = 0
	}
}

// WaitForSources mimics NDIlib_find_wait_for_sources's change-detection
// semantics: it reports true the first time it observes the current source
// set differ from what it last reported, and false otherwise, so repeated
// polling over an unchanged set does not manufacture spurious "changed"
// signals, with emission-minimality (no duplicate emission for an unchanged set).
func (f *Fake) WaitForSources(h uintptr, timeoutMs int) bool {
	f.mu.Lock()
	changed := !f.waitSeenInit || !sameStrings(f.waitSeen, f.sources)
	f.waitSeen = append([]string(nil), f.sources...)
	f.waitSeenInit = true
	f.mu.Unlock()
	if !changed {
		// avoid busy-spinning the poll loop under test; a real
		// NDIlib_find_wait_for_sources call blocks for up to timeoutMs.
		time.Sleep(20 * time.Millisecond)
	}
	return changed
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		seen[s]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}

func (f *Fake) CurrentSources(h uintptr) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sources))
	copy(out, f.sources)
	return out
}

// SetSources updates the discoverable source-name set the fake reports.
func (f *Fake) SetSources(names []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append([]string(nil), names...)
}

func (f *Fake) CreateReceiver(s RecvCreateSettings) (uintptr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recvHandle = f.alloc()
	return f.recvHandle, nil
}

func (f *Fake) DestroyReceiver(h uintptr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h == f.recvHandle {
		f.recvHandle = 0
	}
}

func (f *Fake) Connect(h uintptr, sourceName string) bool {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return true
}

// SetConnected lets a test simulate the native is-connected query flipping,
// independent of Connect, to drive the connection-lost false-positive guard.
func (f *Fake) SetConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}

// PushFrame enqueues a synthetic video frame to be returned by the next
// CaptureV2 call; a nil frame models a capture timeout (FrameTypeNone).
func (f *Fake) PushFrame(v *VideoFrame) { f.frames <- v }

func (f *Fake) CaptureV2(h uintptr, timeoutMs int) (FrameType, *VideoFrame, error) {
	select {
	case v := <-f.frames:
		if v == nil {
			return FrameTypeNone, nil, nil
		}
		return FrameTypeVideo, v, nil
	case <-time.After(10 * time.Millisecond):
		// mimics a real capture call blocking up to timeoutMs; throttled
		// short so tests stay fast without busy-spinning the loop.
		return FrameTypeNone, nil, nil
	}
}

func (f *Fake) FreeVideo(h uintptr, v *VideoFrame) {
	f.mu.Lock()
	f.perf.TotalVideoFrames++
	f.mu.Unlock()
}

func (f *Fake) GetPerformance(h uintptr) Performance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perf
}

func (f *Fake) IsConnected(h uintptr) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}
