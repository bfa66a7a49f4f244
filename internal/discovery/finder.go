// Package discovery implements the Finder: a lazy, restartable stream of
// discovered-source snapshots built over the native runtime's finder
// handle. The polling idiom (stop channel checked once per wait-timeout)
// follows the same poll-loop/stop-channel shape used elsewhere in this
// camera.go, generalized from a single-camera retry loop to a discovery
// poll loop.
package discovery

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/mackatwentytsuru/ndi-ingest-core/internal/model"
	"github.com/mackatwentytsuru/ndi-ingest-core/internal/ndi"
)

const waitForSourcesTimeoutMs = 1000

// Finder owns a native finder handle and emits ordered snapshots of
// discovered sources whenever the underlying set changes.
type Finder struct {
	rt ndi.Runtime

	handle atomic.Uintptr // 0 when not running; swap-to-null precedes destroy

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates a Finder bound to rt. rt.Initialize must already have
// succeeded.
func New(rt ndi.Runtime) *Finder {
	return &Finder{rt: rt}
}

// StartDiscovery starts the poll loop and returns a channel of ordered
// source-set snapshots. Calling StartDiscovery while already running
// returns an error and no channel; callers call StopDiscovery first to get
// a fresh stream.
func (f *Finder) StartDiscovery(showLocalSources bool, groups string, extraIPs []string) (<-chan []model.SourceDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return nil, model.NewError(model.KindConnectionFailed, "discovery already running", nil)
	}

	h, err := f.rt.CreateFinder(showLocalSources, groups, extraIPs)
	if err != nil {
		if err == ndi.ErrNotInitialized {
			return nil, model.NewError(model.KindRuntimeNotInitialized, "native runtime not initialized", err)
		}
		return nil, model.NewError(model.KindHandleCreationFailed, "create finder", err)
	}
	f.handle.Store(h)
	f.running = true
	f.stop = make(chan struct{})
	f.done = make(chan struct{})

	out := make(chan []model.SourceDescriptor, 4)
	go f.pollLoop(out)
	return out, nil
}

func (f *Finder) pollLoop(out chan<- []model.SourceDescriptor) {
	defer close(f.done)
	defer close(out)

	var last []model.SourceDescriptor
	haveLast := false

	for {
		select {
		case <-f.stop:
			return
		default:
		}

		h := f.handle.Load()
		if h == 0 {
			return
		}
		changed := f.rt.WaitForSources(h, waitForSourcesTimeoutMs)

		select {
		case <-f.stop:
			return
		default:
		}

		h = f.handle.Load()
		if h == 0 {
			return
		}
		names := f.rt.CurrentSources(h)
		snapshot := make([]model.SourceDescriptor, len(names))
		for i, n := range names {
			snapshot[i] = model.SourceDescriptor{Name: n}
		}

		if changed || !haveLast || !model.SameSet(last, snapshot) {
			select {
			case out <- snapshot:
				last = snapshot
				haveLast = true
			case <-f.stop:
				return
			}
		}
	}
}

// StopDiscovery idempotently tears down the native finder, safe to call
// concurrently with stream cancellation and an explicit caller.
func (f *Finder) StopDiscovery() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	stop, done := f.stop, f.done
	f.running = false
	f.mu.Unlock()

	close(stop)
	<-done

	if h := f.handle.Swap(0); h != 0 {
		f.rt.DestroyFinder(h)
	}
	log.Printf("discovery: stopped")
}
