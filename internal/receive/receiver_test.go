package receive

import (
	"testing"
	"time"

	"github.com/mackatwentytsuru/ndi-ingest-core/internal/model"
	"github.com/mackatwentytsuru/ndi-ingest-core/internal/ndi"
)

func waitState(t *testing.T, r *Receiver, want ConnectionState, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if r.State() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for state %s, currently %s", want, r.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func syntheticFrame() *ndi.VideoFrame {
	return &ndi.VideoFrame{Width: 4, Height: 2, FourCC: [4]byte{'U', 'Y', 'V', 'Y'}, Data: make([]byte, 16)}
}

// TestConnectionLossFalsePositiveGuard covers the false-positive guard scenario.
func TestConnectionLossFalsePositiveGuard(t *testing.T) {
	rt := ndi.NewFake()
	var released int
	cfg := DefaultConfig()
	cfg.AutoReconnect = false

	r := New(rt, cfg, func(f *model.VideoFrame) {
		released++
		f.Release()
	})

	if err := r.Connect("CamA"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, r, StateConnected, time.Second)

	rt.SetConnected(true)
	rt.PushFrame(syntheticFrame())
	time.Sleep(50 * time.Millisecond)
	if released != 1 {
		t.Fatalf("expected 1 frame released, got %d", released)
	}

	// 4 consecutive nulls while isConnected=true must NOT trip connection-lost.
	for i := 0; i < 4; i++ {
		rt.PushFrame(nil)
	}
	time.Sleep(100 * time.Millisecond)
	if r.State() != StateConnected {
		t.Fatalf("expected still Connected after 4 nulls with isConnected=true, got %s", r.State())
	}

	// 5th null with isConnected=false must trip it.
	rt.SetConnected(false)
	rt.PushFrame(nil)
	waitState(t, r, StateError, time.Second)
}

func TestDisconnectIdempotent(t *testing.T) {
	rt := ndi.NewFake()
	r := New(rt, DefaultConfig(), func(f *model.VideoFrame) { f.Release() })
	if err := r.Connect("CamA"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, r, StateConnected, time.Second)
	r.Disconnect()
	r.Disconnect() // must not panic or block
	if r.State() != StateDisconnected {
		t.Fatalf("expected Disconnected, got %s", r.State())
	}
}

func TestReconnectCycleRestoresSameSource(t *testing.T) {
	rt := ndi.NewFake()
	r := New(rt, DefaultConfig(), func(f *model.VideoFrame) { f.Release() })
	if err := r.Connect("CamA"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, r, StateConnected, time.Second)
	r.Disconnect()
	if err := r.Connect("CamA"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	waitState(t, r, StateConnected, time.Second)
	name, _ := r.LastConnected()
	if name != "CamA" {
		t.Fatalf("expected last connected source CamA, got %q", name)
	}
}
