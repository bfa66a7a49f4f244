package discovery

import (
	"testing"
	"time"

	"github.com/mackatwentytsuru/ndi-ingest-core/internal/ndi"
)

// TestDiscoveryOnly covers the scenario where a publisher appears then
// disappears, and the stream emits exactly one snapshot per change.
func TestDiscoveryOnly(t *testing.T) {
	rt := ndi.NewFake()
	f := New(rt)
	rt.SetSources([]string{"CamA (HostX)"})

	out, err := f.StartDiscovery(true, "", nil)
	if err != nil {
		t.Fatalf("StartDiscovery: %v", err)
	}

	select {
	case snap := <-out:
		if len(snap) != 1 || snap[0].Name != "CamA (HostX)" {
			t.Fatalf("unexpected snapshot: %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for appearance snapshot")
	}

	rt.SetSources(nil)

	select {
	case snap := <-out:
		if len(snap) != 0 {
			t.Fatalf("expected empty snapshot, got %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for removal snapshot")
	}

	f.StopDiscovery()
	if f.handle.Load() != 0 {
		t.Fatal("expected handle to be cleared after stop")
	}
}

// TestEmissionMinimality covers the invariant that an
// unchanged source set yields at most one emission.
func TestEmissionMinimality(t *testing.T) {
	rt := ndi.NewFake()
	f := New(rt)
	rt.SetSources([]string{"CamA"})

	out, err := f.StartDiscovery(true, "", nil)
	if err != nil {
		t.Fatalf("StartDiscovery: %v", err)
	}
	defer f.StopDiscovery()

	select {
	case <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the first snapshot")
	}

	select {
	case snap := <-out:
		t.Fatalf("unexpected second snapshot for unchanged set: %+v", snap)
	case <-time.After(1200 * time.Millisecond):
		// expected: no further emissions while the set is unchanged
	}
}

func TestStopDiscoveryIdempotent(t *testing.T) {
	rt := ndi.NewFake()
	f := New(rt)
	if _, err := f.StartDiscovery(true, "", nil); err != nil {
		t.Fatalf("StartDiscovery: %v", err)
	}
	f.StopDiscovery()
	f.StopDiscovery() // must not panic or block
}
