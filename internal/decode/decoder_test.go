package decode

import (
	"testing"
	"time"

	"github.com/mackatwentytsuru/ndi-ingest-core/internal/model"
)

// These cover the parts of the Decoder state machine that do not require
// an actual FFmpeg codec to be opened (CI/test hosts may lack libndi's
// usual neighbors but never ship a full ffmpeg dev stack either) — the
// EnsureInitialized happy path is exercised at integration level, not here.

func TestDecoderStartsUninitialized(t *testing.T) {
	d := New(nil)
	if d.Initialized() {
		t.Fatal("expected fresh Decoder to be uninitialized")
	}
}

func TestSubmitBeforeInitIsNoop(t *testing.T) {
	d := New(nil)
	cp := &model.VideoFrameCopy{FourCC: model.FourCCH264, Data: []byte{0, 0, 0, 1}}
	done := make(chan struct{})
	go func() {
		d.Submit(cp)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked with no input queue allocated")
	}
}

func TestTeardownBeforeInitIsNoop(t *testing.T) {
	d := New(nil)
	d.Teardown()
	if d.Initialized() {
		t.Fatal("Teardown should leave an uninitialized decoder uninitialized")
	}
}

func TestRejectsUnsupportedFourCC(t *testing.T) {
	d := New(nil)
	err := d.EnsureInitialized(640, 360, model.FourCCUYVY)
	if err == nil {
		t.Fatal("expected an error for a non-compressed FourCC")
	}
}
