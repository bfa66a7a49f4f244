package record

import (
	"testing"
	"time"

	"github.com/mackatwentytsuru/ndi-ingest-core/internal/model"
)

func TestEnqueueBeforeStartIsRejected(t *testing.T) {
	r := New(t.TempDir())
	accepted := r.Enqueue(&model.VideoFrameCopy{}, 10*time.Millisecond)
	if accepted {
		t.Fatal("expected Enqueue to reject frames with no active recording")
	}
}

func TestStopRecordingIdempotent(t *testing.T) {
	r := New(t.TempDir())
	if err := r.StopRecording(); err != nil {
		t.Fatalf("StopRecording on idle recorder: %v", err)
	}
}

// TestQueueBackpressureDropsUnderSlowConsumer fills the bounded queue
// directly (bypassing the writer goroutine by holding its only consumer
// slot) and verifies Enqueue drops rather than blocking past its timeout
// under a slow consumer.
func TestQueueBackpressureDropsUnderSlowConsumer(t *testing.T) {
	r := &Recorder{queue: make(chan *model.VideoFrameCopy, 1)}
	r.recording.Store(true)

	if !r.Enqueue(&model.VideoFrameCopy{}, 10*time.Millisecond) {
		t.Fatal("expected first frame to be accepted into the empty queue")
	}

	start := time.Now()
	accepted := r.Enqueue(&model.VideoFrameCopy{}, 30*time.Millisecond)
	elapsed := time.Since(start)

	if accepted {
		t.Fatal("expected second frame to be dropped once the queue is full")
	}
	if elapsed < 30*time.Millisecond {
		t.Fatalf("expected Enqueue to wait out its timeout, returned after %s", elapsed)
	}
	if r.framesDropped != 1 {
		t.Fatalf("expected framesDropped=1, got %d", r.framesDropped)
	}
}

func TestCodecLabelFor(t *testing.T) {
	if codecLabelFor(model.FourCCH264) != "H264" {
		t.Fatal("expected H264 label")
	}
	if codecLabelFor(model.FourCCHEVC) != "H265" {
		t.Fatal("expected H265 label")
	}
}
