package record

import (
	"bytes"
	"testing"

	"github.com/mackatwentytsuru/ndi-ingest-core/internal/model"
)

func annexB(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		out = append(out, 0, 0, 0, 1)
		out = append(out, n...)
	}
	return out
}

func TestPassthroughMuxerWaitsForCSD(t *testing.T) {
	var buf bytes.Buffer
	m := newPassthroughMuxer(&buf, model.FourCCH264, 640, 360)

	idr := append([]byte{0x65}, make([]byte, 16)...)
	if err := m.WriteSample(annexB(idr), 0); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatal("expected no output before SPS/PPS observed")
	}
	if m.initialized {
		t.Fatal("muxer should not be initialized without CSD")
	}
}

func TestPassthroughMuxerWritesInitSegmentOnceCSDArrives(t *testing.T) {
	var buf bytes.Buffer
	m := newPassthroughMuxer(&buf, model.FourCCH264, 640, 360)

	sps := append([]byte{0x67}, make([]byte, 8)...)
	pps := []byte{0x68, 0xce, 0x3c, 0x80}
	idr := append([]byte{0x65}, make([]byte, 16)...)

	if err := m.WriteSample(annexB(sps, pps, idr), 0); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if !m.initialized {
		t.Fatal("expected muxer to initialize once SPS+PPS observed")
	}
	if buf.Len() == 0 {
		t.Fatal("expected init segment + fragment bytes written")
	}

	before := buf.Len()
	idr2 := append([]byte{0x61}, make([]byte, 16)...)
	if err := m.WriteSample(annexB(idr2), 900000); err != nil {
		t.Fatalf("second WriteSample: %v", err)
	}
	if buf.Len() <= before {
		t.Fatal("expected a second fragment appended for the next sample")
	}
	if m.frameNum != 2 {
		t.Fatalf("expected frameNum 2, got %d", m.frameNum)
	}
}

func TestPassthroughMuxerRejectsUnsupportedFourCC(t *testing.T) {
	var buf bytes.Buffer
	m := newPassthroughMuxer(&buf, model.FourCCUYVY, 640, 360)
	if err := m.WriteSample([]byte{0, 0, 0, 1, 0x65}, 0); err == nil {
		t.Fatal("expected an error for a non-H.264/HEVC fourCC")
	}
}
