// Package model holds the data shapes shared across the ingest pipeline:
// discovered sources, borrowed and owned video frames, and the FourCC
// vocabulary the renderer, decoder and recorder classify frames by.
package model

import "sync"

// FourCC names a pixel or codec layout carried by a VideoFrame.
type FourCC uint32

const (
	FourCCUnknown FourCC = iota
	FourCCUYVY
	FourCCBGRA
	FourCCBGRX
	FourCCRGBA
	FourCCRGBX
	FourCCNV12
	FourCCI420
	FourCCH264
	FourCCHEVC
)

func (f FourCC) String() string {
	switch f {
	case FourCCUYVY:
		return "UYVY"
	case FourCCBGRA:
		return "BGRA"
	case FourCCBGRX:
		return "BGRX"
	case FourCCRGBA:
		return "RGBA"
	case FourCCRGBX:
		return "RGBX"
	case FourCCNV12:
		return "NV12"
	case FourCCI420:
		return "I420"
	case FourCCH264:
		return "H264"
	case FourCCHEVC:
		return "HEVC"
	default:
		return "UNKNOWN"
	}
}

// IsCompressed reports whether fcc identifies an elementary bitstream
// rather than a raw pixel layout.
func (f FourCC) IsCompressed() bool {
	return f == FourCCH264 || f == FourCCHEVC
}

// CodecLabel returns the recorder/OSD label for a compressed FourCC.
func (f FourCC) CodecLabel() string {
	switch f {
	case FourCCH264:
		return "H.264"
	case FourCCHEVC:
		return "H.265"
	default:
		return "Raw " + f.String()
	}
}

// SourceDescriptor identifies a publisher discovered on the LAN. Equality
// between two descriptors is by Name alone.
type SourceDescriptor struct {
	Name string
	URL  string
}

// Equal compares two descriptors by name, per the discovery contract.
func (s SourceDescriptor) Equal(o SourceDescriptor) bool { return s.Name == o.Name }

// SameSet reports whether a and b contain the same set of names,
// irrespective of order — used by the Finder to suppress no-op emissions.
func SameSet(a, b []SourceDescriptor) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s.Name]++
	}
	for _, s := range b {
		seen[s.Name]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}

// VideoFrame is a borrowed view over a capture produced by the native
// runtime. Data aliases native memory and is valid only between capture
// and the single Release call that returns it to the runtime; Release is
// safe to call more than once (every call after the first is a no-op), so
// callers never need to reason about double-release.
type VideoFrame struct {
	Width, Height             int32
	FourCC                    FourCC
	LineStride                int32 // 0: tightly packed, <0: bottom-up
	FrameRateNum, FrameRateDen int32
	Timestamp                 int64 // publisher timebase
	DataSizeBytes             int32 // meaningful for compressed frames
	Data                      []byte

	release     func()
	releaseOnce sync.Once
}

// NewVideoFrame wraps a borrowed byte region with its release callback.
func NewVideoFrame(w, h int32, fcc FourCC, stride int32, rateNum, rateDen int32, ts int64, data []byte, release func()) *VideoFrame {
	return &VideoFrame{
		Width: w, Height: h, FourCC: fcc, LineStride: stride,
		FrameRateNum: rateNum, FrameRateDen: rateDen, Timestamp: ts,
		DataSizeBytes: int32(len(data)), Data: data, release: release,
	}
}

// Release returns the frame's native byte region to the runtime. It is
// idempotent: only the first call has an effect.
func (f *VideoFrame) Release() {
	f.releaseOnce.Do(func() {
		if f.release != nil {
			f.release()
		}
	})
}

// IsCompressed reports whether this frame carries an elementary bitstream.
func (f *VideoFrame) IsCompressed() bool { return f.FourCC.IsCompressed() }

// Copy makes an owned VideoFrameCopy of the frame's current byte region.
// Callers MUST invoke Copy before Release fires if they intend to retain
// the bytes past the borrow's scope — the Go compiler cannot enforce this
// for us, but centralizing the copy here keeps the one enforcement point
// in a single, auditable place (see DESIGN.md open-question notes).
func (f *VideoFrame) Copy() *VideoFrameCopy {
	b := make([]byte, len(f.Data))
	copy(b, f.Data)
	return &VideoFrameCopy{
		Width: f.Width, Height: f.Height, FourCC: f.FourCC, LineStride: f.LineStride,
		FrameRateNum: f.FrameRateNum, FrameRateDen: f.FrameRateDen, Timestamp: f.Timestamp,
		DataSizeBytes: int32(len(b)), Data: b,
	}
}

// VideoFrameCopy is an owned, heap-backed snapshot of a VideoFrame made for
// asynchronous consumers (the Recorder queue) that must outlive the
// originating capture's borrow.
type VideoFrameCopy struct {
	Width, Height              int32
	FourCC                     FourCC
	LineStride                 int32
	FrameRateNum, FrameRateDen int32
	Timestamp                  int64
	DataSizeBytes              int32
	Data                       []byte
}

func (f *VideoFrameCopy) IsCompressed() bool { return f.FourCC.IsCompressed() }
