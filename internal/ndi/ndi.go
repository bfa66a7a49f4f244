// Package ndi binds the native NDI discovery/receive runtime. The real
// binding (ndi_unix.go) loads libndi with purego and calls straight through
// to the C ABI, following the function surface documented by the ndi-go
// reference binding in the example pack (there expressed as a Windows
// syscall DLL table; here expressed as purego.Dlopen + RegisterLibFunc).
//
// Runtime is the seam the rest of the pipeline programs against, so tests
// can substitute a fake runtime instead of touching real hardware.
package ndi

import "errors"

// Bandwidth mirrors NDIlib_recv_bandwidth_e.
type Bandwidth int32

const (
	BandwidthMetadataOnly Bandwidth = -10
	BandwidthAudioOnly    Bandwidth = 10
	BandwidthLowest       Bandwidth = 0
	BandwidthHighest      Bandwidth = 100
)

// ColorFormat mirrors NDIlib_recv_color_format_e.
type ColorFormat int32

const (
	ColorFormatBGRXBGRA ColorFormat = 0
	ColorFormatUYVYBGRA ColorFormat = 1
	ColorFormatRGBXRGBA ColorFormat = 2
	ColorFormatUYVYRGBA ColorFormat = 3
	ColorFormatFastest  ColorFormat = 100
)

// FrameType mirrors NDIlib_frame_type_e, the discriminant returned by
// CaptureV2.
type FrameType int32

const (
	FrameTypeNone FrameType = iota
	FrameTypeVideo
	FrameTypeAudio
	FrameTypeMetadata
	FrameTypeError
	FrameTypeStatusChange FrameType = 100
)

// ErrNotInitialized is returned by any Runtime call made before Initialize
// succeeds.
var ErrNotInitialized = errors.New("ndi: runtime not initialized")

// RecvCreateSettings mirrors NDIlib_recv_create_v3_t.
type RecvCreateSettings struct {
	SourceName       string
	Bandwidth        Bandwidth
	ColorFormat      ColorFormat
	AllowVideoFields bool
}

// VideoFrame mirrors NDIlib_video_frame_v2_t, decoded into Go-native
// fields; Data is a slice view over native memory valid only until the
// matching FreeVideo call.
type VideoFrame struct {
	Width, Height              int32
	FourCC                     [4]byte
	FrameRateNum, FrameRateDen int32
	FrameFormat                int32
	Timestamp                  int64
	LineStride                 int32
	DataSizeBytes              int32
	Data                       []byte

	// handle is the opaque native pointer needed to free this frame; it
	// is never dereferenced in Go, only passed back into FreeVideo.
	handle uintptr
}

// Handle returns the opaque native pointer backing this frame, for passing
// back into FreeVideo.
func (v *VideoFrame) Handle() uintptr { return v.handle }

// Performance mirrors the pair of NDIlib_recv_performance_t structs
// returned by RecvGetPerformance (total, dropped).
type Performance struct {
	TotalVideoFrames, DroppedVideoFrames     int64
	TotalAudioFrames, DroppedAudioFrames     int64
	TotalMetadataFrames, DroppedMetaFrames   int64
}

// Quality returns a 0-100 score: 100 when no frames have
// been observed yet, 0 when there is no active connection (signalled by
// the caller passing a Performance with TotalVideoFrames == -1).
func (p Performance) Quality() int {
	if p.TotalVideoFrames < 0 {
		return 0
	}
	if p.TotalVideoFrames == 0 {
		return 100
	}
	q := 100 * (1 - float64(p.DroppedVideoFrames)/float64(p.TotalVideoFrames))
	if q < 0 {
		q = 0
	}
	if q > 100 {
		q = 100
	}
	return int(q)
}

// Runtime is the native discovery/receive surface consumed by
// internal/discovery and internal/receive. One process-wide Runtime is
// initialized once at startup.
type Runtime interface {
	// Initialize prepares the native library. Must be called exactly once
	// before any Finder/Receiver use; subsequent calls are no-ops.
	Initialize() error
	// Destroy tears down the native library at process exit.
	Destroy()
	Version() string

	CreateFinder(showLocalSources bool, groups string, extraIPs []string) (uintptr, error)
	DestroyFinder(h uintptr)
	WaitForSources(h uintptr, timeoutMs int) bool
	CurrentSources(h uintptr) []string

	CreateReceiver(settings RecvCreateSettings) (uintptr, error)
	DestroyReceiver(h uintptr)
	Connect(h uintptr, sourceName string) bool
	CaptureV2(h uintptr, timeoutMs int) (FrameType, *VideoFrame, error)
	FreeVideo(h uintptr, f *VideoFrame)
	GetPerformance(h uintptr) Performance
	IsConnected(h uintptr) bool
}
