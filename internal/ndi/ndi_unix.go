//go:build !windows

package ndi

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// libraryPaths lists, in preference order, the shared-object names the
// native NDI runtime is typically installed under. NDI_RUNTIME_LIB, when
// set, replaces the list with that single path.
func libraryPaths() []string {
	if p := os.Getenv("NDI_RUNTIME_LIB"); p != "" {
		return []string{p}
	}
	return []string{
		"libndi.so.6",
		"libndi.so.5",
		"libndi.so",
		"libndi.dylib",
	}
}

// unixRuntime is the purego-backed Runtime implementation. Every native
// call is funnelled through function pointers bound once at Initialize
// time, following the binding shape of the ndi-go reference (there a
// Windows syscall DLL table; here a cgo-free purego table).
type unixRuntime struct {
	mu      sync.Mutex
	handle  uintptr
	inited  bool

	fnInitialize          func() bool
	fnDestroy             func()
	fnVersion             func() uintptr
	fnFindCreateV2        func(unsafe.Pointer) uintptr
	fnFindDestroy         func(uintptr)
	fnFindWaitForSources  func(uintptr, uint32) bool
	fnFindGetCurrentSrcs  func(uintptr, *uint32) uintptr
	fnRecvCreateV3        func(unsafe.Pointer) uintptr
	fnRecvDestroy         func(uintptr)
	fnRecvConnect         func(uintptr, unsafe.Pointer)
	fnRecvCaptureV2       func(uintptr, unsafe.Pointer, unsafe.Pointer, unsafe.Pointer, uint32) int32
	fnRecvFreeVideoV2     func(uintptr, unsafe.Pointer)
	fnRecvGetPerformance  func(uintptr, unsafe.Pointer, unsafe.Pointer)
	fnRecvGetNoConnections func(uintptr) int32
}

// New constructs the purego-backed Runtime. The native library is not
// loaded until Initialize is called.
func New() Runtime { return &unixRuntime{} }

func (r *unixRuntime) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inited {
		return nil
	}

	var handle uintptr
	var err error
	var lastErr error
	for _, name := range libraryPaths() {
		handle, err = purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			break
		}
		lastErr = err
	}
	if handle == 0 {
		return fmt.Errorf("ndi: load native library: %w", lastErr)
	}
	r.handle = handle

	purego.RegisterLibFunc(&r.fnInitialize, handle, "NDIlib_initialize")
	purego.RegisterLibFunc(&r.fnDestroy, handle, "NDIlib_destroy")
	purego.RegisterLibFunc(&r.fnVersion, handle, "NDIlib_version")
	purego.RegisterLibFunc(&r.fnFindCreateV2, handle, "NDIlib_find_create_v2")
	purego.RegisterLibFunc(&r.fnFindDestroy, handle, "NDIlib_find_destroy")
	purego.RegisterLibFunc(&r.fnFindWaitForSources, handle, "NDIlib_find_wait_for_sources")
	purego.RegisterLibFunc(&r.fnFindGetCurrentSrcs, handle, "NDIlib_find_get_current_sources")
	purego.RegisterLibFunc(&r.fnRecvCreateV3, handle, "NDIlib_recv_create_v3")
	purego.RegisterLibFunc(&r.fnRecvDestroy, handle, "NDIlib_recv_destroy")
	purego.RegisterLibFunc(&r.fnRecvConnect, handle, "NDIlib_recv_connect")
	purego.RegisterLibFunc(&r.fnRecvCaptureV2, handle, "NDIlib_recv_capture_v2")
	purego.RegisterLibFunc(&r.fnRecvFreeVideoV2, handle, "NDIlib_recv_free_video_v2")
	purego.RegisterLibFunc(&r.fnRecvGetPerformance, handle, "NDIlib_recv_get_performance")
	purego.RegisterLibFunc(&r.fnRecvGetNoConnections, handle, "NDIlib_recv_get_no_connections")

	if !r.fnInitialize() {
		return fmt.Errorf("ndi: NDIlib_initialize returned false")
	}
	r.inited = true
	return nil
}

func (r *unixRuntime) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.inited {
		return
	}
	r.fnDestroy()
	r.inited = false
}

func (r *unixRuntime) Version() string {
	if !r.inited {
		return ""
	}
	return cString(r.fnVersion())
}

// cFindCreateSettings mirrors NDIlib_find_create_t's field layout.
type cFindCreateSettings struct {
	showLocalSources uint32 // bool, padded to 4 bytes
	groups           uintptr
	extraIPs         uintptr
}

func (r *unixRuntime) CreateFinder(showLocal bool, groups string, extraIPs []string) (uintptr, error) {
	if !r.inited {
		return 0, ErrNotInitialized
	}
	var b uint32
	if showLocal {
		b = 1
	}
	cfg := cFindCreateSettings{showLocalSources: b}
	var groupsBuf, extraIPsBuf []byte
	if groups != "" {
		groupsBuf, cfg.groups = cString2(groups)
	}
	if len(extraIPs) > 0 {
		extraIPsBuf, cfg.extraIPs = cString2(strings.Join(extraIPs, ","))
	}
	h := r.fnFindCreateV2(unsafe.Pointer(&cfg))
	runtime.KeepAlive(groupsBuf)
	runtime.KeepAlive(extraIPsBuf)
	if h == 0 {
		return 0, fmt.Errorf("ndi: NDIlib_find_create_v2 returned null")
	}
	return h, nil
}

func (r *unixRuntime) DestroyFinder(h uintptr) {
	if h == 0 {
		return
	}
	r.fnFindDestroy(h)
}

func (r *unixRuntime) WaitForSources(h uintptr, timeoutMs int) bool {
	if h == 0 {
		return false
	}
	return r.fnFindWaitForSources(h, uint32(timeoutMs))
}

// cSource mirrors NDIlib_source_t: {const char* name; const char* url}.
type cSource struct {
	name uintptr
	url  uintptr
}

func (r *unixRuntime) CurrentSources(h uintptr) []string {
	if h == 0 {
		return nil
	}
	var n uint32
	arr := r.fnFindGetCurrentSrcs(h, &n)
	if arr == 0 || n == 0 {
		return nil
	}
	out := make([]string, 0, n)
	base := (*[1 << 20]cSource)(unsafe.Pointer(arr))[:n:n]
	for _, s := range base {
		out = append(out, cString(s.name))
	}
	return out
}

// cRecvCreateSettings mirrors NDIlib_recv_create_v3_t's leading fields
// (source_to_connect_to, color_format, bandwidth, allow_video_fields).
type cRecvCreateSettings struct {
	source           cSource
	colorFormat      int32
	bandwidth        int32
	allowVideoFields uint32
}

func (r *unixRuntime) CreateReceiver(s RecvCreateSettings) (uintptr, error) {
	if !r.inited {
		return 0, ErrNotInitialized
	}
	var allow uint32
	if s.AllowVideoFields {
		allow = 1
	}
	cfg := cRecvCreateSettings{
		colorFormat:      int32(s.ColorFormat),
		bandwidth:        int32(s.Bandwidth),
		allowVideoFields: allow,
	}
	h := r.fnRecvCreateV3(unsafe.Pointer(&cfg))
	if h == 0 {
		return 0, fmt.Errorf("ndi: NDIlib_recv_create_v3 returned null")
	}
	if s.SourceName != "" {
		r.Connect(h, s.SourceName)
	}
	return h, nil
}

func (r *unixRuntime) DestroyReceiver(h uintptr) {
	if h == 0 {
		return
	}
	r.fnRecvDestroy(h)
}

func (r *unixRuntime) Connect(h uintptr, sourceName string) bool {
	if h == 0 {
		return false
	}
	nameBuf, namePtr := cString2(sourceName)
	src := cSource{name: namePtr}
	r.fnRecvConnect(h, unsafe.Pointer(&src))
	runtime.KeepAlive(nameBuf)
	return true
}

// cVideoFrameV2 mirrors NDIlib_video_frame_v2_t.
type cVideoFrameV2 struct {
	xres, yres             int32
	fourCC                 [4]byte
	frameRateN, frameRateD int32
	pictureAspectRatio     float32
	frameFormatType        int32
	timecode               int64
	data                   uintptr
	lineStrideOrDataSize   int32
	metadata               uintptr
	timestamp              int64
}

func (r *unixRuntime) CaptureV2(h uintptr, timeoutMs int) (FrameType, *VideoFrame, error) {
	if h == 0 {
		return FrameTypeNone, nil, nil
	}
	var v cVideoFrameV2
	ft := r.fnRecvCaptureV2(h, unsafe.Pointer(&v), nil, nil, uint32(timeoutMs))
	switch FrameType(ft) {
	case FrameTypeVideo:
		size := v.lineStrideOrDataSize
		var data []byte
		if v.data != 0 && size > 0 {
			data = unsafe.Slice((*byte)(unsafe.Pointer(v.data)), int(size))
		}
		return FrameTypeVideo, &VideoFrame{
			Width: v.xres, Height: v.yres, FourCC: v.fourCC,
			FrameRateNum: v.frameRateN, FrameRateDen: v.frameRateD,
			FrameFormat: v.frameFormatType, Timestamp: v.timestamp,
			LineStride: v.lineStrideOrDataSize, DataSizeBytes: size,
			Data: data, handle: v.data,
		}, nil
	case FrameTypeError:
		return FrameTypeError, nil, fmt.Errorf("ndi: capture error")
	default:
		return FrameType(ft), nil, nil
	}
}

func (r *unixRuntime) FreeVideo(h uintptr, f *VideoFrame) {
	if h == 0 || f == nil {
		return
	}
	v := cVideoFrameV2{
		xres: f.Width, yres: f.Height, fourCC: f.FourCC,
		frameRateN: f.FrameRateNum, frameRateD: f.FrameRateDen,
		frameFormatType: f.FrameFormat, timecode: 0,
		data: f.handle, lineStrideOrDataSize: f.LineStride,
		timestamp: f.Timestamp,
	}
	r.fnRecvFreeVideoV2(h, unsafe.Pointer(&v))
}

// cPerformance mirrors NDIlib_recv_performance_t.
type cPerformance struct {
	video, audio, metadata int64
}

func (r *unixRuntime) GetPerformance(h uintptr) Performance {
	if h == 0 {
		return Performance{TotalVideoFrames: -1}
	}
	var total, dropped cPerformance
	r.fnRecvGetPerformance(h, unsafe.Pointer(&total), unsafe.Pointer(&dropped))
	return Performance{
		TotalVideoFrames: total.video, DroppedVideoFrames: dropped.video,
		TotalAudioFrames: total.audio, DroppedAudioFrames: dropped.audio,
		TotalMetadataFrames: total.metadata, DroppedMetaFrames: dropped.metadata,
	}
}

func (r *unixRuntime) IsConnected(h uintptr) bool {
	if h == 0 {
		return false
	}
	return r.fnRecvGetNoConnections(h) > 0
}

func cString(p uintptr) string {
	if p == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; ; i++ {
		c := *(*byte)(unsafe.Pointer(p + uintptr(i)))
		if c == 0 {
			break
		}
		b.WriteByte(c)
	}
	return b.String()
}

// cString2 returns a NUL-terminated copy of s together with its backing
// array. The caller must keep the returned []byte referenced (e.g. via
// runtime.KeepAlive) until after the native call that dereferences the
// uintptr has returned — converting Pointer to uintptr does not itself
// keep the referent alive once the conversion result is stored rather
// than used directly as a call argument.
func cString2(s string) ([]byte, uintptr) {
	b := append([]byte(s), 0)
	return b, uintptr(unsafe.Pointer(&b[0]))
}
