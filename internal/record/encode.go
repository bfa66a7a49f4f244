package record

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/mackatwentytsuru/ndi-ingest-core/internal/model"
)

// encodeSession owns a software H.264 encoder used for the "encode"
// recording branch: uncompressed frames are converted to
// YUV420P and pushed through libx264, and the resulting Annex-B packets
// are handed to the same passthroughMuxer the compressed branch uses,
// since an encoded packet is just another Annex-B sample from the
// muxer's point of view.
type encodeSession struct {
	ctx    *astiav.CodecContext
	width  int32
	height int32
}

func newEncodeSession(width, height int32, frameRateNum, frameRateDen int32) (*encodeSession, error) {
	codec := astiav.FindEncoder(astiav.CodecIDH264)
	if codec == nil {
		return nil, model.NewError(model.KindHandleCreationFailed, "find h264 encoder", nil)
	}
	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return nil, model.NewError(model.KindHandleCreationFailed, "alloc encoder context", nil)
	}
	ctx.SetWidth(int(width))
	ctx.SetHeight(int(height))
	ctx.SetPixelFormat(astiav.PixelFormatYuv420P)
	if frameRateNum <= 0 {
		frameRateNum, frameRateDen = 30, 1
	}
	ctx.SetTimeBase(astiav.NewRational(int(frameRateDen), int(frameRateNum)))
	ctx.SetFramerate(astiav.NewRational(int(frameRateNum), int(frameRateDen)))
	ctx.SetGopSize(int(frameRateNum / max1(frameRateDen))) // ~1s GOP
	ctx.SetPixelFormat(astiav.PixelFormatYuv420P)
	ctx.SetBitRate(targetBitRate(width, height))

	if err := ctx.Open(codec, nil); err != nil {
		ctx.Free()
		return nil, model.NewError(model.KindHandleCreationFailed, "open encoder", err)
	}
	return &encodeSession{ctx: ctx, width: width, height: height}, nil
}

func max1(v int32) int32 {
	if v <= 0 {
		return 1
	}
	return v
}

// targetBitRate scales the 8 Mbps 1080p-class target by pixel count, so
// smaller sources don't get encoded at an unnecessarily high rate.
const bitRate1080p = 8_000_000
const pixels1080p = 1920 * 1080

func targetBitRate(width, height int32) int64 {
	px := int64(width) * int64(height)
	if px <= 0 {
		return bitRate1080p
	}
	rate := bitRate1080p * px / pixels1080p
	if rate < 1_000_000 {
		rate = 1_000_000
	}
	return rate
}

// Encode converts frame to YUV420P and feeds the encoder, returning zero
// or more Annex-B access units produced as a result (the encoder buffers
// internally, so one input frame may yield zero packets).
func (s *encodeSession) Encode(frame *model.VideoFrameCopy, pts int64) ([][]byte, error) {
	yuv, err := toYUV420P(frame)
	if err != nil {
		return nil, err
	}
	f := astiav.AllocFrame()
	defer f.Free()
	f.SetWidth(int(s.width))
	f.SetHeight(int(s.height))
	f.SetPixelFormat(astiav.PixelFormatYuv420P)
	if err := f.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("alloc frame buffer: %w", err)
	}
	copyYUV420PInto(f, yuv, int(s.width), int(s.height))
	f.SetPts(pts)

	if err := s.ctx.SendFrame(f); err != nil && err != astiav.ErrEagain {
		return nil, fmt.Errorf("send frame: %w", err)
	}

	var packets [][]byte
	pkt := astiav.AllocPacket()
	defer pkt.Free()
	for {
		err := s.ctx.ReceivePacket(pkt)
		if err != nil {
			break
		}
		data := make([]byte, pkt.Size())
		copy(data, pkt.Data())
		packets = append(packets, data)
		pkt.Unref()
	}
	return packets, nil
}

func (s *encodeSession) Close() {
	if s.ctx != nil {
		s.ctx.Free()
		s.ctx = nil
	}
}

// yuv420p holds planar 4:2:0 data produced from an uncompressed NDI frame
// using BT.601 limited-range coefficients (Y in [16,235], Cb/Cr in
// [16,240]), the inverse direction of internal/render/bt601.go's decode
// path, subsampled 2x2 like any standard 4:2:0 source.
type yuv420p struct {
	y, u, v             []byte
	yStride, cStride    int
}

func toYUV420P(frame *model.VideoFrameCopy) (*yuv420p, error) {
	w, h := int(frame.Width), int(frame.Height)
	out := &yuv420p{
		y:       make([]byte, w*h),
		u:       make([]byte, ((w+1)/2)*((h+1)/2)),
		v:       make([]byte, ((w+1)/2)*((h+1)/2)),
		yStride: w,
		cStride: (w + 1) / 2,
	}

	switch frame.FourCC {
	case model.FourCCUYVY:
		stride := int(frame.LineStride)
		if stride == 0 {
			stride = w * 2
		}
		for row := 0; row < h; row++ {
			so := row * stride
			for x := 0; x+1 < w; x += 2 {
				u := frame.Data[so+x*2]
				y0 := frame.Data[so+x*2+1]
				v := frame.Data[so+x*2+2]
				y1 := frame.Data[so+x*2+3]
				out.y[row*w+x] = y0
				out.y[row*w+x+1] = y1
				if row%2 == 0 {
					ci := (row/2)*out.cStride + x/2
					out.u[ci] = u
					out.v[ci] = v
				}
			}
		}
	case model.FourCCBGRA, model.FourCCBGRX:
		stride := int(frame.LineStride)
		if stride == 0 {
			stride = w * 4
		}
		for row := 0; row < h; row++ {
			so := row * stride
			for x := 0; x < w; x++ {
				b, g, r := frame.Data[so+x*4], frame.Data[so+x*4+1], frame.Data[so+x*4+2]
				y, cb, cr := rgbToYUVLimited(r, g, b)
				out.y[row*w+x] = y
				if row%2 == 0 && x%2 == 0 {
					ci := (row/2)*out.cStride + x/2
					out.u[ci] = cb
					out.v[ci] = cr
				}
			}
		}
	default:
		return nil, model.NewError(model.KindUnsupportedPixelFormat, frame.FourCC.String(), nil)
	}
	return out, nil
}

func rgbToYUVLimited(r, g, b byte) (y, cb, cr byte) {
	ri, gi, bi := int32(r), int32(g), int32(b)
	yy := (66*ri + 129*gi + 25*bi + 128) >> 8
	u := (-38*ri - 74*gi + 112*bi + 128) >> 8
	v := (112*ri - 94*gi - 18*bi + 128) >> 8
	return clamp(yy + 16), clamp(u + 128), clamp(v + 128)
}

func clamp(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func copyYUV420PInto(f *astiav.Frame, yuv *yuv420p, w, h int) {
	yDst := f.Data().Bytes(0, f.Linesize(0)*h)
	for row := 0; row < h; row++ {
		copy(yDst[row*f.Linesize(0):row*f.Linesize(0)+w], yuv.y[row*yuv.yStride:row*yuv.yStride+w])
	}
	ch := (h + 1) / 2
	cw := (w + 1) / 2
	uDst := f.Data().Bytes(1, f.Linesize(1)*ch)
	vDst := f.Data().Bytes(2, f.Linesize(2)*ch)
	for row := 0; row < ch; row++ {
		copy(uDst[row*f.Linesize(1):row*f.Linesize(1)+cw], yuv.u[row*yuv.cStride:row*yuv.cStride+cw])
		copy(vDst[row*f.Linesize(2):row*f.Linesize(2)+cw], yuv.v[row*yuv.cStride:row*yuv.cStride+cw])
	}
}
