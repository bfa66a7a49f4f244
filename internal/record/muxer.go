package record

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/hevc"
	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/mackatwentytsuru/ndi-ingest-core/internal/model"
)

const muxerTimescale = 90000

// passthroughMuxer assembles CSD (SPS/PPS, or VPS/SPS/PPS) from the
// incoming Annex-B bitstream and writes a fragmented-MP4 ftyp+moov once,
// followed by one moof+mdat per sample, generalized
// from a reference fMP4 writer implementation to also
// cover HEVC and to read NDI timestamps (100ns units) instead of
// microsecond capture clocks.
type passthroughMuxer struct {
	mu sync.Mutex
	w  io.Writer

	fourCC model.FourCC
	width  int32
	height int32

	sps, pps, vps []byte

	initialized   bool
	baseTimestamp int64
	lastTimestamp int64
	frameNum      uint32
}

func newPassthroughMuxer(w io.Writer, fourCC model.FourCC, width, height int32) *passthroughMuxer {
	return &passthroughMuxer{w: w, fourCC: fourCC, width: width, height: height}
}

// WriteSample extracts NAL units from an Annex-B encoded frame, captures
// CSD NALs for the init segment, and emits the remaining NALs as one
// fragment. ptsHundredNs is the NDI 100ns-resolution timestamp.
func (m *passthroughMuxer) WriteSample(data []byte, ptsHundredNs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.fourCC {
	case model.FourCCH264:
		return m.writeH264(data, ptsHundredNs)
	case model.FourCCHEVC:
		return m.writeHEVC(data, ptsHundredNs)
	default:
		return model.NewError(model.KindUnsupportedRecordingFormat, m.fourCC.String(), nil)
	}
}

func (m *passthroughMuxer) writeH264(data []byte, pts int64) error {
	nalus := avc.ExtractNalusFromByteStream(data)
	if len(nalus) == 0 {
		return nil
	}

	var sampleNALUs [][]byte
	keyframe := false
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		switch nalu[0] & 0x1F {
		case 7:
			m.sps = append([]byte{}, nalu...)
			continue
		case 8:
			m.pps = append([]byte{}, nalu...)
			continue
		case 5:
			keyframe = true
		}
		sampleNALUs = append(sampleNALUs, nalu)
	}

	if !m.initialized {
		if m.sps == nil || m.pps == nil {
			return nil // still waiting for CSD
		}
		if err := m.writeH264InitSegment(); err != nil {
			return err
		}
		m.initialized = true
		m.baseTimestamp = pts
	}
	if len(sampleNALUs) == 0 {
		return nil
	}
	return m.writeFragment(sampleNALUs, keyframe, pts)
}

func (m *passthroughMuxer) writeHEVC(data []byte, pts int64) error {
	nalus := hevc.ExtractNalusFromByteStream(data)
	if len(nalus) == 0 {
		return nil
	}

	var sampleNALUs [][]byte
	keyframe := false
	for _, nalu := range nalus {
		if len(nalu) < 2 {
			continue
		}
		naluType := (nalu[0] >> 1) & 0x3F
		switch naluType {
		case 32: // VPS
			m.vps = append([]byte{}, nalu...)
			continue
		case 33: // SPS
			m.sps = append([]byte{}, nalu...)
			continue
		case 34: // PPS
			m.pps = append([]byte{}, nalu...)
			continue
		case 19, 20, 21: // IDR_W_RADL, IDR_N_LP, CRA_NUT
			keyframe = true
		}
		sampleNALUs = append(sampleNALUs, nalu)
	}

	if !m.initialized {
		if m.vps == nil || m.sps == nil || m.pps == nil {
			return nil
		}
		if err := m.writeHEVCInitSegment(); err != nil {
			return err
		}
		m.initialized = true
		m.baseTimestamp = pts
	}
	if len(sampleNALUs) == 0 {
		return nil
	}
	return m.writeFragment(sampleNALUs, keyframe, pts)
}

func (m *passthroughMuxer) writeH264InitSegment() error {
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(muxerTimescale, "video", "und")

	trak := init.Moov.Trak
	stsd := trak.Mdia.Minf.Stbl.Stsd

	avcC, err := mp4.CreateAvcC([][]byte{m.sps}, [][]byte{m.pps}, true)
	if err != nil {
		return fmt.Errorf("create avcC: %w", err)
	}
	sampleEntry := mp4.CreateVisualSampleEntryBox("avc1", uint16(m.width), uint16(m.height), avcC)
	stsd.AddChild(sampleEntry)

	var buf bytes.Buffer
	if err := init.Encode(&buf); err != nil {
		return fmt.Errorf("encode init segment: %w", err)
	}
	_, err = m.w.Write(buf.Bytes())
	return err
}

func (m *passthroughMuxer) writeHEVCInitSegment() error {
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(muxerTimescale, "video", "und")

	trak := init.Moov.Trak
	stsd := trak.Mdia.Minf.Stbl.Stsd

	hvcC, err := mp4.CreateHvcC([][]byte{m.vps}, [][]byte{m.sps}, [][]byte{m.pps}, true, true)
	if err != nil {
		return fmt.Errorf("create hvcC: %w", err)
	}
	sampleEntry := mp4.CreateVisualSampleEntryBox("hvc1", uint16(m.width), uint16(m.height), hvcC)
	stsd.AddChild(sampleEntry)

	var buf bytes.Buffer
	if err := init.Encode(&buf); err != nil {
		return fmt.Errorf("encode init segment: %w", err)
	}
	_, err = m.w.Write(buf.Bytes())
	return err
}

func (m *passthroughMuxer) writeFragment(nalus [][]byte, keyframe bool, pts int64) error {
	m.frameNum++

	var sampleData []byte
	for _, nalu := range nalus {
		lengthPrefix := []byte{
			byte(len(nalu) >> 24), byte(len(nalu) >> 16),
			byte(len(nalu) >> 8), byte(len(nalu)),
		}
		sampleData = append(sampleData, lengthPrefix...)
		sampleData = append(sampleData, nalu...)
	}

	dur := uint32(3000)
	if m.lastTimestamp > 0 && pts > m.lastTimestamp {
		// NDI timestamps are in 100ns units; timescale is 90kHz.
		dur = uint32((pts - m.lastTimestamp) * muxerTimescale / 10_000_000)
		if dur == 0 {
			dur = 3000
		}
	}
	m.lastTimestamp = pts

	frag, err := mp4.CreateFragment(m.frameNum, 1)
	if err != nil {
		return fmt.Errorf("create fragment: %w", err)
	}

	flags := mp4.SyncSampleFlags
	if !keyframe {
		flags = mp4.NonSyncSampleFlags
	}
	sample := mp4.FullSample{
		Sample: mp4.Sample{
			Flags: flags,
			Dur:   dur,
			Size:  uint32(len(sampleData)),
		},
		DecodeTime: uint64((pts - m.baseTimestamp) * muxerTimescale / 10_000_000),
		Data:       sampleData,
	}
	frag.AddFullSample(sample)

	var buf bytes.Buffer
	if err := frag.Encode(&buf); err != nil {
		return fmt.Errorf("encode fragment: %w", err)
	}
	_, err = m.w.Write(buf.Bytes())
	return err
}
