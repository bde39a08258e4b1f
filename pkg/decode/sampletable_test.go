package decode

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/frameflow/pkg/h264"
	"github.com/user/frameflow/pkg/mocks"
)

// tick is one frame at timescale 30000.
const tick = 1000

// reorderedDisplay maps decode position to display position for an
// I P B P B ... stream.
var reorderedDisplay = []int{0, 2, 1, 4, 3, 6, 5, 8, 7}

func withEditShift(trak *mp4.TrakBox, mediaTime int64) {
	elst := &mp4.ElstBox{Entries: []mp4.ElstEntry{{MediaTime: mediaTime, MediaRateInteger: 1}}}
	trak.AddChild(&mp4.EdtsBox{Elst: []*mp4.ElstBox{elst}, Children: []mp4.Box{elst}})
}

// buildReorderedClip writes a fragmented clip whose decode order differs
// from presentation order. Composition offsets carry a one-frame delay that
// the edit list removes. The picture shown at frame i carries marker i+1.
func buildReorderedClip(t *testing.T) []byte {
	t.Helper()
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(30*tick, "video", "en")
	trak := init.Moov.Trak
	avcC, err := mp4.CreateAvcC([][]byte{mocks.TestSPS}, [][]byte{mocks.TestPPS}, true)
	require.NoError(t, err)
	trak.Mdia.Minf.Stbl.Stsd.AddChild(mp4.CreateVisualSampleEntryBox("avc1", 64, 64, avcC))
	withEditShift(trak, tick)

	var buf bytes.Buffer
	require.NoError(t, mp4.NewFtyp("isom", 0x200, []string{"isom", "avc1"}).Encode(&buf))
	require.NoError(t, init.Moov.Encode(&buf))

	frag, err := mp4.CreateFragment(1, trak.Tkhd.TrackID)
	require.NoError(t, err)
	for dec, disp := range reorderedDisplay {
		key := dec == 0
		data := h264.ToAVCC(mocks.AccessUnit(key, byte(disp+1)))
		flags := mp4.NonSyncSampleFlags
		if key {
			flags = mp4.SyncSampleFlags
		}
		frag.AddFullSample(mp4.FullSample{
			Sample: mp4.Sample{
				Flags:                 flags,
				Size:                  uint32(len(data)),
				Dur:                   tick,
				CompositionTimeOffset: int32((disp-dec)*tick + tick),
			},
			DecodeTime: uint64(dec * tick),
			Data:       data,
		})
	}
	require.NoError(t, frag.Encode(&buf))
	return buf.Bytes()
}

func TestFragmentedTable_CompositionOrder(t *testing.T) {
	f := newFixture(t, DefaultConfig(), buildReorderedClip(t))

	table, err := f.mgr.Prepare(context.Background(), "clip")
	require.NoError(t, err)
	require.Len(t, table.Samples, len(reorderedDisplay))

	for dec, disp := range reorderedDisplay {
		assert.Equal(t, table.toDuration(int64(disp*tick)), table.Samples[dec].PTS, "sample %d", dec)
		assert.Equal(t, dec, table.IndexAt(table.toDuration(int64(disp*tick))), "display %d", disp)
		if dec > 0 {
			assert.Greater(t, table.Samples[dec].Offset, table.Samples[dec-1].Offset, "decode order kept")
		}
	}
	assert.Equal(t, 0, table.IndexAt(0))
	assert.Equal(t, 7, table.IndexAt(time.Minute))
	assert.Equal(t, table.toDuration(9*tick), table.Duration())

	for i := range reorderedDisplay {
		fr, err := f.mgr.Frame(context.Background(), "clip", frameAt(i))
		require.NoError(t, err)
		assert.Equal(t, uint8(i+1), gray(fr), "frame %d", i)
	}
}

func TestProgressiveTable_CompositionOffsets(t *testing.T) {
	trak := mp4.CreateEmptyTrak(1, 30*tick, "video", "en")
	stbl := trak.Mdia.Minf.Stbl
	stbl.Stts.SampleCount = []uint32{4}
	stbl.Stts.SampleTimeDelta = []uint32{tick}
	stbl.Stsz.SampleNumber = 4
	stbl.Stsz.SampleSize = []uint32{10, 11, 12, 13}
	require.NoError(t, stbl.Stsc.AddEntry(1, 4, 1))
	stbl.Stco.ChunkOffset = []uint32{500}
	ctts := &mp4.CttsBox{}
	require.NoError(t, ctts.AddSampleCountsAndOffset([]uint32{1, 1, 1, 1}, []int32{tick, 2 * tick, 0, tick}))
	stbl.AddChild(ctts)
	stbl.AddChild(&mp4.StssBox{SampleNumber: []uint32{1}})
	withEditShift(trak, tick)

	table, err := progressiveTable(videoTrack{trak: trak})
	require.NoError(t, err)

	var offsets []int64
	var pts []time.Duration
	for _, s := range table.Samples {
		offsets = append(offsets, s.Offset)
		pts = append(pts, s.PTS)
	}
	assert.Equal(t, []int64{500, 510, 521, 533}, offsets)
	assert.Equal(t, []time.Duration{0, table.toDuration(2 * tick), table.toDuration(tick), table.toDuration(3 * tick)}, pts)
	assert.Equal(t, 2, table.IndexAt(table.toDuration(tick)))
	assert.Equal(t, 1, table.SyncCount())
	assert.Equal(t, 0, table.SyncBefore(3))
}

func TestFragmentedTable_DataOffsetBase(t *testing.T) {
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(30*tick, "video", "en")
	init.AddEmptyTrack(48000, "audio", "en")
	vt, err := findVideoTrack(init.Moov)
	require.NoError(t, err)

	sample := func(size uint32, sync bool) mp4.Sample {
		flags := mp4.NonSyncSampleFlags
		if sync {
			flags = mp4.SyncSampleFlags
		}
		return mp4.Sample{Flags: flags, Size: size, Dur: tick}
	}

	// Audio first, based on the moof; video continues after the audio data
	// because neither tfhd sets default-base-is-moof.
	audioTfhd := mp4.CreateTfhd(2)
	audioTfhd.Flags = 0
	audioRun := mp4.CreateTrun(0)
	audioRun.DataOffset = 200
	audioRun.AddSample(mp4.Sample{Size: 10, Dur: 1024})
	audioRun.AddSample(mp4.Sample{Size: 10, Dur: 1024})

	videoTfhd := mp4.CreateTfhd(1)
	videoTfhd.Flags = 0
	first := mp4.CreateTrun(0)
	first.Flags &^= mp4.TrunDataOffsetPresentFlag
	first.AddSample(sample(5, true))
	first.AddSample(sample(7, false))
	second := mp4.CreateTrun(1)
	second.DataOffset = 400
	second.AddSample(sample(3, false))

	moof1 := &mp4.MoofBox{StartPos: 100, Trafs: []*mp4.TrafBox{
		{Tfhd: audioTfhd, Truns: []*mp4.TrunBox{audioRun}},
		{Tfhd: videoTfhd, Tfdt: mp4.CreateTfdt(0), Truns: []*mp4.TrunBox{first, second}},
	}}

	// Explicit base_data_offset wins over the moof position.
	baseTfhd := mp4.CreateTfhd(1)
	baseTfhd.Flags = mp4.TfhdBaseDataOffsetPresentFlag
	baseTfhd.BaseDataOffset = 5000
	third := mp4.CreateTrun(0)
	third.DataOffset = 8
	third.AddSample(sample(4, true))
	moof2 := &mp4.MoofBox{StartPos: 1000, Trafs: []*mp4.TrafBox{
		{Tfhd: baseTfhd, Tfdt: mp4.CreateTfdt(3 * tick), Truns: []*mp4.TrunBox{third}},
	}}

	table, err := fragmentedTable(vt, []*mp4.MoofBox{moof1, moof2})
	require.NoError(t, err)
	require.Len(t, table.Samples, 4)

	var offsets []int64
	for _, s := range table.Samples {
		offsets = append(offsets, s.Offset)
	}
	assert.Equal(t, []int64{320, 325, 720, 5008}, offsets)
	assert.Equal(t, table.toDuration(3*tick), table.Samples[3].PTS)
	assert.Equal(t, 2, table.SyncCount())
}
