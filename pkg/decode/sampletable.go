package decode

import (
	"fmt"
	"sort"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/frameflow/pkg/h264"
)

// Sample locates one coded picture in the asset. PTS is the presentation
// time after composition offsets and the edit list are applied.
type Sample struct {
	Offset   int64         `json:"offset"`
	Size     int64         `json:"size"`
	PTS      time.Duration `json:"pts"`
	Duration time.Duration `json:"duration"`
	Sync     bool          `json:"sync"`
}

// SampleTable is the parsed index of the video track. Samples are kept in
// decode order; IndexAt resolves presentation times through a PTS-sorted view.
type SampleTable struct {
	Timescale  uint32   `json:"timescale"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	Codec      string   `json:"codec"`
	SPS        [][]byte `json:"-"`
	PPS        [][]byte `json:"-"`
	Fragmented bool     `json:"fragmented"`
	Samples    []Sample `json:"samples"`

	syncs []int
	byPTS []int
	end   time.Duration
}

// Description returns the SPS and PPS as an Annex B stream.
func (t *SampleTable) Description() []byte {
	nalus := make([][]byte, 0, len(t.SPS)+len(t.PPS))
	nalus = append(nalus, t.SPS...)
	nalus = append(nalus, t.PPS...)
	return h264.JoinAnnexB(nalus...)
}

// Duration returns the presentation end of the latest sample.
func (t *SampleTable) Duration() time.Duration {
	return t.end
}

// IndexAt returns the decode index of the sample presented at pts. Times
// before the first picture map to the earliest one and times after the last
// map to the latest.
func (t *SampleTable) IndexAt(pts time.Duration) int {
	n := len(t.byPTS)
	if n == 0 {
		return -1
	}
	k := sort.Search(n, func(k int) bool { return t.Samples[t.byPTS[k]].PTS > pts }) - 1
	if k < 0 {
		k = 0
	}
	return t.byPTS[k]
}

// SyncBefore returns the nearest sync sample at or before decode index i.
func (t *SampleTable) SyncBefore(i int) int {
	k := sort.Search(len(t.syncs), func(k int) bool { return t.syncs[k] > i }) - 1
	if k < 0 {
		return 0
	}
	return t.syncs[k]
}

// SyncCount returns the number of sync samples.
func (t *SampleTable) SyncCount() int {
	return len(t.syncs)
}

func (t *SampleTable) finish() {
	t.syncs = t.syncs[:0]
	t.byPTS = make([]int, len(t.Samples))
	t.end = 0
	for i, s := range t.Samples {
		if s.Sync {
			t.syncs = append(t.syncs, i)
		}
		t.byPTS[i] = i
		if e := s.PTS + s.Duration; e > t.end {
			t.end = e
		}
	}
	sort.SliceStable(t.byPTS, func(a, b int) bool {
		return t.Samples[t.byPTS[a]].PTS < t.Samples[t.byPTS[b]].PTS
	})
}

type videoTrack struct {
	trak  *mp4.TrakBox
	trex  *mp4.TrexBox
	trexs map[uint32]*mp4.TrexBox
}

// findVideoTrack returns the first track with a "vide" handler.
func findVideoTrack(moov *mp4.MoovBox) (videoTrack, error) {
	for _, trak := range moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
			continue
		}
		vt := videoTrack{trak: trak, trexs: make(map[uint32]*mp4.TrexBox)}
		if moov.Mvex != nil {
			for _, trex := range moov.Mvex.Trexs {
				vt.trexs[trex.TrackID] = trex
			}
			vt.trex = vt.trexs[trak.Tkhd.TrackID]
		}
		return vt, nil
	}
	return videoTrack{}, ErrNoVideoTrack
}

// newTableHeader fills codec data from the track's sample description.
func newTableHeader(vt videoTrack) *SampleTable {
	t := &SampleTable{Timescale: 1000}
	trak := vt.trak
	if trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Timescale != 0 {
		t.Timescale = trak.Mdia.Mdhd.Timescale
	}
	if trak.Mdia.Minf != nil && trak.Mdia.Minf.Stbl != nil && trak.Mdia.Minf.Stbl.Stsd != nil {
		for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
			vse, ok := child.(*mp4.VisualSampleEntryBox)
			if !ok {
				continue
			}
			t.Width = int(vse.Width)
			t.Height = int(vse.Height)
			if vse.AvcC != nil {
				t.SPS = vse.AvcC.SPSnalus
				t.PPS = vse.AvcC.PPSnalus
			}
			break
		}
	}
	if len(t.SPS) > 0 {
		t.Codec = h264.CodecString(t.SPS[0])
	}
	return t
}

func (t *SampleTable) toDuration(ticks int64) time.Duration {
	ts := int64(t.Timescale)
	return time.Duration(ticks/ts)*time.Second + time.Duration(ticks%ts)*time.Second/time.Duration(ts)
}

// editShift returns the media time of the first non-empty edit, which is the
// media timestamp presented at time zero.
func editShift(trak *mp4.TrakBox) int64 {
	if trak.Edts == nil {
		return 0
	}
	for _, elst := range trak.Edts.Elst {
		for _, e := range elst.Entries {
			if e.MediaTime >= 0 {
				return e.MediaTime
			}
		}
	}
	return 0
}

// progressiveTable builds a table from stbl boxes.
func progressiveTable(vt videoTrack) (*SampleTable, error) {
	t := newTableHeader(vt)
	mdia := vt.trak.Mdia
	if mdia.Minf == nil || mdia.Minf.Stbl == nil {
		return nil, ErrSampleTableNotFound
	}
	stbl := mdia.Minf.Stbl
	if stbl.Stsz == nil || stbl.Stsc == nil || stbl.Stts == nil {
		return nil, ErrSampleTableNotFound
	}

	syncs := make(map[uint32]bool)
	if stbl.Stss != nil {
		for _, nr := range stbl.Stss.SampleNumber {
			syncs[nr] = true
		}
	}
	allSync := stbl.Stss == nil

	count := stbl.Stsz.SampleNumber
	t.Samples = make([]Sample, 0, count)
	shift := editShift(vt.trak)

	var chunkOffset uint64
	prevChunk := -1
	for nr := uint32(1); nr <= count; nr++ {
		chunkNr, firstInChunk, err := stbl.Stsc.ChunkNrFromSampleNr(int(nr))
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", nr, err)
		}
		if chunkNr != prevChunk {
			switch {
			case stbl.Stco != nil:
				chunkOffset, err = stbl.Stco.GetOffset(chunkNr)
				if err != nil {
					return nil, fmt.Errorf("chunk %d: %w", chunkNr, err)
				}
			case stbl.Co64 != nil:
				if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
					return nil, fmt.Errorf("chunk %d out of range", chunkNr)
				}
				chunkOffset = stbl.Co64.ChunkOffset[chunkNr-1]
			default:
				return nil, ErrSampleTableNotFound
			}
			prevChunk = chunkNr
		}

		offset := chunkOffset
		for s := uint32(firstInChunk); s < nr; s++ {
			offset += uint64(stbl.Stsz.GetSampleSize(int(s)))
		}

		decodeTime, dur := stbl.Stts.GetDecodeTime(nr)
		var cto int64
		if stbl.Ctts != nil {
			cto = int64(stbl.Ctts.GetCompositionTimeOffset(nr))
		}
		t.Samples = append(t.Samples, Sample{
			Offset:   int64(offset),
			Size:     int64(stbl.Stsz.GetSampleSize(int(nr))),
			PTS:      t.toDuration(int64(decodeTime) + cto - shift),
			Duration: t.toDuration(int64(dur)),
			Sync:     allSync || syncs[nr],
		})
	}
	t.finish()
	return t, nil
}

// fragmentedTable builds a table from moof boxes. Each traf's data starts at
// tfhd's base_data_offset when present, at the moof when default-base-is-moof
// is set or for the first traf, and otherwise where the previous traf's data
// ended. A trun without a data offset continues after the previous run.
func fragmentedTable(vt videoTrack, moofs []*mp4.MoofBox) (*SampleTable, error) {
	t := newTableHeader(vt)
	t.Fragmented = true
	trackID := vt.trak.Tkhd.TrackID
	shift := editShift(vt.trak)

	var nextDecodeTime uint64
	for _, moof := range moofs {
		prevEnd := int64(moof.StartPos)
		for i, traf := range moof.Trafs {
			if traf.Tfhd == nil {
				continue
			}
			base := prevEnd
			switch {
			case traf.Tfhd.HasBaseDataOffset():
				base = int64(traf.Tfhd.BaseDataOffset)
			case traf.Tfhd.DefaultBaseIfMoof() || i == 0:
				base = int64(moof.StartPos)
			}
			own := traf.Tfhd.TrackID == trackID

			decodeTime := nextDecodeTime
			if own && traf.Tfdt != nil {
				decodeTime = traf.Tfdt.BaseMediaDecodeTime()
			}
			pos := base
			for _, trun := range traf.Truns {
				trun.AddSampleDefaultValues(traf.Tfhd, vt.trexs[traf.Tfhd.TrackID])
				if trun.HasDataOffset() {
					pos = base + int64(trun.DataOffset)
				}
				for _, s := range trun.Samples {
					if own {
						t.Samples = append(t.Samples, Sample{
							Offset:   pos,
							Size:     int64(s.Size),
							PTS:      t.toDuration(int64(decodeTime) + int64(s.CompositionTimeOffset) - shift),
							Duration: t.toDuration(int64(s.Dur)),
							Sync:     isSyncFlags(s.Flags),
						})
					}
					pos += int64(s.Size)
					decodeTime += uint64(s.Dur)
				}
			}
			prevEnd = pos
			if own {
				nextDecodeTime = decodeTime
			}
		}
	}
	if len(t.Samples) == 0 {
		return nil, ErrSampleTableNotFound
	}
	t.finish()
	return t, nil
}

// isSyncFlags checks sample_is_non_sync_sample (bit 16) of ISO sample flags.
func isSyncFlags(flags uint32) bool {
	return flags&0x00010000 == 0
}
