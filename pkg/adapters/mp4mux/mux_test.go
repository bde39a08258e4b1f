package mp4mux

import (
	"bytes"
	"testing"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/frameflow/pkg/mocks"
	"github.com/user/frameflow/pkg/ports"
)

func writeStream(t *testing.T, m *Muxer, frames, gop int, fps float64) {
	t.Helper()
	frameDur := time.Duration(float64(time.Second) / fps)
	for i := 0; i < frames; i++ {
		key := i%gop == 0
		err := m.WriteChunk(ports.EncodedChunk{
			Data:     mocks.AccessUnit(key, byte(i+1)),
			PTS:      time.Duration(i) * frameDur,
			Duration: frameDur,
			Key:      key,
		})
		if err != nil {
			t.Fatalf("WriteChunk %d: %v", i, err)
		}
	}
}

func TestMuxer_Finalize(t *testing.T) {
	m := New(64, 64, 30)
	writeStream(t, m, 30, 10, 30)

	data, err := m.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if string(data[4:8]) != "ftyp" {
		t.Fatalf("expected ftyp box, got %q", string(data[4:8]))
	}

	f, err := mp4.DecodeFile(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeFile failed: %v", err)
	}
	if !f.IsFragmented() {
		t.Fatal("expected fragmented output")
	}

	var trex *mp4.TrexBox
	if f.Init.Moov.Mvex != nil && len(f.Init.Moov.Mvex.Trexs) > 0 {
		trex = f.Init.Moov.Mvex.Trexs[0]
	}

	var samples, syncs, frags int
	for _, seg := range f.Segments {
		for _, frag := range seg.Fragments {
			frags++
			full, err := frag.GetFullSamples(trex)
			if err != nil {
				t.Fatalf("GetFullSamples: %v", err)
			}
			for _, s := range full {
				samples++
				if s.Flags == mp4.SyncSampleFlags {
					syncs++
				}
			}
		}
	}
	if samples != 30 {
		t.Errorf("expected 30 samples, got %d", samples)
	}
	if syncs != 3 {
		t.Errorf("expected 3 sync samples, got %d", syncs)
	}
	if frags != 3 {
		t.Errorf("expected one fragment per GOP (3), got %d", frags)
	}
}

func TestMuxer_Errors(t *testing.T) {
	m := New(64, 64, 30)
	if _, err := m.Finalize(); err != ErrNoChunks {
		t.Errorf("expected ErrNoChunks, got %v", err)
	}

	m = New(64, 64, 30)
	err := m.WriteChunk(ports.EncodedChunk{Data: mocks.AccessUnit(false, 1)})
	if err != ErrFirstNotKey {
		t.Errorf("expected ErrFirstNotKey, got %v", err)
	}

	writeStream(t, m, 2, 10, 30)
	if _, err := m.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if err := m.WriteChunk(ports.EncodedChunk{Data: mocks.AccessUnit(true, 1), Key: true}); err != ErrFinalized {
		t.Errorf("expected ErrFinalized, got %v", err)
	}
}
