package ports

import (
	"image"
)

// DebugSink abstracts debug output for intermediate results.
// It allows saving intermediate processing results for debugging purposes.
type DebugSink interface {
	// Enabled returns true if debug output is enabled.
	Enabled() bool

	// SaveFrame saves a composed frame.
	SaveFrame(index int, img image.Image) error

	// SaveSampleTable saves a parsed sample table as JSON.
	SaveSampleTable(assetID string, data []byte) error

	// SaveTrack saves motion tracking samples as JSON.
	SaveTrack(jobID string, data []byte) error
}
