// Package filesink provides a file-based debug sink implementation.
package filesink

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/user/frameflow/pkg/ports"
)

// Sink saves debug output to files.
type Sink struct {
	baseDir  string
	fs       ports.FileSystem
	renderer ports.Renderer
}

// New creates a new FileSink.
func New(baseDir string, fs ports.FileSystem, renderer ports.Renderer) *Sink {
	return &Sink{
		baseDir:  baseDir,
		fs:       fs,
		renderer: renderer,
	}
}

// Enabled returns true as this sink saves output.
func (s *Sink) Enabled() bool {
	return true
}

// SaveFrame saves a composed frame as PNG.
func (s *Sink) SaveFrame(index int, img image.Image) error {
	dir := filepath.Join(s.baseDir, "frames")
	if err := s.fs.MkdirAll(dir); err != nil {
		return err
	}
	data, err := s.renderer.EncodeImage(img, ports.FormatPNG, 0)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("frame-%05d.png", index))
	return s.fs.WriteFile(path, data)
}

// SaveSampleTable saves a parsed sample table as JSON.
func (s *Sink) SaveSampleTable(assetID string, data []byte) error {
	path := filepath.Join(s.baseDir, "samples", safeName(assetID)+".json")
	return s.fs.WriteFile(path, data)
}

// SaveTrack saves motion tracking samples as JSON.
func (s *Sink) SaveTrack(jobID string, data []byte) error {
	path := filepath.Join(s.baseDir, "tracks", safeName(jobID)+".json")
	return s.fs.WriteFile(path, data)
}

// safeName flattens an identifier into a single path element.
func safeName(id string) string {
	if id == "" {
		return "_"
	}
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_").Replace(id)
}

// Ensure Sink implements ports.DebugSink
var _ ports.DebugSink = (*Sink)(nil)
