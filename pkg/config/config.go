// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/user/frameflow/pkg/adapters/matte"
	"github.com/user/frameflow/pkg/compositor"
	"github.com/user/frameflow/pkg/decode"
	"github.com/user/frameflow/pkg/export"
	"github.com/user/frameflow/pkg/scene"
	"github.com/user/frameflow/pkg/scheduler"
	"github.com/user/frameflow/pkg/tracker"
)

// Config represents the full configuration for frameflow.
type Config struct {
	// Input/Output
	ProjectPath string `yaml:"project" toml:"project"`
	AssetDir    string `yaml:"assets" toml:"assets"`
	OutputPath  string `yaml:"output" toml:"output"`

	// Rendering
	Mode    string  `yaml:"mode" toml:"mode"`
	Width   int     `yaml:"width" toml:"width"`
	Height  int     `yaml:"height" toml:"height"`
	FPS     float64 `yaml:"fps" toml:"fps"`
	Padding float64 `yaml:"padding" toml:"padding"`
	Void    string  `yaml:"void" toml:"void"`

	Compositor CompositorConfig `yaml:"compositor" toml:"compositor"`
	Decode     DecodeConfig     `yaml:"decode" toml:"decode"`
	Export     ExportConfig     `yaml:"export" toml:"export"`
	Tracker    tracker.Config   `yaml:"tracker" toml:"tracker"`
	Matte      matte.Config     `yaml:"matte" toml:"matte"`

	// FFmpegPath overrides the ffmpeg search.
	FFmpegPath string `yaml:"ffmpeg" toml:"ffmpeg"`

	// Logging
	LogLevel  string `yaml:"log_level" toml:"log_level"`
	LogFormat string `yaml:"log_format" toml:"log_format"`

	// Debug
	Debug    bool   `yaml:"debug" toml:"debug"`
	DebugDir string `yaml:"debug_dir" toml:"debug_dir"`
}

// CompositorConfig selects the compositing backend.
type CompositorConfig struct {
	Backend        string `yaml:"backend" toml:"backend"`
	Workers        int    `yaml:"workers" toml:"workers"`
	MaxTextureSize int    `yaml:"max_texture_size" toml:"max_texture_size"`
}

// DecodeConfig tunes video decoding. Durations are in milliseconds.
type DecodeConfig struct {
	InitialWindowMB  int  `yaml:"initial_window_mb" toml:"initial_window_mb"`
	Rescan           bool `yaml:"rescan" toml:"rescan"`
	MaxScanMB        int  `yaml:"max_scan_mb" toml:"max_scan_mb"`
	MaxSequentialGap int  `yaml:"max_sequential_gap" toml:"max_sequential_gap"`
	ToleranceMs      int  `yaml:"tolerance_ms" toml:"tolerance_ms"`
	RequestTimeoutMs int  `yaml:"request_timeout_ms" toml:"request_timeout_ms"`
	WaitTimeoutMs    int  `yaml:"wait_timeout_ms" toml:"wait_timeout_ms"`
	RecentFrames     int  `yaml:"recent_frames" toml:"recent_frames"`
}

// ExportConfig configures encoding.
type ExportConfig struct {
	DurationMs       float64 `yaml:"duration_ms" toml:"duration_ms"`
	Quality          int     `yaml:"quality" toml:"quality"`
	Bitrate          int     `yaml:"bitrate" toml:"bitrate"`
	KeyframeInterval int     `yaml:"keyframe_interval" toml:"keyframe_interval"`
	Codec            string  `yaml:"codec" toml:"codec"`
	Workers          int     `yaml:"workers" toml:"workers"`
	MaxQueueDepth    int     `yaml:"max_queue_depth" toml:"max_queue_depth"`
	Retries          int     `yaml:"retries" toml:"retries"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	comp := compositor.DefaultConfig()
	dec := decode.DefaultConfig()
	sched := scheduler.DefaultConfig()
	exp := export.DefaultConfig()
	return Config{
		// Input/Output
		AssetDir:   ".",
		OutputPath: "output.mp4",

		// Rendering
		Mode:    scheduler.ModeTimeline.String(),
		FPS:     sched.FPS,
		Padding: sched.Padding,
		Void:    sched.Void,

		Compositor: CompositorConfig{
			Backend:        comp.Backend,
			MaxTextureSize: comp.MaxTextureSize,
		},
		Decode: DecodeConfig{
			InitialWindowMB:  int(dec.InitialWindow >> 20),
			Rescan:           dec.Rescan,
			MaxScanMB:        int(dec.MaxScanBytes >> 20),
			MaxSequentialGap: dec.MaxSequentialGap,
			ToleranceMs:      int(dec.Tolerance / time.Millisecond),
			RequestTimeoutMs: int(dec.RequestTimeout / time.Millisecond),
			WaitTimeoutMs:    int(dec.WaitTimeout / time.Millisecond),
			RecentFrames:     dec.RecentFrames,
		},
		Export: ExportConfig{
			Bitrate:       export.DefaultBitrate,
			Codec:         export.DefaultCodec,
			MaxQueueDepth: exp.MaxQueueDepth,
			Retries:       exp.Retries,
		},
		Tracker: tracker.DefaultConfig(),
		Matte:   matte.DefaultConfig(),

		LogLevel:  "info",
		LogFormat: "console",

		// Debug
		DebugDir: "./debug",
	}
}

// LoadFromFile loads configuration from a YAML or TOML file, chosen by
// extension. Missing keys keep their defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".yaml", ".yml", "":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("config: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// ParseColor parses a hex color string, returning black when it is invalid.
func ParseColor(hex string) color.Color {
	return scene.ColorOr(hex, color.Black)
}

// RenderMode returns the configured render mode.
func (c Config) RenderMode() (scheduler.Mode, error) {
	m, ok := scheduler.ParseMode(c.Mode)
	if !ok {
		return m, fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	return m, nil
}

// ToSchedulerConfig converts Config to scheduler.Config.
func (c Config) ToSchedulerConfig() scheduler.Config {
	cfg := scheduler.DefaultConfig()
	if c.Width > 0 && c.Height > 0 {
		cfg.Width, cfg.Height = c.Width, c.Height
	}
	if c.FPS > 0 {
		cfg.FPS = c.FPS
	}
	cfg.Padding = c.Padding
	if c.Void != "" {
		cfg.Void = c.Void
	}
	return cfg
}

// ToDecodeConfig converts Config to decode.Config.
func (c Config) ToDecodeConfig() decode.Config {
	d := c.Decode
	return decode.Config{
		InitialWindow:    int64(d.InitialWindowMB) << 20,
		Rescan:           d.Rescan,
		MaxScanBytes:     int64(d.MaxScanMB) << 20,
		MaxSequentialGap: d.MaxSequentialGap,
		Tolerance:        time.Duration(d.ToleranceMs) * time.Millisecond,
		RequestTimeout:   time.Duration(d.RequestTimeoutMs) * time.Millisecond,
		WaitTimeout:      time.Duration(d.WaitTimeoutMs) * time.Millisecond,
		RecentFrames:     d.RecentFrames,
	}
}

// ToCompositorConfig converts Config to compositor.Config.
func (c Config) ToCompositorConfig() compositor.Config {
	cfg := compositor.DefaultConfig()
	if c.Compositor.Backend != "" {
		cfg.Backend = c.Compositor.Backend
	}
	cfg.Workers = c.Compositor.Workers
	if c.Compositor.MaxTextureSize > 0 {
		cfg.MaxTextureSize = c.Compositor.MaxTextureSize
	}
	if c.Width > 0 && c.Height > 0 {
		cfg.Width, cfg.Height = c.Width, c.Height
	}
	return cfg
}

// ToExportConfig converts Config to export.Config.
func (c Config) ToExportConfig() export.Config {
	return export.Config{
		Workers:       c.Export.Workers,
		MaxQueueDepth: c.Export.MaxQueueDepth,
		Retries:       c.Export.Retries,
	}
}

// ToExportJob builds an export job for p.
func (c Config) ToExportJob(p *scene.Project) (export.Job, error) {
	mode, err := c.RenderMode()
	if err != nil {
		return export.Job{}, err
	}
	return export.Job{
		Project:          p,
		Mode:             mode,
		Width:            c.Width,
		Height:           c.Height,
		FPS:              c.FPS,
		DurationMs:       c.Export.DurationMs,
		KeyframeInterval: c.Export.KeyframeInterval,
		Bitrate:          c.Export.Bitrate,
		Quality:          c.Export.Quality,
		Codec:            c.Export.Codec,
	}, nil
}
