package scheduler

import "time"

// FPS bounds.
const (
	MinFPS     = 1
	MaxFPS     = 240
	DefaultFPS = 30
)

// Mode selects what the engine renders.
type Mode int

const (
	// ModeComposition previews the scene independent of the timeline.
	ModeComposition Mode = iota
	// ModeTimeline plays the ordered track and clip sequence.
	ModeTimeline
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeComposition:
		return "composition"
	case ModeTimeline:
		return "timeline"
	default:
		return "unknown"
	}
}

// ParseMode maps "composition" and "timeline" to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "composition", "":
		return ModeComposition, true
	case "timeline":
		return ModeTimeline, true
	default:
		return ModeComposition, false
	}
}

// Config tunes the render loop.
type Config struct {
	Width  int     `yaml:"width" toml:"width"`
	Height int     `yaml:"height" toml:"height"`
	FPS    float64 `yaml:"fps" toml:"fps"`

	// Padding surrounds the letterboxed scene in composition mode.
	Padding float64 `yaml:"padding" toml:"padding"`
	// Void fills the area outside the scene frame.
	Void string `yaml:"void" toml:"void"`

	// TimeEventInterval is the minimum gap between TimeChanged events while
	// playing.
	TimeEventInterval time.Duration `yaml:"time_event_interval" toml:"time_event_interval"`
	SweepInterval     time.Duration `yaml:"sweep_interval" toml:"sweep_interval"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" toml:"idle_timeout"`
	// RetryInterval delays another load of a resource that failed.
	RetryInterval time.Duration `yaml:"retry_interval" toml:"retry_interval"`
	// FrameTolerance is how far a cached video frame may be from the wanted
	// time and still count as current.
	FrameTolerance time.Duration `yaml:"frame_tolerance" toml:"frame_tolerance"`

	// MaxLoads bounds concurrent asynchronous loads.
	MaxLoads int `yaml:"max_loads" toml:"max_loads"`
	// EventBuffer is the capacity of the event channel.
	EventBuffer int `yaml:"event_buffer" toml:"event_buffer"`
	// ReadBack attaches the rendered pixels to FrameRendered events.
	ReadBack bool `yaml:"read_back" toml:"read_back"`
}

// DefaultConfig returns a 1920x1080 loop at 30 fps.
func DefaultConfig() Config {
	return Config{
		Width:             1920,
		Height:            1080,
		FPS:               DefaultFPS,
		Padding:           40,
		Void:              "#111111",
		TimeEventInterval: 250 * time.Millisecond,
		SweepInterval:     5 * time.Second,
		IdleTimeout:       10 * time.Second,
		RetryInterval:     time.Second,
		FrameTolerance:    50 * time.Millisecond,
		MaxLoads:          4,
		EventBuffer:       64,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Width <= 0 || c.Height <= 0 {
		c.Width, c.Height = d.Width, d.Height
	}
	if c.FPS == 0 {
		c.FPS = d.FPS
	}
	c.FPS = ClampFPS(c.FPS)
	if c.Padding < 0 {
		c.Padding = 0
	}
	if c.Void == "" {
		c.Void = d.Void
	}
	if c.TimeEventInterval <= 0 {
		c.TimeEventInterval = d.TimeEventInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = d.RetryInterval
	}
	if c.FrameTolerance <= 0 {
		c.FrameTolerance = d.FrameTolerance
	}
	if c.MaxLoads <= 0 {
		c.MaxLoads = d.MaxLoads
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	return c
}

// ClampFPS limits fps to [MinFPS, MaxFPS].
func ClampFPS(fps float64) float64 {
	return max(MinFPS, min(MaxFPS, fps))
}

// interval returns the tick period for fps.
func interval(fps float64) time.Duration {
	return time.Duration(float64(time.Second) / ClampFPS(fps))
}
