// Package main provides the CLI entry point for frameflow.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/frameflow/pkg/adapters/ffmpeg"
	"github.com/user/frameflow/pkg/adapters/filesink"
	"github.com/user/frameflow/pkg/adapters/ggrenderer"
	"github.com/user/frameflow/pkg/adapters/h264decoder"
	"github.com/user/frameflow/pkg/adapters/logger"
	"github.com/user/frameflow/pkg/adapters/matte"
	"github.com/user/frameflow/pkg/adapters/nullsink"
	"github.com/user/frameflow/pkg/adapters/osfilesystem"
	"github.com/user/frameflow/pkg/config"
	"github.com/user/frameflow/pkg/ports"
	"github.com/user/frameflow/pkg/scene"
	"github.com/user/frameflow/pkg/scheduler"
)

var version = "dev"

// Flag categories
const (
	catInput   = "Input"
	catOutput  = "Output"
	catVideo   = "Video and Quality"
	catDebug   = "Debug"
	catLogging = "Logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, l10n.T("Interrupted, shutting down..."))
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:        "frameflow",
		Usage:       l10n.T("Compose, play back and export layered video projects"),
		Description: l10n.T("frameflow renders scene and timeline projects to frames and MP4 files."),
		Version:     version,
		Flags:       globalFlags(),
		Commands: []*cli.Command{
			renderCommand(),
			exportCommand(),
			trackCommand(),
			inspectCommand(),
			lutCommand(),
			versionCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: l10n.T("Configuration file (YAML or TOML)"), EnvVars: []string{"FRAMEFLOW_CONFIG"}, Category: l10n.T(catInput)},
		&cli.StringFlag{Name: "assets", Aliases: []string{"a"}, Usage: l10n.T("Directory that asset ids are resolved against"), Category: l10n.T(catInput)},
		&cli.StringFlag{Name: "ffmpeg", Usage: l10n.T("Path to ffmpeg executable"), EnvVars: []string{"FFMPEG_PATH"}, Category: l10n.T(catInput)},
		&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: l10n.T("Enable debug output"), Category: l10n.T(catDebug)},
		&cli.StringFlag{Name: "debug-dir", Usage: l10n.T("Directory for debug output"), Category: l10n.T(catDebug)},
		&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Usage: l10n.T("Log level (debug, info, warn, error)"), Category: l10n.T(catLogging)},
		&cli.StringFlag{Name: "log-format", Usage: l10n.T("Log format (console, text, json)"), Category: l10n.T(catLogging)},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"Q"}, Usage: l10n.T("Suppress all log output"), Category: l10n.T(catLogging)},
	}
}

// renderFlags are shared by commands that render a project.
func renderFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: l10n.T("Project file (YAML)"), Category: l10n.T(catInput)},
		&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: l10n.T("Render mode (composition, timeline)"), Category: l10n.T(catVideo)},
		&cli.IntFlag{Name: "width", Aliases: []string{"W"}, Usage: l10n.T("Output width in pixels"), Category: l10n.T(catVideo)},
		&cli.IntFlag{Name: "height", Aliases: []string{"H"}, Usage: l10n.T("Output height in pixels"), Category: l10n.T(catVideo)},
		&cli.Float64Flag{Name: "fps", Usage: l10n.T("Frames per second"), Category: l10n.T(catVideo)},
	}
}

// env holds the adapters shared by all commands.
type env struct {
	cfg      config.Config
	log      ports.Logger
	fs       *osfilesystem.FileSystem
	renderer *ggrenderer.Renderer
	sink     ports.DebugSink
	quiet    bool
}

func setup(c *cli.Context) (*env, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	applyFlags(c, &cfg)

	level := ports.ParseLogLevel(cfg.LogLevel)
	quiet := c.Bool("quiet")
	if quiet {
		level = ports.LevelQuiet
	}
	log, err := logger.New(level, cfg.LogFormat, os.Stderr)
	if err != nil {
		return nil, err
	}
	if cfg.FFmpegPath != "" {
		ffmpeg.SetPath(cfg.FFmpegPath)
	}

	e := &env{
		cfg:      cfg,
		log:      log,
		fs:       osfilesystem.New(),
		renderer: ggrenderer.New(),
		quiet:    quiet,
	}
	if cfg.Debug {
		if err := e.fs.MkdirAll(cfg.DebugDir); err != nil {
			return nil, fmt.Errorf("create debug directory: %w", err)
		}
		e.sink = filesink.New(cfg.DebugDir, e.fs, e.renderer)
	} else {
		e.sink = nullsink.New()
	}
	return e, nil
}

// applyFlags overrides file configuration with flags set on the command line.
func applyFlags(c *cli.Context, cfg *config.Config) {
	str := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	num := func(name string, dst *int) {
		if c.IsSet(name) {
			*dst = c.Int(name)
		}
	}
	float := func(name string, dst *float64) {
		if c.IsSet(name) {
			*dst = c.Float64(name)
		}
	}

	str("assets", &cfg.AssetDir)
	str("ffmpeg", &cfg.FFmpegPath)
	str("debug-dir", &cfg.DebugDir)
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}

	str("project", &cfg.ProjectPath)
	str("output", &cfg.OutputPath)
	str("mode", &cfg.Mode)
	num("width", &cfg.Width)
	num("height", &cfg.Height)
	float("fps", &cfg.FPS)

	float("duration", &cfg.Export.DurationMs)
	num("quality", &cfg.Export.Quality)
	num("bitrate", &cfg.Export.Bitrate)
	num("keyframe-interval", &cfg.Export.KeyframeInterval)
	num("workers", &cfg.Export.Workers)
}

func (e *env) loadProject() (*scene.Project, error) {
	if e.cfg.ProjectPath == "" {
		return nil, fmt.Errorf("%s", l10n.T("A project file is required (--project)"))
	}
	data, err := e.fs.ReadFile(e.cfg.ProjectPath)
	if err != nil {
		return nil, err
	}
	p, err := scene.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.cfg.ProjectPath, err)
	}
	e.log.Info("Loaded project %s", e.cfg.ProjectPath)
	return p, nil
}

func (e *env) deps() (scheduler.Deps, error) {
	seg, err := matte.New(e.cfg.Matte, e.log)
	if err != nil {
		return scheduler.Deps{}, err
	}
	return scheduler.Deps{
		Assets:     osfilesystem.NewAssetStore(e.cfg.AssetDir),
		Renderer:   e.renderer,
		Segmenter:  seg,
		Decoders:   func() ports.VideoDecoder { return h264decoder.New() },
		Decode:     e.cfg.ToDecodeConfig(),
		Compositor: scheduler.DefaultCompositor(e.cfg.ToCompositorConfig(), e.renderer),
		Sink:       e.sink,
		Log:        e.log,
	}, nil
}
