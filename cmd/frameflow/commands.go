package main

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/ideamans/go-l10n"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"github.com/user/frameflow/pkg/adapters/h264encoder"
	"github.com/user/frameflow/pkg/adapters/mp4mux"
	"github.com/user/frameflow/pkg/decode"
	"github.com/user/frameflow/pkg/export"
	"github.com/user/frameflow/pkg/lut"
	"github.com/user/frameflow/pkg/ports"
	"github.com/user/frameflow/pkg/scheduler"
	"github.com/user/frameflow/pkg/tracker"
)

// ErrLocked is returned when another export holds the output lock.
var ErrLocked = errors.New("output is locked by another export")

func renderCommand() *cli.Command {
	return &cli.Command{
		Name:        "render",
		Usage:       l10n.T("Render a single frame as PNG"),
		Description: l10n.T("Render the project at the given time and save the frame as a PNG image."),
		Flags: append(renderFlags(),
			&cli.Float64Flag{Name: "time", Aliases: []string{"t"}, Usage: l10n.T("Time in milliseconds"), Category: l10n.T(catVideo)},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "frame.png", Usage: l10n.T("Output PNG file path"), Category: l10n.T(catOutput)},
		),
		Action: runRender,
	}
}

func runRender(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	p, err := e.loadProject()
	if err != nil {
		return err
	}
	mode, err := e.cfg.RenderMode()
	if err != nil {
		return err
	}
	deps, err := e.deps()
	if err != nil {
		return err
	}

	h, err := scheduler.NewHeadless(p, mode, e.cfg.Width, e.cfg.Height, deps)
	if err != nil {
		return err
	}
	defer h.Close()

	img, err := h.RenderFrame(c.Context, c.Float64("time"))
	if err != nil {
		return err
	}
	data, err := e.renderer.EncodeImage(img, ports.FormatPNG, 0)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	out := c.String("output")
	if err := e.fs.WriteFile(out, data); err != nil {
		return err
	}
	e.log.Info("Output saved to %s", out)
	return nil
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:        "export",
		Usage:       l10n.T("Export the project as MP4 video"),
		Description: l10n.T("Render every frame of the project and encode it as an H.264 MP4 file."),
		Flags: append(renderFlags(),
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: l10n.T("Output MP4 file path"), Category: l10n.T(catOutput)},
			&cli.Float64Flag{Name: "duration", Usage: l10n.T("Duration in milliseconds (default: timeline length)"), Category: l10n.T(catVideo)},
			&cli.IntFlag{Name: "quality", Aliases: []string{"q"}, Usage: l10n.T("Video CRF value (0-51, lower is better)"), Category: l10n.T(catVideo)},
			&cli.IntFlag{Name: "bitrate", Usage: l10n.T("Target bitrate in bits per second"), Category: l10n.T(catVideo)},
			&cli.IntFlag{Name: "keyframe-interval", Usage: l10n.T("Frames between keyframes (default: 2 seconds)"), Category: l10n.T(catVideo)},
			&cli.IntFlag{Name: "workers", Aliases: []string{"j"}, Usage: l10n.T("Parallel renderers (0 = auto, 1 = sequential)"), Category: l10n.T(catVideo)},
		),
		Action: runExport,
	}
}

func runExport(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	p, err := e.loadProject()
	if err != nil {
		return err
	}
	job, err := e.cfg.ToExportJob(p)
	if err != nil {
		return err
	}
	deps, err := e.deps()
	if err != nil {
		return err
	}

	out := e.cfg.OutputPath
	lock := flock.New(out + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLocked, out)
	}
	defer lock.Unlock()

	ex := export.New(export.Deps{
		Renderers: export.HeadlessFactory(deps),
		Encoders:  func() ports.VideoEncoder { return h264encoder.New() },
		Muxers: func(width, height int, fps float64) ports.Muxer {
			return mp4mux.New(width, height, fps)
		},
		Sink: e.sink,
		Log:  e.log,
	}, e.cfg.ToExportConfig())

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(l10n.T("Exporting")),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetVisibility(!e.quiet && isatty.IsTerminal(os.Stderr.Fd())),
		progressbar.OptionClearOnFinish(),
	)
	res, err := ex.Export(c.Context, job, export.ObserverFuncs{
		OnProgress: func(done, total int) {
			if bar.GetMax() != total {
				bar.ChangeMax(total)
			}
			_ = bar.Set(done)
		},
	})
	_ = bar.Finish()
	if err != nil {
		return err
	}

	if err := e.fs.WriteFile(out, res.Data); err != nil {
		return err
	}
	e.log.Info("Exported %d frames with %d workers in %s", res.Frames, res.Workers, res.Elapsed.Round(time.Millisecond))
	e.log.Info("Output saved to %s", out)
	return nil
}

func trackCommand() *cli.Command {
	return &cli.Command{
		Name:        "track",
		Usage:       l10n.T("Track a region and write it as keyframes"),
		Description: l10n.T("Follow a region across frames and save the motion as x/y keyframes of the target."),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: l10n.T("Project file (YAML)"), Category: l10n.T(catInput)},
			&cli.StringFlag{Name: "target", Required: true, Usage: l10n.T("Element or clip id to animate"), Category: l10n.T(catInput)},
			&cli.StringFlag{Name: "roi", Required: true, Usage: l10n.T("Region to follow as x,y,w,h"), Category: l10n.T(catInput)},
			&cli.Float64Flag{Name: "start", Usage: l10n.T("Start time in milliseconds"), Category: l10n.T(catVideo)},
			&cli.Float64Flag{Name: "end", Required: true, Usage: l10n.T("End time in milliseconds"), Category: l10n.T(catVideo)},
			&cli.Float64Flag{Name: "step", Usage: l10n.T("Time between samples in milliseconds (default: one frame)"), Category: l10n.T(catVideo)},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: l10n.T("Output project path (default: overwrite the input)"), Category: l10n.T(catOutput)},
		},
		Action: runTrack,
	}
}

func runTrack(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	p, err := e.loadProject()
	if err != nil {
		return err
	}
	roi, err := parseROI(c.String("roi"))
	if err != nil {
		return err
	}
	deps, err := e.deps()
	if err != nil {
		return err
	}

	step := c.Float64("step")
	if step <= 0 {
		step = 1000 / p.FPS
	}
	req := scheduler.TrackRequest{
		TargetID: c.String("target"),
		ROI:      roi,
		StartMs:  c.Float64("start"),
		EndMs:    c.Float64("end"),
		StepMs:   step,
		Tracker:  e.cfg.Tracker,
	}
	e.log.Info("Tracking %s from %.0fms to %.0fms", req.TargetID, req.StartMs, req.EndMs)
	samples, err := scheduler.TrackTarget(c.Context, p, req, deps, nil)
	if err != nil {
		return err
	}
	e.log.Info("Tracked %d samples (%d lost)", len(samples), tracker.LostCount(samples))

	data, err := p.Marshal()
	if err != nil {
		return err
	}
	out := c.String("output")
	if out == "" {
		out = e.cfg.ProjectPath
	}
	if err := e.fs.WriteFile(out, data); err != nil {
		return err
	}
	e.log.Info("Output saved to %s", out)
	return nil
}

// parseROI parses "x,y,w,h".
func parseROI(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("invalid region %q: want x,y,w,h", s)
	}
	var v [4]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("invalid region %q: %w", s, err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return image.Rectangle{}, fmt.Errorf("invalid region %q: empty", s)
	}
	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:        "inspect",
		Usage:       l10n.T("Show the sample tables of video assets"),
		Description: l10n.T("Parse the MP4 index of each asset and print a summary table."),
		ArgsUsage:   "<asset-id>...",
		Action:      runInspect,
	}
}

func runInspect(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("%s", l10n.T("At least one asset id is required"))
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	deps, err := e.deps()
	if err != nil {
		return err
	}
	manager := decode.NewManager(deps.Assets, deps.Decoders, deps.Decode, e.log, decode.WithDebugSink(e.sink))
	defer manager.Close()

	headers := []string{l10n.T("Asset"), l10n.T("Codec"), l10n.T("Size"), l10n.T("Samples"), l10n.T("Sync"), l10n.T("Duration"), l10n.T("Fragmented")}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft}
	var rows [][]string
	failed := 0
	for _, id := range c.Args().Slice() {
		st, err := manager.Prepare(c.Context, id)
		if err != nil {
			failed++
			rows = append(rows, []string{id, err.Error()})
			continue
		}
		rows = append(rows, []string{
			id,
			st.Codec,
			fmt.Sprintf("%dx%d", st.Width, st.Height),
			strconv.Itoa(len(st.Samples)),
			strconv.Itoa(st.SyncCount()),
			st.Duration().Round(time.Millisecond).String(),
			strconv.FormatBool(st.Fragmented),
		})
	}
	fmt.Fprintln(c.App.Writer, renderTable(headers, rows, aligns))
	if failed > 0 {
		return fmt.Errorf("%s", l10n.F("%d of %d assets could not be read", failed, c.NArg()))
	}
	return nil
}

func lutCommand() *cli.Command {
	return &cli.Command{
		Name:        "lut",
		Usage:       l10n.T("Write an identity .cube lookup table"),
		Description: l10n.T("Generate an identity 3D LUT to use as a starting point for color grading."),
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "size", Value: lut.DefaultIdentitySize, Usage: l10n.T("Table edge length"), Category: l10n.T(catOutput)},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "-", Usage: l10n.T("Output .cube file path (- for stdout)"), Category: l10n.T(catOutput)},
		},
		Action: runLUT,
	}
}

func runLUT(c *cli.Context) error {
	size := c.Int("size")
	if size < 2 || size > 256 {
		return fmt.Errorf("%w: %d", lut.ErrInvalidSize, size)
	}
	var w io.Writer = c.App.Writer
	if out := c.String("output"); out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	_, err := lut.Identity(size).WriteTo(w)
	return err
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: l10n.T("Show version information"),
		Action: func(c *cli.Context) error {
			fmt.Fprintln(c.App.Writer, l10n.F("frameflow version %s", version))
			return nil
		},
	}
}
