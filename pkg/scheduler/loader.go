package scheduler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"golang.org/x/image/draw"

	"github.com/user/frameflow/pkg/decode"
	"github.com/user/frameflow/pkg/lut"
	"github.com/user/frameflow/pkg/ports"
	"github.com/user/frameflow/pkg/scene"
)

// Text defaults.
const (
	DefaultFontSize  = 30
	DefaultTextColor = "#ffffff"
)

var errImageDecode = errors.New("scheduler: image decode failed")

// loader performs blocking resource loads. It holds no state of its own and
// is safe to call from load goroutines.
type loader struct {
	assets    ports.AssetStore
	renderer  ports.Renderer
	segmenter ports.Segmenter
	manager   *decode.Manager
}

func (l loader) image(ctx context.Context, assetID string) (*image.RGBA, error) {
	if l.assets == nil || l.renderer == nil {
		return nil, fmt.Errorf("image %s: no asset store", assetID)
	}
	rc, err := l.assets.Open(ctx, assetID)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	img, err := l.renderer.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errImageDecode, assetID, err)
	}
	return toRGBA(img), nil
}

// video returns the frame of assetID presented at ms, with its own time.
func (l loader) video(ctx context.Context, assetID string, ms float64) (*image.RGBA, float64, error) {
	if l.manager == nil {
		return nil, 0, fmt.Errorf("video %s: no decoder", assetID)
	}
	f, err := l.manager.Frame(ctx, assetID, ms/1000)
	if err != nil {
		return nil, 0, err
	}
	return f.Image, durationMs(f.PTS), nil
}

func (l loader) table(ctx context.Context, source string) (*lut.Table, error) {
	if l.assets == nil {
		return nil, fmt.Errorf("lut %s: no asset store", source)
	}
	rc, err := l.assets.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return lut.Parse(rc)
}

func (l loader) mask(ctx context.Context, src *image.RGBA, model string) (*image.Gray, error) {
	if l.segmenter == nil {
		return nil, ErrResourceUnavailable
	}
	return l.segmenter.Segment(ctx, src, model)
}

func (l loader) text(p scene.TextPayload) (*image.RGBA, error) {
	if l.renderer == nil {
		return nil, fmt.Errorf("text: no renderer")
	}
	img, err := l.renderer.RenderText(p.Text, textStyle(p))
	if err != nil {
		return nil, err
	}
	return toRGBA(img), nil
}

func textStyle(p scene.TextPayload) ports.TextStyle {
	size := p.FontSize
	if size <= 0 {
		size = DefaultFontSize
	}
	c := p.Color
	if c == "" {
		c = DefaultTextColor
	}
	return ports.TextStyle{
		FontSize: size,
		FontPath: p.FontPath,
		Color:    scene.ColorOr(c, color.White),
		Align:    ports.ParseTextAlign(p.Align),
	}
}

// textKey identifies a rasterized text payload.
func textKey(p scene.TextPayload) string {
	return fmt.Sprintf("text:%g|%s|%s|%s|%s", p.FontSize, p.Color, p.Align, p.FontPath, p.Text)
}

// permanent reports whether a load error will not go away on retry.
func permanent(err error) bool {
	return errors.Is(err, decode.ErrDecodeFailure) ||
		errors.Is(err, decode.ErrSampleTableNotFound) ||
		errors.Is(err, decode.ErrNoVideoTrack) ||
		errors.Is(err, lut.ErrMissingHeader) ||
		errors.Is(err, lut.ErrShortData) ||
		errors.Is(err, lut.ErrInvalidSize) ||
		errors.Is(err, ports.ErrUnknownModel) ||
		errors.Is(err, errImageDecode)
}

// toRGBA returns img as an *image.RGBA anchored at the origin.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
