package ports

import (
	"context"
	"errors"
	"image"
	"io"
)

// AssetInfo describes a stored asset.
type AssetInfo struct {
	ID       string
	Size     int64
	MimeType string
}

// AssetStore provides random access to stored media assets.
type AssetStore interface {
	// Stat returns metadata for the asset.
	Stat(ctx context.Context, id string) (AssetInfo, error)

	// ReadRange reads n bytes starting at off. A short read at the end of the
	// asset is not an error.
	ReadRange(ctx context.Context, id string, off, n int64) ([]byte, error)

	// Open returns a reader over the whole asset.
	Open(ctx context.Context, id string) (io.ReadCloser, error)
}

// Segmenter produces a foreground mask for an image.
type Segmenter interface {
	// Segment returns an alpha mask the size of img. White keeps the pixel.
	Segment(ctx context.Context, img image.Image, model string) (*image.Gray, error)
}

// ErrUnknownModel is returned by a Segmenter for a model it does not provide.
var ErrUnknownModel = errors.New("segmenter: unknown model")
