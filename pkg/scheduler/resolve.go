package scheduler

import (
	"context"
	"fmt"
	"image"

	"github.com/user/frameflow/pkg/compositor"
	"github.com/user/frameflow/pkg/ports"
	"github.com/user/frameflow/pkg/scene"
)

// resolver supplies the textures and effect resources of one frame. A
// resource that is not ready yields an error wrapping ErrResourceUnavailable
// and the element is skipped.
type resolver interface {
	image(ctx context.Context, assetID string) (*image.RGBA, error)
	video(ctx context.Context, owner, assetID string, ms float64) (*image.RGBA, error)
	camera(owner string) (*image.RGBA, error)
	text(p scene.TextPayload) (*image.RGBA, error)
	lut(ctx context.Context, source string) (compositor.LUTHandle, error)
	mask(ctx context.Context, owner, model string, src *image.RGBA) (*image.Gray, error)
}

// syncResolver awaits every resource. Still images, texts, tables and masks
// are kept for the life of the resolver; video frames are decoded per call.
type syncResolver struct {
	load    loader
	comp    compositor.Compositor
	log     ports.Logger
	cameras func(owner string) (*image.RGBA, bool)

	images map[string]*image.RGBA
	texts  map[string]*image.RGBA
	luts   map[string]compositor.LUTHandle
	masks  map[string]*image.Gray
	failed map[string]bool
}

func newSyncResolver(load loader, comp compositor.Compositor, log ports.Logger) *syncResolver {
	return &syncResolver{
		load:   load,
		comp:   comp,
		log:    log,
		images: make(map[string]*image.RGBA),
		texts:  make(map[string]*image.RGBA),
		luts:   make(map[string]compositor.LUTHandle),
		masks:  make(map[string]*image.Gray),
		failed: make(map[string]bool),
	}
}

// skip turns a permanent failure into an empty slot, warning once per key.
// Other errors are returned as is so the caller can retry the frame.
func (r *syncResolver) skip(key string, err error) error {
	if !permanent(err) {
		return err
	}
	if !r.failed[key] {
		r.failed[key] = true
		r.log.Warn("Skipping %s: %v", key, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrResourceUnavailable, key, err)
}

func (r *syncResolver) image(ctx context.Context, assetID string) (*image.RGBA, error) {
	if img, ok := r.images[assetID]; ok {
		return img, nil
	}
	key := "image:" + assetID
	if r.failed[key] {
		return nil, ErrResourceUnavailable
	}
	img, err := r.load.image(ctx, assetID)
	if err != nil {
		return nil, r.skip(key, err)
	}
	r.images[assetID] = img
	return img, nil
}

func (r *syncResolver) video(ctx context.Context, owner, assetID string, ms float64) (*image.RGBA, error) {
	key := "video:" + assetID
	if r.failed[key] {
		return nil, ErrResourceUnavailable
	}
	img, _, err := r.load.video(ctx, assetID, ms)
	if err != nil {
		return nil, r.skip(key, err)
	}
	return img, nil
}

func (r *syncResolver) camera(owner string) (*image.RGBA, error) {
	if r.cameras != nil {
		if img, ok := r.cameras(owner); ok {
			return img, nil
		}
	}
	return nil, ErrResourceUnavailable
}

func (r *syncResolver) text(p scene.TextPayload) (*image.RGBA, error) {
	key := textKey(p)
	if img, ok := r.texts[key]; ok {
		return img, nil
	}
	img, err := r.load.text(p)
	if err != nil {
		return nil, err
	}
	r.texts[key] = img
	return img, nil
}

func (r *syncResolver) lut(ctx context.Context, source string) (compositor.LUTHandle, error) {
	if h, ok := r.luts[source]; ok {
		return h, nil
	}
	key := "lut:" + source
	if r.failed[key] {
		return 0, ErrResourceUnavailable
	}
	t, err := r.load.table(ctx, source)
	if err != nil {
		return 0, r.skip(key, err)
	}
	h, err := r.comp.CreateLUT(t)
	if err != nil {
		return 0, err
	}
	r.luts[source] = h
	return h, nil
}

func (r *syncResolver) mask(ctx context.Context, owner, model string, src *image.RGBA) (*image.Gray, error) {
	if m, ok := r.masks[owner]; ok {
		return m, nil
	}
	m, err := r.load.mask(ctx, src, model)
	if err != nil {
		return nil, err
	}
	r.masks[owner] = m
	return m, nil
}
