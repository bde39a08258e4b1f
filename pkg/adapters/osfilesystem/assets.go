package osfilesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/frameflow/pkg/ports"
)

// ErrAssetNotFound is returned for ids that do not name a file under the root.
var ErrAssetNotFound = errors.New("osfilesystem: asset not found")

// AssetStore serves assets from a directory. Asset ids are slash-separated
// paths relative to the root.
type AssetStore struct {
	root string
}

// NewAssetStore creates a store rooted at dir.
func NewAssetStore(dir string) *AssetStore {
	return &AssetStore{root: dir}
}

func (s *AssetStore) path(id string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(id))
	if id == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrAssetNotFound, id)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *AssetStore) open(id string) (*os.File, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrAssetNotFound, id)
	}
	return f, err
}

// Stat returns the size and extension-derived MIME type of the asset.
func (s *AssetStore) Stat(ctx context.Context, id string) (ports.AssetInfo, error) {
	p, err := s.path(id)
	if err != nil {
		return ports.AssetInfo{}, err
	}
	fi, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) || (err == nil && fi.IsDir()) {
		return ports.AssetInfo{}, fmt.Errorf("%w: %q", ErrAssetNotFound, id)
	}
	if err != nil {
		return ports.AssetInfo{}, err
	}
	return ports.AssetInfo{
		ID:       id,
		Size:     fi.Size(),
		MimeType: mime.TypeByExtension(filepath.Ext(p)),
	}, nil
}

// ReadRange reads up to n bytes at off. Reads past the end are short.
func (s *AssetStore) ReadRange(ctx context.Context, id string, off, n int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if off < 0 || n < 0 {
		return nil, fmt.Errorf("osfilesystem: invalid range %d+%d", off, n)
	}
	f, err := s.open(id)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := f.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}

// Open returns a reader over the whole asset.
func (s *AssetStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.open(id)
}

var _ ports.AssetStore = (*AssetStore)(nil)
