package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "github.com/chai2010/webp" // Register WebP format decoder
	_ "golang.org/x/image/bmp"   // Register BMP format decoder
	_ "golang.org/x/image/tiff"  // Register TIFF format decoder

	"github.com/ironsheep/mask-tools/internal/mask"
)

// MaskExtensions is the default allow-list of raster extensions scanned for
// mask files.
var MaskExtensions = []string{".png", ".bmp", ".tif", ".tiff"}

// ImageExtensions lists every extension with a registered decoder.
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".tif", ".tiff", ".bmp", ".webp"}

// ImageCache provides thread-safe caching of loaded images to avoid redundant disk reads.
//
// The cache stores decoded image.Image objects keyed by their file path. Once an image
// is loaded, subsequent Load() calls for the same path return the cached copy without
// disk I/O. Source images and their masks are read once per run and then cropped
// many times, so the tiler and the MCP server both go through a cache.
//
// ImageCache is safe for concurrent use by multiple goroutines.
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewImageCache creates and initializes a new empty image cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]image.Image),
	}
}

// Load retrieves an image from the cache or loads it from disk if not cached.
//
// Supported formats are PNG, JPEG, GIF, TIFF, BMP and WebP. The image is cached
// using the exact path string provided.
func (c *ImageCache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Clear removes all images from the cache, freeing the associated memory.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache by its path.
// If the path is not in the cache, this method does nothing.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}

// LoadImage decodes the image at path without caching it.
func LoadImage(path string) (image.Image, error) {
	return decodeFile(path)
}

// LoadMask reads a mask file and binarizes it. Mask images are not cached:
// each is read once and kept only in its binary form.
func LoadMask(path string) (*mask.Mask, error) {
	img, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	return mask.FromImage(img), nil
}

// DimensionsResult contains the width and height of an image.
type DimensionsResult struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`
}

// GetDimensions returns the dimensions of an image, loading it into the cache
// if not already present.
func GetDimensions(cache *ImageCache, path string) (*DimensionsResult, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	return &DimensionsResult{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// DiscoverMasks lists the mask files directly inside dir (MaskExtensions),
// sorted by name.
func DiscoverMasks(dir string) ([]string, error) {
	return DiscoverFiles(dir, MaskExtensions)
}

// DiscoverImages lists the decodable image files directly inside dir
// (ImageExtensions), sorted by name.
func DiscoverImages(dir string) ([]string, error) {
	return DiscoverFiles(dir, ImageExtensions)
}

// DiscoverFiles lists the regular files directly inside dir whose extension
// (case-insensitive) is in allow, sorted by name.
func DiscoverFiles(dir string, allow []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, a := range allow {
			if ext == strings.ToLower(a) {
				paths = append(paths, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}
