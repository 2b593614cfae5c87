// Package dataset reads the braintissue segmentation data: raw source
// images with their per-class instance masks, and the tiled partitions the
// tiler writes from them.
//
// Both layouts keep one directory per image:
//
//	<dir>/<id>/images/<id>.<ext>
//	<dir>/<id>/images/<id>_fluo.<ext>    (optional second channel)
//	<dir>/<id>/<class>_masks/*.<ext>
package dataset

import (
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/anthonynsimon/bild/effect"
	"github.com/pkg/errors"

	"github.com/ironsheep/mask-tools/internal/config"
	"github.com/ironsheep/mask-tools/internal/imaging"
	"github.com/ironsheep/mask-tools/internal/mask"
)

// Subset names accepted by Open.
const (
	SubsetTrain           = "train"
	SubsetVal             = "val"
	SubsetTrainArtificial = "train_artificial"
	SubsetPartitions      = "partitions"
)

// FluoSuffix names the optional fluorescence channel next to an image:
// <id>_fluo.<ext>.
const FluoSuffix = "_fluo"

// ErrSubset reports an unknown subset name.
var ErrSubset = errors.New("unknown dataset subset")

// Dataset is a read-only view over one subset.
type Dataset interface {
	// ImageIDs returns the image ids of the subset, sorted.
	ImageIDs() []string
	LoadImage(id string) (*Image, error)
	// LoadMasks returns every instance of the image, grouped by class in
	// configuration order and sorted by file name within a class.
	LoadMasks(id string) ([]Instance, error)
	DisplayName() string
}

// Image holds the grayscale channels of one image. Channels[0] is the base
// channel; the fluorescence channel follows when present.
type Image struct {
	ID       string
	Channels []*image.Gray
}

// Base returns the first channel.
func (im *Image) Base() *image.Gray {
	return im.Channels[0]
}

// Instance is one instance mask with its class.
type Instance struct {
	ClassID int
	Class   string
	Mask    *mask.Mask
}

// Open returns the dataset variant for cfg.Subset rooted at cfg.Root.
func Open(cfg config.DatasetConfig) (Dataset, error) {
	if cfg.Root == "" {
		return nil, errors.New("dataset root is required")
	}
	switch cfg.Subset {
	case SubsetTrain, SubsetVal, SubsetTrainArtificial:
		return newSource(cfg)
	case SubsetPartitions:
		return newPartitions(cfg)
	}
	return nil, errors.Wrapf(ErrSubset, "subset %q", cfg.Subset)
}

// layout is the directory structure shared by both variants.
type layout struct {
	dir     string
	classes []config.ClassConfig
	ids     []string
}

func (l *layout) ImageIDs() []string {
	return append([]string(nil), l.ids...)
}

func (l *layout) imagesDir(id string) string {
	return filepath.Join(l.dir, id, "images")
}

func (l *layout) LoadMasks(id string) ([]Instance, error) {
	var out []Instance
	for _, cl := range l.classes {
		dir := filepath.Join(l.dir, id, cl.Name+"_masks")
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		paths, err := imaging.DiscoverMasks(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "image %s", id)
		}
		for _, p := range paths {
			m, err := imaging.LoadMask(p)
			if err != nil {
				return nil, errors.Wrapf(err, "image %s", id)
			}
			out = append(out, Instance{ClassID: cl.ID, Class: cl.Name, Mask: m})
		}
	}
	return out, nil
}

// listIDs returns the sorted names of the subdirectories of dir, minus
// exclude.
func listIDs(dir string, exclude []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list dataset directory")
	}
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || skip[e.Name()] || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

func loadGray(path string) (*image.Gray, error) {
	img, err := imaging.LoadImage(path)
	if err != nil {
		return nil, err
	}
	if g, ok := img.(*image.Gray); ok {
		return g, nil
	}
	return effect.Grayscale(img), nil
}
