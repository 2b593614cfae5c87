package dataset

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/ironsheep/mask-tools/internal/config"
	"github.com/ironsheep/mask-tools/internal/imaging"
)

// Partitions is the tiled layout under <root>/partitions, one section-<i>
// directory per retained tile, in whatever format the tiler wrote. A tile
// cut from a two-channel image carries its fluorescence crop as
// images/section-<i>_fluo.<ext>.
type Partitions struct {
	layout
}

var _ Dataset = (*Partitions)(nil)

func newPartitions(cfg config.DatasetConfig) (*Partitions, error) {
	p := &Partitions{layout: layout{dir: filepath.Join(cfg.Root, SubsetPartitions), classes: cfg.Classes}}
	ids, err := listIDs(p.dir, cfg.ValImageIDs)
	if err != nil {
		return nil, err
	}
	p.ids = ids
	return p, nil
}

// DisplayName returns "braintissue/partitions".
func (p *Partitions) DisplayName() string {
	return fmt.Sprintf("braintissue/%s", SubsetPartitions)
}

// LoadImage reads images/<id>.<ext> and, when present, the fluorescence
// crop images/<id>_fluo.<ext>.
func (p *Partitions) LoadImage(id string) (*Image, error) {
	files, err := imaging.DiscoverImages(p.imagesDir(id))
	if err != nil {
		return nil, errors.Wrapf(err, "image %s", id)
	}
	var basePath, fluoPath string
	for _, f := range files {
		name := filepath.Base(f)
		switch strings.TrimSuffix(name, filepath.Ext(name)) {
		case id:
			if basePath == "" {
				basePath = f
			}
		case id + FluoSuffix:
			if fluoPath == "" {
				fluoPath = f
			}
		}
	}
	if basePath == "" {
		return nil, errors.Errorf("image %s: no image file in %s", id, p.imagesDir(id))
	}

	base, err := loadGray(basePath)
	if err != nil {
		return nil, errors.Wrapf(err, "image %s", id)
	}
	im := &Image{ID: id, Channels: []*image.Gray{base}}
	if fluoPath == "" {
		return im, nil
	}
	fluo, err := loadGray(fluoPath)
	if err != nil {
		return nil, errors.Wrapf(err, "image %s fluorescence channel", id)
	}
	if fluo.Bounds().Size() != base.Bounds().Size() {
		return nil, errors.Errorf("image %s: fluorescence channel is %v, base is %v",
			id, fluo.Bounds().Size(), base.Bounds().Size())
	}
	im.Channels = append(im.Channels, fluo)
	return im, nil
}
