package dataset

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ironsheep/mask-tools/internal/config"
)

// Source is the raw layout under <root>/train or <root>/train_artificial.
// The val subset reads the fixed validation ids from the train directory;
// the other subsets exclude them.
type Source struct {
	layout
	subset string
}

var _ Dataset = (*Source)(nil)

func newSource(cfg config.DatasetConfig) (*Source, error) {
	dirName := cfg.Subset
	if cfg.Subset == SubsetVal {
		dirName = SubsetTrain
	}
	s := &Source{
		layout: layout{dir: filepath.Join(cfg.Root, dirName), classes: cfg.Classes},
		subset: cfg.Subset,
	}

	if cfg.Subset == SubsetVal {
		s.ids = append([]string(nil), cfg.ValImageIDs...)
		return s, nil
	}
	ids, err := listIDs(s.dir, cfg.ValImageIDs)
	if err != nil {
		return nil, err
	}
	s.ids = ids
	return s, nil
}

// DisplayName returns "braintissue/<subset>".
func (s *Source) DisplayName() string {
	return fmt.Sprintf("braintissue/%s", s.subset)
}

// LoadImage reads <id>.tif and, when present, <id>_fluo.tif.
func (s *Source) LoadImage(id string) (*Image, error) {
	dir := s.imagesDir(id)
	base, err := loadGray(filepath.Join(dir, id+".tif"))
	if err != nil {
		return nil, errors.Wrapf(err, "image %s", id)
	}
	im := &Image{ID: id, Channels: []*image.Gray{base}}

	fluoPath := filepath.Join(dir, id+FluoSuffix+".tif")
	if _, err := os.Stat(fluoPath); err == nil {
		fluo, err := loadGray(fluoPath)
		if err != nil {
			return nil, errors.Wrapf(err, "image %s fluorescence channel", id)
		}
		if fluo.Bounds().Size() != base.Bounds().Size() {
			return nil, errors.Errorf("image %s: fluorescence channel is %v, base is %v",
				id, fluo.Bounds().Size(), base.Bounds().Size())
		}
		im.Channels = append(im.Channels, fluo)
	}
	return im, nil
}
