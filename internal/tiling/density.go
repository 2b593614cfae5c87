package tiling

import (
	"github.com/ironsheep/mask-tools/internal/mask"
)

// Coverage ORs all cropped masks of one tile together. It returns nil when
// no masks are given, which Retain treats as an all-false tile.
func Coverage(crops []*mask.Mask) (*mask.Mask, error) {
	if len(crops) == 0 {
		return nil, nil
	}
	cov := crops[0].Clone()
	for _, c := range crops[1:] {
		if err := cov.Or(c); err != nil {
			return nil, err
		}
	}
	return cov, nil
}

// Retain reports whether a tile with the given coverage is worth writing:
// coverage must mix foreground and background, and foreground must be at
// least a fifth of the tile (foreground*4 >= background).
func Retain(coverage *mask.Mask) bool {
	if coverage == nil {
		return false
	}
	fg := coverage.Count()
	bg := coverage.Len() - fg
	if fg == 0 || bg == 0 {
		return false
	}
	return fg*4 >= bg
}

// Density returns the foreground fraction of coverage, 0 for nil or empty.
func Density(coverage *mask.Mask) float64 {
	if coverage == nil || coverage.Len() == 0 {
		return 0
	}
	return float64(coverage.Count()) / float64(coverage.Len())
}

// Decision is the density filter verdict for one tile.
type Decision struct {
	Tile     Tile
	Retained bool
	Density  float64
}

// Decide crops every instance mask to the tile, builds the coverage and
// applies Retain. The crops are returned so callers can write them without
// cropping again.
func Decide(tile Tile, instances []*mask.Mask) (Decision, []*mask.Mask, error) {
	crops := make([]*mask.Mask, len(instances))
	for i, m := range instances {
		crops[i] = m.Crop(tile.Box.Rect())
	}
	cov, err := Coverage(crops)
	if err != nil {
		return Decision{Tile: tile}, nil, err
	}
	return Decision{
		Tile:     tile,
		Retained: Retain(cov),
		Density:  Density(cov),
	}, crops, nil
}
