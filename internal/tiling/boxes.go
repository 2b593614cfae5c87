package tiling

import (
	"errors"
	"fmt"
	"image"
)

// ErrConfig reports tiling parameters that cannot produce an advancing tiling.
var ErrConfig = errors.New("invalid tiling configuration")

// Box is a half-open pixel rectangle in source image coordinates. Right and
// Bottom may lie past the image extent; use Clip before reading pixels.
type Box struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Rect returns the box as an image rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// Clip returns the part of the box inside a width×height image.
func (b Box) Clip(width, height int) image.Rectangle {
	return b.Rect().Intersect(image.Rect(0, 0, width, height))
}

func (b Box) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", b.Left, b.Top, b.Right, b.Bottom)
}

// Tile is one enumerated tile.
type Tile struct {
	Index int `json:"index"`
	Box   Box `json:"box"`
}

// Validate checks image extent and tile parameters.
func Validate(width, height, size, overlap int) error {
	switch {
	case size <= 0:
		return fmt.Errorf("%w: size %d must be positive", ErrConfig, size)
	case overlap < 0:
		return fmt.Errorf("%w: overlap %d must not be negative", ErrConfig, overlap)
	case overlap >= size:
		return fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrConfig, overlap, size)
	case width <= 0 || height <= 0:
		return fmt.Errorf("%w: image extent %dx%d must be positive", ErrConfig, width, height)
	}
	return nil
}

// Boxes enumerates the tiles covering a width×height image with square tiles
// of edge size, consecutive origins stride = size - overlap apart.
//
// Tiles are numbered column by column: the x origin is the outer loop and
// the y origin the inner one, so tile 1 sits directly below tile 0.
func Boxes(width, height, size, overlap int) ([]Tile, error) {
	if err := Validate(width, height, size, overlap); err != nil {
		return nil, err
	}
	stride := size - overlap
	cols := (width + stride - 1) / stride
	rows := (height + stride - 1) / stride

	tiles := make([]Tile, 0, cols*rows)
	for x := 0; x < width; x += stride {
		for y := 0; y < height; y += stride {
			tiles = append(tiles, Tile{
				Index: len(tiles),
				Box:   Box{Left: x, Top: y, Right: x + size, Bottom: y + size},
			})
		}
	}
	return tiles, nil
}
