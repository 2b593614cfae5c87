// Package mask provides a dense binary instance mask and the pixel operations
// shared by the RLE codec, the submission encoder and the tiler.
//
// A Mask is an H×W grid of booleans. Pixels are addressed as (row, col) with
// (0,0) at the top-left corner; storage is row-major. Column-major ordering
// only matters to the RLE wire format and is handled by package rle.
package mask

import (
	"fmt"
	"image"
)

// Mask is a binary instance mask of fixed shape.
type Mask struct {
	Height int
	Width  int
	// Pix holds Height*Width values in row-major order.
	Pix []bool
}

// New returns an all-false mask of the given shape.
// Negative dimensions are treated as zero.
func New(height, width int) *Mask {
	if height < 0 {
		height = 0
	}
	if width < 0 {
		width = 0
	}
	return &Mask{
		Height: height,
		Width:  width,
		Pix:    make([]bool, height*width),
	}
}

// FromRows builds a mask from a slice of equal-length rows.
func FromRows(rows [][]bool) (*Mask, error) {
	if len(rows) == 0 {
		return New(0, 0), nil
	}
	m := New(len(rows), len(rows[0]))
	for r, row := range rows {
		if len(row) != m.Width {
			return nil, fmt.Errorf("row %d has %d columns, want %d", r, len(row), m.Width)
		}
		copy(m.Pix[r*m.Width:(r+1)*m.Width], row)
	}
	return m, nil
}

// Len returns the number of pixels in the mask.
func (m *Mask) Len() int {
	return m.Height * m.Width
}

// At reports whether the pixel at (row, col) is set. Out-of-range
// coordinates report false.
func (m *Mask) At(row, col int) bool {
	if row < 0 || row >= m.Height || col < 0 || col >= m.Width {
		return false
	}
	return m.Pix[row*m.Width+col]
}

// Set assigns the pixel at (row, col). Out-of-range coordinates are ignored.
func (m *Mask) Set(row, col int, v bool) {
	if row < 0 || row >= m.Height || col < 0 || col >= m.Width {
		return
	}
	m.Pix[row*m.Width+col] = v
}

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// Empty reports whether no pixel is set.
func (m *Mask) Empty() bool {
	for _, v := range m.Pix {
		if v {
			return false
		}
	}
	return true
}

// SameShape reports whether o has the same height and width as m.
func (m *Mask) SameShape(o *Mask) bool {
	return m.Height == o.Height && m.Width == o.Width
}

// Equal reports whether both masks have the same shape and pixels.
func (m *Mask) Equal(o *Mask) bool {
	if !m.SameShape(o) {
		return false
	}
	for i, v := range m.Pix {
		if o.Pix[i] != v {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of m.
func (m *Mask) Clone() *Mask {
	c := New(m.Height, m.Width)
	copy(c.Pix, m.Pix)
	return c
}

// Or sets every pixel of m that is set in o. Both masks must share a shape.
func (m *Mask) Or(o *Mask) error {
	if !m.SameShape(o) {
		return fmt.Errorf("mask shape %dx%d does not match %dx%d", o.Height, o.Width, m.Height, m.Width)
	}
	for i, v := range o.Pix {
		if v {
			m.Pix[i] = true
		}
	}
	return nil
}

// Bounds returns the mask extent as an image rectangle (x = column, y = row).
func (m *Mask) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// Crop returns the sub-mask covered by r, clipped to the mask extent.
// A rectangle that misses the mask entirely yields an empty 0×0 mask.
func (m *Mask) Crop(r image.Rectangle) *Mask {
	r = r.Intersect(m.Bounds())
	out := New(r.Dy(), r.Dx())
	for row := 0; row < out.Height; row++ {
		src := (r.Min.Y+row)*m.Width + r.Min.X
		copy(out.Pix[row*out.Width:(row+1)*out.Width], m.Pix[src:src+out.Width])
	}
	return out
}

// ToImage renders the mask as an 8-bit grayscale image with foreground
// pixels at 255 and background at 0.
func (m *Mask) ToImage() *image.Gray {
	img := image.NewGray(m.Bounds())
	for i, v := range m.Pix {
		if v {
			img.Pix[(i/m.Width)*img.Stride+i%m.Width] = 0xFF
		}
	}
	return img
}

// FromImage binarizes a raster image into a mask. Any pixel with a nonzero
// colour channel is foreground, so 0/1 and 0/255 masks read the same.
// Fully transparent pixels are background.
func FromImage(img image.Image) *Mask {
	b := img.Bounds()
	m := New(b.Dy(), b.Dx())
	if gray, ok := img.(*image.Gray); ok {
		for row := 0; row < m.Height; row++ {
			off := gray.PixOffset(b.Min.X, b.Min.Y+row)
			for col := 0; col < m.Width; col++ {
				m.Pix[row*m.Width+col] = gray.Pix[off+col] != 0
			}
		}
		return m
	}
	for row := 0; row < m.Height; row++ {
		for col := 0; col < m.Width; col++ {
			r, g, bl, _ := img.At(b.Min.X+col, b.Min.Y+row).RGBA()
			m.Pix[row*m.Width+col] = r|g|bl != 0
		}
	}
	return m
}
