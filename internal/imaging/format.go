package imaging

import (
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// Format is an output raster encoding.
type Format string

// Supported output formats. PNG is the default: lossless and readable by
// every dataset loader.
const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatTIFF Format = "tiff"
	FormatBMP  Format = "bmp"
	FormatWebP Format = "webp"
)

// ParseFormat accepts a format name or file extension, with or without a
// leading dot ("png", ".tif", "JPG").
func ParseFormat(name string) (Format, error) {
	n := strings.ToLower(strings.TrimPrefix(name, "."))
	switch n {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "gif":
		return FormatGIF, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	case "bmp":
		return FormatBMP, nil
	case "webp":
		return FormatWebP, nil
	}
	return "", fmt.Errorf("unsupported image format %q", name)
}

// Ext returns the file extension (without dot) written for f.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case FormatTIFF:
		return "tif"
	case "":
		return "png"
	}
	return string(f)
}

// Encode writes img to w in format f. WebP output is lossless; the other
// formats go through disintegration/imaging.
func Encode(w io.Writer, img image.Image, f Format) error {
	if f == FormatWebP {
		if err := webp.Encode(w, img, &webp.Options{Lossless: true}); err != nil {
			return fmt.Errorf("failed to encode webp: %w", err)
		}
		return nil
	}

	ff, err := imaging.FormatFromExtension(f.Ext())
	if err != nil {
		return fmt.Errorf("unsupported image format %q: %w", f, err)
	}
	if err := imaging.Encode(w, img, ff); err != nil {
		return fmt.Errorf("failed to encode %s: %w", f, err)
	}
	return nil
}
