package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// CropResult contains an image encoded as base64 PNG.
type CropResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// CropToBox extracts the part of r that lies inside img. r is given relative
// to the image origin, so (0,0) is always the top-left pixel even when
// img.Bounds().Min is not zero. Boxes reaching past the right or bottom edge
// are clipped; a box with no overlap at all is an error.
func CropToBox(img image.Image, r image.Rectangle) (image.Image, error) {
	bounds := img.Bounds()
	abs := r.Add(bounds.Min).Intersect(bounds)
	if abs.Empty() {
		return nil, fmt.Errorf("crop region %v outside image bounds %v", r, bounds.Sub(bounds.Min))
	}
	return imaging.Crop(img, abs), nil
}

// EncodePNGBase64 renders img as a base64 PNG result.
func EncodePNGBase64(img image.Image) (*CropResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return &CropResult{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}
