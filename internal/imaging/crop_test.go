package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// quadrantImage paints the four quadrants red, green, blue and white.
func quadrantImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.RGBA
			switch {
			case x < width/2 && y < height/2:
				c = color.RGBA{255, 0, 0, 255}
			case y < height/2:
				c = color.RGBA{0, 255, 0, 255}
			case x < width/2:
				c = color.RGBA{0, 0, 255, 255}
			default:
				c = color.RGBA{255, 255, 255, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestCropToBox(t *testing.T) {
	img := quadrantImage(100, 100)

	crop, err := CropToBox(img, image.Rect(50, 0, 100, 50))
	if err != nil {
		t.Fatalf("CropToBox failed: %v", err)
	}
	b := crop.Bounds()
	if b.Dx() != 50 || b.Dy() != 50 {
		t.Fatalf("dimensions: got %dx%d, want 50x50", b.Dx(), b.Dy())
	}
	r, g, _, _ := crop.At(b.Min.X+10, b.Min.Y+10).RGBA()
	if r>>8 != 0 || g>>8 != 255 {
		t.Errorf("top-right quadrant should be green, got r=%d g=%d", r>>8, g>>8)
	}
}

func TestCropToBox_ClipsPastEdge(t *testing.T) {
	img := quadrantImage(600, 600)

	crop, err := CropToBox(img, image.Rect(448, 448, 960, 960))
	if err != nil {
		t.Fatalf("CropToBox failed: %v", err)
	}
	if crop.Bounds().Dx() != 152 || crop.Bounds().Dy() != 152 {
		t.Errorf("dimensions: got %v, want 152x152", crop.Bounds())
	}
}

func TestCropToBox_OffsetOrigin(t *testing.T) {
	full := quadrantImage(20, 20)
	sub := full.SubImage(image.Rect(10, 10, 20, 20))

	// (0,0) of sub is the white quadrant of full.
	crop, err := CropToBox(sub, image.Rect(0, 0, 5, 5))
	if err != nil {
		t.Fatalf("CropToBox failed: %v", err)
	}
	r, g, b, _ := crop.At(crop.Bounds().Min.X, crop.Bounds().Min.Y).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Errorf("expected white, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestCropToBox_Outside(t *testing.T) {
	img := quadrantImage(10, 10)
	tests := []struct {
		name string
		r    image.Rectangle
	}{
		{"right of image", image.Rect(10, 0, 20, 10)},
		{"below image", image.Rect(0, 12, 10, 20)},
		{"empty box", image.Rect(3, 3, 3, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CropToBox(img, tt.r); err == nil {
				t.Error("expected error for region with no overlap")
			}
		})
	}
}

func TestEncodePNGBase64(t *testing.T) {
	img := quadrantImage(16, 8)

	result, err := EncodePNGBase64(img)
	if err != nil {
		t.Fatalf("EncodePNGBase64 failed: %v", err)
	}
	if result.Width != 16 || result.Height != 8 {
		t.Errorf("dimensions: got %dx%d, want 16x8", result.Width, result.Height)
	}
	if result.MimeType != "image/png" {
		t.Errorf("MimeType: got %s, want image/png", result.MimeType)
	}

	raw, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("failed to decode png: %v", err)
	}
	if decoded.Bounds().Dx() != 16 {
		t.Errorf("decoded width: got %d, want 16", decoded.Bounds().Dx())
	}
}
