package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/mask-tools/internal/imaging"
	"github.com/ironsheep/mask-tools/internal/ledger"
)

func writeRect(t *testing.T, path string, w, h int, r image.Rectangle) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := imaging.ParseFormat(filepath.Ext(path))
	require.NoError(t, err)
	out, err := os.Create(path)
	require.NoError(t, err)
	defer out.Close()
	require.NoError(t, imaging.Encode(out, img, f))
}

func TestRun_SingleImage(t *testing.T) {
	dir := t.TempDir()
	writeRect(t, filepath.Join(dir, "img.png"), 8, 8, image.Rect(0, 0, 8, 8))
	writeRect(t, filepath.Join(dir, "masks", "a.png"), 8, 8, image.Rect(0, 0, 4, 2))
	out := filepath.Join(dir, "out")
	ledgerPath := filepath.Join(dir, "runs.db")

	var stdout bytes.Buffer
	err := run(context.Background(), []string{
		"-out", out, "-size", "4", "-format", "bmp", "-ledger", ledgerPath, "-log-level", "error", "-json",
		filepath.Join(dir, "img.png"), filepath.Join(dir, "masks"),
	}, &stdout)
	require.NoError(t, err)

	var reports []struct {
		Considered   int `json:"considered"`
		Retained     int `json:"retained"`
		MasksWritten int `json:"masks_written"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, 4, reports[0].Considered)
	assert.Equal(t, 1, reports[0].Retained)
	assert.FileExists(t, filepath.Join(out, "section-0", "images", "section-0.bmp"))
	assert.FileExists(t, filepath.Join(out, "section-0", "tissue_masks", "section-0-mask-0.bmp"))

	l, err := ledger.Open(ledgerPath, nil)
	require.NoError(t, err)
	defer l.Close()
	runs, err := l.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "bmp", runs[0].Format)
	assert.Equal(t, 1, runs[0].Retained)
	assert.False(t, runs[0].FinishedAt.IsZero())
}

func TestRun_Dataset(t *testing.T) {
	root := t.TempDir()
	writeRect(t, filepath.Join(root, "train", "a", "images", "a.tif"), 8, 8, image.Rect(0, 0, 8, 8))
	writeRect(t, filepath.Join(root, "train", "a", "images", "a_fluo.tif"), 8, 8, image.Rect(0, 0, 8, 4))
	writeRect(t, filepath.Join(root, "train", "a", "tissue_masks", "m.tif"), 8, 8, image.Rect(0, 0, 4, 2))
	writeRect(t, filepath.Join(root, "train", "b", "images", "b.tif"), 8, 8, image.Rect(0, 0, 8, 8))
	out := filepath.Join(root, "tiles")

	var stdout bytes.Buffer
	err := run(context.Background(), []string{
		"-dataset", root, "-subset", "train", "-out", out, "-size", "4", "-log-level", "error",
	}, &stdout)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "braintissue/train/a")
	assert.FileExists(t, filepath.Join(out, "a", "section-0", "tissue_masks", "section-0-mask-0.png"))
	assert.FileExists(t, filepath.Join(out, "a", "section-0", "images", "section-0_fluo.png"), "the fluorescence channel is tiled with the image")
	assert.NoDirExists(t, filepath.Join(out, "b", "section-0"), "an image without masks retains nothing")
}

func TestRun_Usage(t *testing.T) {
	var stdout bytes.Buffer
	assert.Error(t, run(context.Background(), []string{"-log-level", "error", "only-one-arg"}, &stdout))
	assert.Error(t, run(context.Background(), []string{"-size", "4", "-overlap", "4", "a", "b"}, &stdout))
}
