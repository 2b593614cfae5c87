package tiling

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/mask-tools/internal/imaging"
	"github.com/ironsheep/mask-tools/internal/mask"
)

// ErrIO marks filesystem failures while writing a tile.
var ErrIO = errors.New("tile write failed")

// TileError is the failure of a single tile. It matches both ErrIO and the
// underlying filesystem error.
type TileError struct {
	Index int
	Err   error
}

func (e *TileError) Error() string {
	return fmt.Sprintf("tile %d: %v", e.Index, e.Err)
}

func (e *TileError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

// Instance is one source mask and the class it belongs to.
type Instance struct {
	Class string
	Mask  *mask.Mask
}

// Channel is an extra raster aligned with the source image, such as a
// fluorescence channel. Its crop is written next to the image crop as
// images/section-<i><Suffix>.<ext>.
type Channel struct {
	Suffix string
	Image  image.Image
}

// Source is the input of one tiling run. Every instance mask and channel
// must have the same extent as Image.
type Source struct {
	Name      string
	Image     image.Image
	Channels  []Channel
	Instances []Instance
}

// Options configure a Writer.
type Options struct {
	Out     string
	Size    int
	Overlap int
	Format  imaging.Format
	// Workers bounds the number of tiles processed concurrently; 0 means
	// runtime.NumCPU().
	Workers int
	// FailFast aborts the run on the first tile write failure instead of
	// recording it and moving on.
	FailFast bool
	// RunID identifies the run in logs, the report and the Recorder. A
	// random UUID is used when empty.
	RunID string
}

// Recorder receives every tile result once a run has finished.
type Recorder interface {
	RecordTile(ctx context.Context, runID string, result TileResult) error
}

// TileResult is the outcome of one tile.
type TileResult struct {
	Decision
	// Dir is the section directory, empty for discarded tiles.
	Dir    string
	Images int
	Masks  int
	Err    error
}

// Writer materializes a tiled dataset.
type Writer struct {
	opts     Options
	log      *zap.Logger
	recorder Recorder
}

// NewWriter returns a Writer. A nil logger discards log output.
func NewWriter(opts Options, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Format == "" {
		opts.Format = imaging.FormatPNG
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Writer{opts: opts, log: logger}
}

// WithRecorder attaches r; tile results are passed to it after the run.
func (w *Writer) WithRecorder(r Recorder) *Writer {
	w.recorder = r
	return w
}

// Layout returns the output layout the writer uses.
func (w *Writer) Layout() Layout {
	return Layout{Root: w.opts.Out, Ext: w.opts.Format.Ext()}
}

// Run enumerates the tiles of src, filters them by density and writes the
// retained ones. Configuration errors and a canceled context abort the run;
// a failed tile only aborts the run when FailFast is set, otherwise it is
// reported in Report.Failures.
func (w *Writer) Run(ctx context.Context, src Source) (*Report, error) {
	if src.Image == nil {
		return nil, fmt.Errorf("%w: source image is required", ErrConfig)
	}
	bounds := src.Image.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	for i, inst := range src.Instances {
		if inst.Mask == nil || inst.Mask.Width != width || inst.Mask.Height != height {
			return nil, fmt.Errorf("%w: mask %d does not match image extent %dx%d", ErrConfig, i, width, height)
		}
	}
	seen := make(map[string]bool, len(src.Channels))
	for i, ch := range src.Channels {
		if ch.Suffix == "" || seen[ch.Suffix] {
			return nil, fmt.Errorf("%w: channel %d needs a unique non-empty suffix", ErrConfig, i)
		}
		seen[ch.Suffix] = true
		if ch.Image == nil || ch.Image.Bounds().Size() != bounds.Size() {
			return nil, fmt.Errorf("%w: channel %q does not match image extent %dx%d", ErrConfig, ch.Suffix, width, height)
		}
	}

	tiles, err := Boxes(width, height, w.opts.Size, w.opts.Overlap)
	if err != nil {
		return nil, err
	}
	if err := EnsureDir(w.opts.Out); err != nil {
		return nil, fmt.Errorf("%w: create output root: %v", ErrIO, err)
	}

	runID := w.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	w.log.Info("tiling run started",
		zap.String("run_id", runID),
		zap.String("source", src.Name),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("tiles", len(tiles)),
		zap.Int("size", w.opts.Size),
		zap.Int("overlap", w.opts.Overlap))

	masks := make([]*mask.Mask, len(src.Instances))
	for i, inst := range src.Instances {
		masks[i] = inst.Mask
	}

	results := make([]TileResult, len(tiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Workers)
	for _, tile := range tiles {
		tile := tile
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := w.processTile(src, tile, masks)
			results[tile.Index] = res
			if res.Err != nil {
				w.log.Warn("tile write failed", zap.Int("tile", tile.Index), zap.Error(res.Err))
				if w.opts.FailFast {
					return res.Err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := newReport(runID, src.Name, results)
	if w.recorder != nil {
		for _, res := range results {
			if err := w.recorder.RecordTile(ctx, runID, res); err != nil {
				return report, fmt.Errorf("record tile %d: %w", res.Tile.Index, err)
			}
		}
	}

	w.log.Info("tiling run finished",
		zap.String("run_id", runID),
		zap.Int("considered", report.Considered),
		zap.Int("retained", report.Retained),
		zap.Int("discarded", report.Discarded),
		zap.Int("failed", report.Failed),
		zap.Int("images_written", report.ImagesWritten),
		zap.Int("masks_written", report.MasksWritten))
	return report, nil
}

func (w *Writer) processTile(src Source, tile Tile, masks []*mask.Mask) TileResult {
	decision, crops, err := Decide(tile, masks)
	if err != nil {
		return TileResult{Decision: decision, Err: &TileError{Index: tile.Index, Err: err}}
	}
	res := TileResult{Decision: decision}
	if !decision.Retained {
		w.log.Debug("tile discarded", zap.Int("tile", tile.Index), zap.Float64("density", decision.Density))
		return res
	}

	byClass := make(map[string][]*mask.Mask)
	for i, c := range crops {
		if c.Empty() {
			continue
		}
		class := src.Instances[i].Class
		byClass[class] = append(byClass[class], c)
	}

	dir, nImages, nMasks, err := w.writeTile(src, tile, byClass)
	if err != nil {
		res.Err = &TileError{Index: tile.Index, Err: err}
		return res
	}
	res.Dir = dir
	res.Images = nImages
	res.Masks = nMasks
	return res
}

// writeTile stages every file of the tile in a hidden sibling directory and
// renames it into place, so a tile directory is either complete or absent.
func (w *Writer) writeTile(src Source, tile Tile, byClass map[string][]*mask.Mask) (string, int, int, error) {
	layout := w.Layout()
	final := layout.SectionDir(tile.Index)
	staging := filepath.Join(layout.Root, fmt.Sprintf(".%s.%s.tmp", SectionName(tile.Index), uuid.NewString()))
	if err := EnsureDir(staging); err != nil {
		return "", 0, 0, err
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()

	if err := w.writeCrop(filepath.Join(staging, layout.ImagePath(tile.Index)), src.Image, tile); err != nil {
		return "", 0, 0, err
	}
	images := 1
	for _, ch := range src.Channels {
		if err := w.writeCrop(filepath.Join(staging, layout.ChannelPath(tile.Index, ch.Suffix)), ch.Image, tile); err != nil {
			return "", 0, 0, err
		}
		images++
	}

	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	n := 0
	for _, class := range classes {
		for j, m := range byClass[class] {
			path := filepath.Join(staging, layout.MaskPath(tile.Index, class, j))
			if err := w.writeImage(path, m.ToImage()); err != nil {
				return "", 0, 0, err
			}
			n++
		}
	}

	if err := os.RemoveAll(final); err != nil {
		return "", 0, 0, err
	}
	if err := os.Rename(staging, final); err != nil {
		return "", 0, 0, err
	}
	committed = true
	return final, images, n, nil
}

func (w *Writer) writeCrop(path string, img image.Image, tile Tile) error {
	crop, err := imaging.CropToBox(img, tile.Box.Rect())
	if err != nil {
		return err
	}
	return w.writeImage(path, crop)
}

func (w *Writer) writeImage(path string, img image.Image) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := imaging.Encode(f, img, w.opts.Format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
