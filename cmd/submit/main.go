// Command submit turns per-image instance predictions into a submission
// file.
//
// The predictions directory holds one directory per image:
//
//	<pred>/<image id>/masks/*.{png,bmp,tif,tiff}
//	<pred>/<image id>/scores.json    JSON array, one score per mask in name order
//
// The submission is written to <results>/submit_<timestamp>/submit.csv.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ironsheep/mask-tools/internal/config"
	"github.com/ironsheep/mask-tools/internal/imaging"
	"github.com/ironsheep/mask-tools/internal/logging"
	"github.com/ironsheep/mask-tools/internal/submission"
)

// ScoresFile holds the confidence scores of an image's masks.
const ScoresFile = "scores.json"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, time.Now); err != nil {
		fmt.Fprintf(os.Stderr, "submit: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer, now func() time.Time) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML configuration file")
	pred := fs.String("pred", "", "predictions directory (one subdirectory per image)")
	results := fs.String("results", "", "results root; the submission goes into a new submit_<timestamp> directory")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pred == "" {
		fs.Usage()
		return errors.New("-pred is required")
	}

	overrides := make(map[string]any)
	if *results != "" {
		overrides["submission.results_dir"] = *results
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ids, err := imageIDs(*pred)
	if err != nil {
		return err
	}

	var lines []string
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		instances, err := loadPrediction(filepath.Join(*pred, id), logger)
		if err != nil {
			return errors.Wrapf(err, "image %s", id)
		}
		imageLines, err := submission.EncodeImage(id, instances)
		if err != nil {
			return errors.Wrapf(err, "image %s", id)
		}
		logger.Debug("image encoded", zap.String("image", id), zap.Int("instances", len(instances)), zap.Int("records", len(imageLines)))
		lines = append(lines, imageLines...)
	}

	path, err := submission.Save(cfg.Submission.ResultsDir, now(), lines)
	if err != nil {
		return err
	}
	logger.Info("submission written", zap.String("path", path), zap.Int("images", len(ids)), zap.Int("records", len(lines)))
	fmt.Fprintln(stdout, path)
	return nil
}

func imageIDs(pred string) ([]string, error) {
	entries, err := os.ReadDir(pred)
	if err != nil {
		return nil, errors.Wrap(err, "read predictions directory")
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// loadPrediction reads the masks of one image and pairs them with their
// scores. Without a scores file every mask scores 1, so input order decides
// overlaps.
func loadPrediction(dir string, logger *zap.Logger) ([]submission.Instance, error) {
	maskDir := filepath.Join(dir, "masks")
	var paths []string
	if _, err := os.Stat(maskDir); err == nil {
		paths, err = imaging.DiscoverMasks(maskDir)
		if err != nil {
			return nil, err
		}
	}

	scores := make([]float64, len(paths))
	for i := range scores {
		scores[i] = 1
	}
	raw, err := os.ReadFile(filepath.Join(dir, ScoresFile))
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &scores); err != nil {
			return nil, errors.Wrap(err, "parse scores")
		}
	case os.IsNotExist(err):
		if len(paths) > 0 {
			logger.Warn("no scores file, using equal scores", zap.String("dir", dir))
		}
	default:
		return nil, errors.Wrap(err, "read scores")
	}
	if len(scores) != len(paths) {
		return nil, errors.Errorf("%d masks but %d scores", len(paths), len(scores))
	}

	instances := make([]submission.Instance, len(paths))
	for i, p := range paths {
		m, err := imaging.LoadMask(p)
		if err != nil {
			return nil, err
		}
		instances[i] = submission.Instance{Mask: m, Score: scores[i]}
	}
	return instances, nil
}
