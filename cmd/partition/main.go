// Command partition cuts a source image and its instance masks into square
// tiles and writes the tiles dense enough in mask coverage as a
// section-per-tile dataset.
//
// Usage:
//
//	partition [flags] <image> <masks-dir>
//	partition [flags] -dataset <root> -subset <train|val|train_artificial>
//
// In the second form every image of the dataset subset is tiled into
// <out>/<image id>/.
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
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ironsheep/mask-tools/internal/config"
	"github.com/ironsheep/mask-tools/internal/dataset"
	"github.com/ironsheep/mask-tools/internal/ledger"
	"github.com/ironsheep/mask-tools/internal/logging"
	"github.com/ironsheep/mask-tools/internal/tiling"
)

// flagKeys maps command-line flags to the configuration keys they override.
var flagKeys = map[string]string{
	"out":       "tiling.out",
	"size":      "tiling.size",
	"overlap":   "tiling.overlap",
	"format":    "tiling.format",
	"workers":   "tiling.workers",
	"fail-fast": "tiling.fail_fast",
	"class":     "tiling.default_class",
	"ledger":    "ledger.path",
	"dataset":   "dataset.root",
	"subset":    "dataset.subset",
	"log-level": "log.level",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "partition: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("partition", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML configuration file")
	fs.String("out", "", "output root directory")
	fs.Int("size", 0, "tile edge length in pixels")
	fs.Int("overlap", 0, "overlap between neighbouring tiles in pixels")
	fs.String("format", "", "output format: png, jpeg, gif, tiff, bmp or webp")
	fs.Int("workers", 0, "tiles written concurrently (0 = number of CPUs)")
	fs.Bool("fail-fast", false, "abort on the first tile that cannot be written")
	fs.String("class", "", "class of mask files found directly in the masks directory")
	fs.String("ledger", "", "SQLite file recording runs and tile decisions")
	fs.String("dataset", "", "dataset root; tiles every image of -subset instead of a single image")
	fs.String("subset", "", "dataset subset used with -dataset")
	fs.String("log-level", "", "debug, info, warn or error")
	jsonOut := fs.Bool("json", false, "print the run reports as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	overrides := make(map[string]any)
	fs.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			overrides[key] = f.Value.(flag.Getter).Get()
		}
	})

	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	var rec *ledger.Ledger
	if cfg.Ledger.Path != "" {
		rec, err = ledger.Open(cfg.Ledger.Path, logger)
		if err != nil {
			return err
		}
		defer rec.Close()
	}

	var jobs []job
	switch {
	case cfg.Dataset.Root != "" && fs.NArg() == 0:
		jobs, err = datasetJobs(cfg)
		if err != nil {
			return err
		}
	case fs.NArg() == 2:
		jobs = []job{{out: cfg.Tiling.Out, load: func() (tiling.Source, error) {
			return tiling.LoadSource(fs.Arg(0), fs.Arg(1), cfg.Tiling.DefaultClass)
		}}}
	default:
		fs.Usage()
		return fmt.Errorf("expected <image> <masks-dir> or -dataset")
	}

	failed := 0
	var reports []*tiling.Report
	for _, j := range jobs {
		report, err := tileOne(ctx, cfg, logger, rec, j)
		if err != nil {
			return err
		}
		failed += report.Failed
		reports = append(reports, report)
		if !*jsonOut {
			printReport(stdout, j.out, report)
		}
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d tile(s) could not be written", failed)
	}
	return nil
}

type job struct {
	out  string
	load func() (tiling.Source, error)
}

func datasetJobs(cfg config.Config) ([]job, error) {
	ds, err := dataset.Open(cfg.Dataset)
	if err != nil {
		return nil, err
	}
	var jobs []job
	for _, id := range ds.ImageIDs() {
		jobs = append(jobs, job{
			out: filepath.Join(cfg.Tiling.Out, id),
			load: func() (tiling.Source, error) {
				img, err := ds.LoadImage(id)
				if err != nil {
					return tiling.Source{}, err
				}
				masks, err := ds.LoadMasks(id)
				if err != nil {
					return tiling.Source{}, err
				}
				src := tiling.Source{Name: ds.DisplayName() + "/" + id, Image: img.Base()}
				// Channels[1], when present, is the fluorescence channel.
				for _, ch := range img.Channels[1:] {
					src.Channels = append(src.Channels, tiling.Channel{Suffix: dataset.FluoSuffix, Image: ch})
				}
				for _, m := range masks {
					src.Instances = append(src.Instances, tiling.Instance{Class: m.Class, Mask: m.Mask})
				}
				return src, nil
			},
		})
	}
	return jobs, nil
}

func tileOne(ctx context.Context, cfg config.Config, logger *zap.Logger, rec *ledger.Ledger, j job) (*tiling.Report, error) {
	src, err := j.load()
	if err != nil {
		return nil, err
	}
	opts := tiling.Options{
		Out:      j.out,
		Size:     cfg.Tiling.Size,
		Overlap:  cfg.Tiling.Overlap,
		Format:   cfg.ImageFormat(),
		Workers:  cfg.Tiling.Workers,
		FailFast: cfg.Tiling.FailFast,
	}
	if rec != nil {
		opts.RunID = uuid.NewString()
		if err := rec.StartRun(ctx, ledger.Run{
			ID: opts.RunID, Source: src.Name, Out: opts.Out,
			Size: opts.Size, Overlap: opts.Overlap, Format: string(opts.Format),
		}); err != nil {
			return nil, err
		}
	}
	w := tiling.NewWriter(opts, logger)
	if rec != nil {
		w.WithRecorder(rec)
	}

	report, err := w.Run(ctx, src)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		if err := rec.FinishRun(ctx, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func printReport(w io.Writer, out string, r *tiling.Report) {
	fmt.Fprintf(w, "%s -> %s\n", r.Source, out)
	fmt.Fprintf(w, "  tiles considered: %d\n", r.Considered)
	fmt.Fprintf(w, "  retained:         %d (mean density %.3f, stddev %.3f)\n", r.Retained, r.DensityMean, r.DensityStdDev)
	fmt.Fprintf(w, "  discarded:        %d\n", r.Discarded)
	fmt.Fprintf(w, "  images written:   %d\n", r.ImagesWritten)
	fmt.Fprintf(w, "  masks written:    %d\n", r.MasksWritten)
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  FAILED %v\n", f)
	}
}
