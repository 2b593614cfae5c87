package tiling

import (
	"gonum.org/v1/gonum/stat"
)

// Report summarizes a tiling run.
type Report struct {
	RunID  string `json:"run_id"`
	Source string `json:"source"`

	Considered int `json:"considered"`
	Retained   int `json:"retained"`
	Discarded  int `json:"discarded"`
	// Failed counts retained tiles whose files could not be written.
	Failed int `json:"failed"`

	ImagesWritten int `json:"images_written"`
	MasksWritten  int `json:"masks_written"`

	// DensityMean and DensityStdDev describe the foreground fraction of the
	// retained tiles; both are 0 when nothing was retained.
	DensityMean   float64 `json:"density_mean"`
	DensityStdDev float64 `json:"density_stddev"`

	Tiles    []TileResult `json:"-"`
	Failures []*TileError `json:"-"`
}

func newReport(runID, source string, results []TileResult) *Report {
	r := &Report{
		RunID:      runID,
		Source:     source,
		Considered: len(results),
		Tiles:      results,
	}
	var densities []float64
	for _, res := range results {
		if !res.Retained {
			r.Discarded++
			continue
		}
		r.Retained++
		densities = append(densities, res.Density)
		if res.Err != nil {
			r.Failed++
			if te, ok := res.Err.(*TileError); ok {
				r.Failures = append(r.Failures, te)
			} else {
				r.Failures = append(r.Failures, &TileError{Index: res.Tile.Index, Err: res.Err})
			}
			continue
		}
		r.ImagesWritten += res.Images
		r.MasksWritten += res.Masks
	}
	switch len(densities) {
	case 0:
	case 1:
		r.DensityMean = densities[0]
	default:
		r.DensityMean, r.DensityStdDev = stat.MeanStdDev(densities, nil)
	}
	return r
}
