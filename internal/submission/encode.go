// Package submission turns per-image instance predictions into submission
// records and reads/writes submission files.
//
// Overlapping instances are resolved per pixel in favour of the highest
// scoring instance; each surviving instance is RLE-encoded into one record.
package submission

import (
	"fmt"
	"math"
	"sort"

	"github.com/ironsheep/mask-tools/internal/mask"
	"github.com/ironsheep/mask-tools/internal/rle"
)

// Header is the first line of every submission file.
const Header = "ImageId,EncodedPixels"

// Instance is one predicted object.
type Instance struct {
	Mask    *mask.Mask
	Score   float64
	ClassID int
}

// Rank returns, for each instance, its 1-based rank by score (1 = highest).
//
// Ties keep input order: of two instances with equal scores the one that
// appears first gets the better rank and wins contested pixels. NaN scores
// rank after every real score.
func Rank(instances []Instance) []int {
	order := make([]int, len(instances))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := instances[order[a]].Score, instances[order[b]].Score
		if math.IsNaN(sb) {
			return !math.IsNaN(sa)
		}
		return sa > sb
	})
	ranks := make([]int, len(instances))
	for pos, idx := range order {
		ranks[idx] = pos + 1
	}
	return ranks
}

// Resolve returns a label image holding, for every pixel, the rank of the
// best instance covering it, or 0 when no instance covers it.
func Resolve(instances []Instance) ([]int, int, int, error) {
	if len(instances) == 0 {
		return nil, 0, 0, nil
	}
	for i, inst := range instances {
		if inst.Mask == nil {
			return nil, 0, 0, fmt.Errorf("instance %d has no mask", i)
		}
	}
	h, w := instances[0].Mask.Height, instances[0].Mask.Width
	for i, inst := range instances {
		if inst.Mask.Height != h || inst.Mask.Width != w {
			return nil, 0, 0, fmt.Errorf("instance %d mask is %dx%d, want %dx%d",
				i, inst.Mask.Height, inst.Mask.Width, h, w)
		}
	}

	ranks := Rank(instances)
	labels := make([]int, h*w)
	for i, inst := range instances {
		r := ranks[i]
		for p, v := range inst.Mask.Pix {
			if v && (labels[p] == 0 || r < labels[p]) {
				labels[p] = r
			}
		}
	}
	return labels, h, w, nil
}

// EncodeImage builds the submission records for one image. Instances fully
// hidden behind better-ranked ones produce no record. An image without any
// surviving instance produces the single record "<imageID>,".
func EncodeImage(imageID string, instances []Instance) ([]string, error) {
	if len(instances) == 0 {
		return []string{imageID + ","}, nil
	}
	labels, h, w, err := Resolve(instances)
	if err != nil {
		return nil, fmt.Errorf("image %s: %w", imageID, err)
	}

	perRank := make([]*mask.Mask, len(instances)+1)
	for p, r := range labels {
		if r == 0 {
			continue
		}
		if perRank[r] == nil {
			perRank[r] = mask.New(h, w)
		}
		perRank[r].Pix[p] = true
	}

	var lines []string
	for r := 1; r <= len(instances); r++ {
		if perRank[r] == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s, %s", imageID, rle.Encode(perRank[r])))
	}
	if len(lines) == 0 {
		return []string{imageID + ","}, nil
	}
	return lines, nil
}
