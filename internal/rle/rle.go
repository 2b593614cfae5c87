// Package rle converts binary masks to and from the run-length text format
// used by submission files.
//
// The wire format is a space-separated list of decimal integers read as
// (start, length) pairs. Starts are 1-based indexes into the mask flattened
// in column-major order: the leftmost column top to bottom, then the next
// column, and so on. Encode always emits maximal runs in increasing start
// order; an empty mask encodes to the empty string.
package rle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ironsheep/mask-tools/internal/mask"
)

// ErrFormat is returned (wrapped in a *FormatError) for malformed RLE input.
var ErrFormat = errors.New("malformed rle")

// FormatError describes why an RLE string could not be decoded.
type FormatError struct {
	// Pair is the 0-based index of the offending pair, or -1 when the
	// problem is not tied to a single pair.
	Pair   int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Pair < 0 {
		return fmt.Sprintf("%s: %s", ErrFormat, e.Reason)
	}
	return fmt.Sprintf("%s: pair %d: %s", ErrFormat, e.Pair, e.Reason)
}

// Unwrap lets errors.Is match ErrFormat.
func (e *FormatError) Unwrap() error {
	return ErrFormat
}

// Run is one foreground run. Start is 1-based.
type Run struct {
	Start  int
	Length int
}

// Runs is an ordered list of runs.
type Runs []Run

// String renders the runs in wire format.
func (rs Runs) String() string {
	var b strings.Builder
	for i, r := range rs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(r.Start))
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(r.Length))
	}
	return b.String()
}

// Pixels returns the total number of foreground pixels covered by the runs.
func (rs Runs) Pixels() int {
	n := 0
	for _, r := range rs {
		n += r.Length
	}
	return n
}

// EncodeRuns returns the maximal foreground runs of m in column-major order.
func EncodeRuns(m *mask.Mask) Runs {
	var runs Runs
	// A run opens on a false->true transition and closes on true->false;
	// the virtual padding before and after the sequence is false.
	prev := false
	start := 0
	flat := 0
	for col := 0; col < m.Width; col++ {
		for row := 0; row < m.Height; row++ {
			cur := m.Pix[row*m.Width+col]
			if cur != prev {
				if cur {
					start = flat
				} else {
					runs = append(runs, Run{Start: start + 1, Length: flat - start})
				}
				prev = cur
			}
			flat++
		}
	}
	if prev {
		runs = append(runs, Run{Start: start + 1, Length: flat - start})
	}
	return runs
}

// Encode returns the RLE string for m.
func Encode(m *mask.Mask) string {
	return EncodeRuns(m).String()
}

// ParseRuns parses the wire format without checking it against a shape.
func ParseRuns(s string) (Runs, error) {
	fields := strings.Fields(s)
	if len(fields)%2 != 0 {
		return nil, &FormatError{Pair: -1, Reason: fmt.Sprintf("odd number of values (%d)", len(fields))}
	}
	runs := make(Runs, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		start, err := parseDecimal(fields[i])
		if err != nil {
			return nil, &FormatError{Pair: i / 2, Reason: fmt.Sprintf("start %q is not a decimal integer", fields[i])}
		}
		length, err := parseDecimal(fields[i+1])
		if err != nil {
			return nil, &FormatError{Pair: i / 2, Reason: fmt.Sprintf("length %q is not a decimal integer", fields[i+1])}
		}
		runs = append(runs, Run{Start: start, Length: length})
	}
	return runs, nil
}

// parseDecimal accepts only ASCII digits; strconv.Atoi would also take a sign.
func parseDecimal(tok string) (int, error) {
	for i := 0; i < len(tok); i++ {
		if tok[i] < '0' || tok[i] > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.Atoi(tok)
}

// Decode rebuilds a height×width mask from its RLE string. The empty string
// decodes to an all-false mask. Overlapping runs are not detected.
func Decode(s string, height, width int) (*mask.Mask, error) {
	if height < 0 || width < 0 {
		return nil, &FormatError{Pair: -1, Reason: fmt.Sprintf("invalid shape %dx%d", height, width)}
	}
	runs, err := ParseRuns(s)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %dx%d", height, width)
	}

	size := height * width
	flat := make([]bool, size)
	for i, r := range runs {
		start := r.Start - 1
		switch {
		case r.Length <= 0:
			return nil, &FormatError{Pair: i, Reason: fmt.Sprintf("non-positive length %d", r.Length)}
		case start < 0 || start >= size:
			return nil, &FormatError{Pair: i, Reason: fmt.Sprintf("start %d outside [1, %d]", r.Start, size)}
		case r.Length > size-start:
			return nil, &FormatError{Pair: i, Reason: fmt.Sprintf("run %d+%d ends past %d", r.Start, r.Length, size)}
		}
		for j := start; j < start+r.Length; j++ {
			flat[j] = true
		}
	}

	m := mask.New(height, width)
	for idx, v := range flat {
		if v {
			// column-major flat index back to (row, col)
			m.Pix[(idx%height)*width+idx/height] = true
		}
	}
	return m, nil
}
