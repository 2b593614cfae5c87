package submission

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// FileName is the name of the submission file inside a submit directory.
const FileName = "submit.csv"

// Writer streams a submission file: the header followed by one record per
// line. The header is written lazily before the first image.
type Writer struct {
	w       *bufio.Writer
	started bool
	images  int
	records int
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteHeader writes the header line if it has not been written yet.
func (sw *Writer) WriteHeader() error {
	if sw.started {
		return nil
	}
	sw.started = true
	_, err := sw.w.WriteString(Header)
	return err
}

// WriteImage encodes instances for one image and appends its records.
func (sw *Writer) WriteImage(imageID string, instances []Instance) error {
	lines, err := EncodeImage(imageID, instances)
	if err != nil {
		return err
	}
	return sw.WriteLines(lines)
}

// WriteLines appends already encoded records.
func (sw *Writer) WriteLines(lines []string) error {
	if err := sw.WriteHeader(); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := sw.w.WriteString("\n" + line); err != nil {
			return err
		}
	}
	sw.images++
	sw.records += len(lines)
	return nil
}

// Flush writes buffered data to the underlying writer. A submission with
// no images still gets its header.
func (sw *Writer) Flush() error {
	if err := sw.WriteHeader(); err != nil {
		return err
	}
	return sw.w.Flush()
}

// Images returns the number of images written so far.
func (sw *Writer) Images() int { return sw.images }

// Records returns the number of records written so far.
func (sw *Writer) Records() int { return sw.records }

// SubmitDir returns the timestamped directory name used by Save.
func SubmitDir(now time.Time) string {
	return "submit_" + now.Format("20060102T150405")
}

// Save writes lines as a submission file under
// <resultsDir>/submit_<timestamp>/submit.csv and returns the file path.
func Save(resultsDir string, now time.Time, lines []string) (string, error) {
	dir := filepath.Join(resultsDir, SubmitDir(now))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create submit directory")
	}
	path := filepath.Join(dir, FileName)
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "create submission file")
	}
	sw := NewWriter(f)
	if err := sw.WriteLines(lines); err != nil {
		f.Close()
		return "", errors.Wrap(err, "write submission")
	}
	if err := sw.Flush(); err != nil {
		f.Close()
		return "", errors.Wrap(err, "flush submission")
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "close submission file")
	}
	return path, nil
}

// Record is one parsed submission line.
type Record struct {
	ImageID string `json:"image_id"`
	// RLE is empty for images without surviving instances.
	RLE string `json:"rle"`
}

// Read parses a submission file. The header line is required.
func Read(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("empty submission")
	}
	if strings.TrimSpace(sc.Text()) != Header {
		return nil, fmt.Errorf("unexpected header %q", sc.Text())
	}

	var records []Record
	line := 1
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if text == "" {
			continue
		}
		id, enc, ok := strings.Cut(text, ",")
		if !ok {
			return nil, fmt.Errorf("line %d: missing separator", line)
		}
		records = append(records, Record{
			ImageID: id,
			RLE:     strings.TrimSpace(enc),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
