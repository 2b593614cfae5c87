// Package ledger records tiling runs in a SQLite database.
//
// Each run gets a row in runs when it starts and its totals when it
// finishes; every enumerated tile gets a row in tiles with its box, density
// verdict and the outcome of writing it. The schema is created and upgraded
// from migrations embedded in the binary.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ironsheep/mask-tools/internal/tiling"
)

// Ledger is a handle on the run database. It implements tiling.Recorder.
type Ledger struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

var _ tiling.Recorder = (*Ledger)(nil)

// Run is one row of the runs table.
type Run struct {
	ID         string
	Source     string
	Out        string
	Size       int
	Overlap    int
	Format     string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in progress

	Considered    int
	Retained      int
	Discarded     int
	Failed        int
	ImagesWritten int
	MasksWritten  int
	DensityMean   float64
	DensityStdDev float64
}

// Tile is one row of the tiles table.
type Tile struct {
	Index    int
	Box      tiling.Box
	Retained bool
	Density  float64
	Dir      string
	Masks    int
	Err      string
}

// Open opens or creates the ledger at path and migrates it to the latest
// schema. A nil logger discards migration output.
func Open(path string, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}
	// A single connection keeps writes serialized.
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db, log: logger, now: time.Now}
	if err := l.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// Close releases the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun inserts the run row. Only the identifying fields of r are used;
// StartedAt is set to the current time.
func (l *Ledger) StartRun(ctx context.Context, r Run) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, source, out_dir, tile_size, overlap, format, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Source, r.Out, r.Size, r.Overlap, r.Format, formatTime(l.now()))
	if err != nil {
		return fmt.Errorf("failed to start run %s: %w", r.ID, err)
	}
	return nil
}

// RecordTile stores the outcome of one tile. Recording the same tile twice
// replaces the earlier row.
func (l *Ledger) RecordTile(ctx context.Context, runID string, res tiling.TileResult) error {
	errText := ""
	if res.Err != nil {
		errText = res.Err.Error()
	}
	b := res.Tile.Box
	_, err := l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tiles
			(run_id, tile_index, box_left, box_top, box_right, box_bottom, retained, density, dir, masks, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, res.Tile.Index, b.Left, b.Top, b.Right, b.Bottom,
		res.Retained, res.Density, res.Dir, res.Masks, errText)
	if err != nil {
		return fmt.Errorf("failed to record tile %d of run %s: %w", res.Tile.Index, runID, err)
	}
	return nil
}

// FinishRun stores the totals of report and marks the run finished.
func (l *Ledger) FinishRun(ctx context.Context, report *tiling.Report) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?, considered = ?, retained = ?, discarded = ?, failed = ?,
			images_written = ?, masks_written = ?, density_mean = ?, density_stddev = ?
		WHERE run_id = ?`,
		formatTime(l.now()), report.Considered, report.Retained, report.Discarded, report.Failed,
		report.ImagesWritten, report.MasksWritten, report.DensityMean, report.DensityStdDev,
		report.RunID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", report.RunID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to finish run %s: run was never started", report.RunID)
	}
	return nil
}

// Runs lists all runs, most recently started first.
func (l *Ledger) Runs(ctx context.Context) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, source, out_dir, tile_size, overlap, format, started_at,
			COALESCE(finished_at, ''), considered, retained, discarded, failed,
			images_written, masks_written, density_mean, density_stddev
		FROM runs
		ORDER BY started_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Source, &r.Out, &r.Size, &r.Overlap, &r.Format, &started,
			&finished, &r.Considered, &r.Retained, &r.Discarded, &r.Failed,
			&r.ImagesWritten, &r.MasksWritten, &r.DensityMean, &r.DensityStdDev); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Tiles lists the recorded tiles of a run in index order.
func (l *Ledger) Tiles(ctx context.Context, runID string) ([]Tile, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT tile_index, box_left, box_top, box_right, box_bottom, retained, density, dir, masks, error
		FROM tiles
		WHERE run_id = ?
		ORDER BY tile_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tiles: %w", err)
	}
	defer rows.Close()

	var tiles []Tile
	for rows.Next() {
		var t Tile
		if err := rows.Scan(&t.Index, &t.Box.Left, &t.Box.Top, &t.Box.Right, &t.Box.Bottom,
			&t.Retained, &t.Density, &t.Dir, &t.Masks, &t.Err); err != nil {
			return nil, fmt.Errorf("failed to scan tile: %w", err)
		}
		tiles = append(tiles, t)
	}
	return tiles, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q in ledger: %w", s, err)
	}
	return t, nil
}
