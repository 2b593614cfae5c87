package ledger

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/mask-tools/internal/mask"
	"github.com/ironsheep/mask-tools/internal/tiling"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestOpen_Migrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path, nil)
	require.NoError(t, err)

	version, dirty, err := l.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
	require.NoError(t, l.Close())

	// Reopening an up-to-date ledger is a no-op.
	l, err = Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, l.Close())
}

func TestLedger_RunLifecycle(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	l.now = func() time.Time { return start }

	require.NoError(t, l.StartRun(ctx, Run{
		ID: "run-1", Source: "img.tif", Out: "partitions", Size: 512, Overlap: 0, Format: "png",
	}))

	runs, err := l.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, start, runs[0].StartedAt)
	assert.True(t, runs[0].FinishedAt.IsZero())

	kept := tiling.TileResult{
		Decision: tiling.Decision{
			Tile:     tiling.Tile{Index: 0, Box: tiling.Box{Right: 512, Bottom: 512}},
			Retained: true,
			Density:  0.5,
		},
		Dir:    "partitions/section-0",
		Images: 1,
		Masks:  3,
	}
	failed := tiling.TileResult{
		Decision: tiling.Decision{
			Tile:     tiling.Tile{Index: 1, Box: tiling.Box{Top: 512, Right: 512, Bottom: 1024}},
			Retained: true,
			Density:  0.25,
		},
		Err: &tiling.TileError{Index: 1, Err: errors.New("disk full")},
	}
	require.NoError(t, l.RecordTile(ctx, "run-1", failed))
	require.NoError(t, l.RecordTile(ctx, "run-1", kept))

	tiles, err := l.Tiles(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, tiles, 2)
	assert.Equal(t, 0, tiles[0].Index)
	assert.True(t, tiles[0].Retained)
	assert.Equal(t, 3, tiles[0].Masks)
	assert.Equal(t, "partitions/section-0", tiles[0].Dir)
	assert.Equal(t, tiling.Box{Top: 512, Right: 512, Bottom: 1024}, tiles[1].Box)
	assert.Contains(t, tiles[1].Err, "disk full")

	end := start.Add(time.Minute)
	l.now = func() time.Time { return end }
	require.NoError(t, l.FinishRun(ctx, &tiling.Report{
		RunID: "run-1", Considered: 4, Retained: 2, Discarded: 2, Failed: 1,
		ImagesWritten: 1, MasksWritten: 3, DensityMean: 0.375, DensityStdDev: 0.17,
	}))

	runs, err = l.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	r := runs[0]
	assert.Equal(t, end, r.FinishedAt)
	assert.Equal(t, 4, r.Considered)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 3, r.MasksWritten)
	assert.InDelta(t, 0.375, r.DensityMean, 1e-9)
}

func TestLedger_Errors(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	err := l.FinishRun(ctx, &tiling.Report{RunID: "missing"})
	assert.Error(t, err)

	err = l.RecordTile(ctx, "missing", tiling.TileResult{})
	assert.Error(t, err, "tiles must belong to a started run")

	require.NoError(t, l.StartRun(ctx, Run{ID: "dup", Source: "a", Out: "b", Size: 1, Format: "png"}))
	assert.Error(t, l.StartRun(ctx, Run{ID: "dup", Source: "a", Out: "b", Size: 1, Format: "png"}))
}

func TestLedger_RecordsWriterRun(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	m := mask.New(8, 8)
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			m.Set(y, x, true)
		}
	}
	src := tiling.Source{
		Name:      "sample",
		Image:     image.NewGray(image.Rect(0, 0, 8, 8)),
		Instances: []tiling.Instance{{Class: "tissue", Mask: m}},
	}
	opts := tiling.Options{Out: t.TempDir(), Size: 4, RunID: "writer-run"}

	require.NoError(t, l.StartRun(ctx, Run{ID: opts.RunID, Source: src.Name, Out: opts.Out, Size: 4, Format: "png"}))
	report, err := tiling.NewWriter(opts, nil).WithRecorder(l).Run(ctx, src)
	require.NoError(t, err)
	require.NoError(t, l.FinishRun(ctx, report))

	tiles, err := l.Tiles(ctx, "writer-run")
	require.NoError(t, err)
	require.Len(t, tiles, 4)
	assert.True(t, tiles[0].Retained)
	assert.False(t, tiles[1].Retained)

	runs, err := l.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Retained)
	assert.Equal(t, 1, runs[0].ImagesWritten)
}
