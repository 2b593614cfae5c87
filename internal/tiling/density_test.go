package tiling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/mask-tools/internal/mask"
)

// filled returns a 10x10 mask with the first n pixels set.
func filled(n int) *mask.Mask {
	m := mask.New(10, 10)
	for i := 0; i < n; i++ {
		m.Pix[i] = true
	}
	return m
}

func TestRetain_Boundary(t *testing.T) {
	assert.True(t, Retain(filled(20)), "exactly 20% foreground is retained")
	assert.False(t, Retain(filled(19)), "one pixel under 20% is discarded")
	assert.True(t, Retain(filled(60)))
}

func TestRetain_Uniform(t *testing.T) {
	assert.False(t, Retain(filled(0)))
	assert.False(t, Retain(filled(100)))
	assert.False(t, Retain(nil))
}

func TestCoverage(t *testing.T) {
	a := mask.New(2, 2)
	a.Set(0, 0, true)
	b := mask.New(2, 2)
	b.Set(1, 1, true)

	cov, err := Coverage([]*mask.Mask{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, cov.Count())
	assert.Equal(t, 1, a.Count(), "inputs are not modified")

	none, err := Coverage(nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = Coverage([]*mask.Mask{a, mask.New(3, 3)})
	assert.Error(t, err)
}

func TestDensity(t *testing.T) {
	assert.InDelta(t, 0.2, Density(filled(20)), 1e-9)
	assert.Equal(t, 0.0, Density(nil))
	assert.Equal(t, 0.0, Density(mask.New(0, 0)))
}

func TestDecide(t *testing.T) {
	// 20x20 source, instance in the top-left 10x10 quadrant, two rows deep.
	src := mask.New(20, 20)
	for row := 0; row < 2; row++ {
		for col := 0; col < 10; col++ {
			src.Set(row, col, true)
		}
	}
	tiles, err := Boxes(20, 20, 10, 0)
	require.NoError(t, err)

	d, crops, err := Decide(tiles[0], []*mask.Mask{src})
	require.NoError(t, err)
	assert.True(t, d.Retained)
	assert.InDelta(t, 0.2, d.Density, 1e-9)
	require.Len(t, crops, 1)
	assert.Equal(t, 10, crops[0].Width)

	d, _, err = Decide(tiles[1], []*mask.Mask{src})
	require.NoError(t, err)
	assert.False(t, d.Retained)

	d, crops, err = Decide(tiles[0], nil)
	require.NoError(t, err)
	assert.False(t, d.Retained)
	assert.Empty(t, crops)
}
