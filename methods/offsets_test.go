package methods

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOffsets(t *testing.T) {
	offsets, err := ParseOffsets("2;10")
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 10}, offsets)

	offsets, err = ParseOffsets(" 1.5 ; 30 ;")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 30}, offsets)

	_, err = ParseOffsets("")
	assert.Error(t, err)

	_, err = ParseOffsets("  ;  ")
	assert.Error(t, err)

	_, err = ParseOffsets("2;abc")
	assert.Error(t, err)
}

func TestVshedName(t *testing.T) {
	assert.Equal(t, "vshed_12_10m", VshedName(12, 10))
	assert.Equal(t, "vshed_3_2m", VshedName(3, 2.5))
	assert.Equal(t, "vshed_2m", VshedMergeName(2))
	assert.Equal(t, "vshed_10m", VshedMergeName(10))
}

func TestCurvatureCoefficient(t *testing.T) {
	assert.Equal(t, 0.85714, CurvatureCoefficient(true))
	assert.Equal(t, 1.0, CurvatureCoefficient(false))
}
