package emfit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComparef64(t *testing.T) {

	assert.True(t, Comparef64(1.0, 1.0005, 0.001))
	assert.False(t, Comparef64(1.0, 1.1, 0.001))
	assert.True(t, CompareSliceFloat([]float64{1, 2, 3}, []float64{1, 2, 3.0001}, 0.001))
	assert.False(t, CompareSliceFloat([]float64{1, 2}, []float64{1}, 0.001))
}

func TestJSONFileRoundTrip(t *testing.T) {

	x := []float64{1.1, 2.2, 3.3}
	var y []float64

	fn := filepath.Join(t.TempDir(), "floats.json")
	require.NoError(t, WriteJSONFile(fn, x))
	require.NoError(t, ReadJSONFile(fn, &y))
	assert.Equal(t, x, y)
}
