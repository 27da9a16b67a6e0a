package floatx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply(t *testing.T) {

	in := []float64{1, 2, 3}
	out := Apply(Sq, in, nil)
	assert.Equal(t, []float64{1, 4, 9}, out)

	dst := make([]float64, 3)
	Apply(ScaleFunc(2), in, dst)
	assert.Equal(t, []float64{2, 8, 18}, dst)
}

func TestFlatten2D(t *testing.T) {

	s := MakeFloat2D(2, 3)
	s[0][2] = 5
	s[1][0] = 7
	assert.Equal(t, []float64{0, 0, 5, 7, 0, 0}, Flatten2D(s))
	assert.Equal(t, []float64{0, 7}, SubSlice2D(s, 0))
}

func TestPool(t *testing.T) {

	pool := NewPool(4)
	b := pool.Get()
	assert.Len(t, b, 4)
	pool.Put(b)
	assert.Len(t, pool.Get(), 4)
}
