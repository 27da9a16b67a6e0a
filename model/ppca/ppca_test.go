package ppca

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/statml/emfit/linalg"
	"github.com/statml/emfit/model"
)

// trueLoadings is an arbitrary full-rank 5×2 loading matrix used to
// generate synthetic data.
func trueLoadings() *mat.Dense {
	return mat.NewDense(5, 2, []float64{
		1.0, 0.3,
		-0.5, 1.2,
		0.7, -0.4,
		0.2, 0.9,
		-1.1, 0.5,
	})
}

// syntheticData returns n draws of z·Wᵀ plus isotropic noise.
func syntheticData(n int, noise float64, seed uint64) *mat.Dense {
	w := trueLoadings()
	z := model.SampleLatent(n, 2, rand.NewSource(seed))
	var x mat.Dense
	x.Mul(z, w.T())
	if noise > 0 {
		r := rand.New(rand.NewSource(seed + 1))
		d, c := x.Dims()
		for i := 0; i < d; i++ {
			for j := 0; j < c; j++ {
				x.Set(i, j, x.At(i, j)+r.NormFloat64()*noise)
			}
		}
	}
	return &x
}

// Noise-free data of exact rank L must be reconstructed with an error
// that is numerically zero, and the recovered loadings must span the
// same subspace as the generating ones.
func TestExactRecoveryNoiseFree(t *testing.T) {

	x := syntheticData(300, 0, model.DefaultSeed)
	res, err := Estimate(x, Options{NumComponents: 2, Tolerance: 1e-3, MaxIterations: 200})
	require.NoError(t, err)
	t.Logf("iterations %d, noise variance %e, reconstruction error %e",
		res.Iterations, res.NoiseVariance, res.ReconstructionError)

	normX := mat.Norm(x, 2)
	assert.Less(t, res.ReconstructionError/(normX*normX), 1e-8,
		"relative reconstruction error must be numerically zero")

	// Principal angles between recovered and true subspaces: all
	// singular values of Loadingsᵀ·Qtrue must be one.
	qTrue := linalg.Orthonormalize(trueLoadings())
	var cross mat.Dense
	cross.Mul(res.Loadings.T(), qTrue)
	var svd mat.SVD
	require.True(t, svd.Factorize(&cross, mat.SVDNone))
	for _, sv := range svd.Values(nil) {
		assert.InDelta(t, 1.0, sv, 1e-6)
	}
}

// The log-likelihood trace of a correct EM iteration is non-decreasing
// up to numerical tolerance. A weak second component close to the
// noise floor keeps EM from converging before the iteration cap.
func TestMonotonicLogLikelihood(t *testing.T) {

	w := trueLoadings()
	for i := 0; i < 5; i++ {
		w.Set(i, 1, 0.3*w.At(i, 1))
	}
	z := model.SampleLatent(400, 2, rand.NewSource(model.DefaultSeed))
	var x mat.Dense
	x.Mul(z, w.T())
	r := rand.New(rand.NewSource(model.DefaultSeed + 1))
	for i := 0; i < 400; i++ {
		for j := 0; j < 5; j++ {
			x.Set(i, j, x.At(i, j)+r.NormFloat64()*0.9)
		}
	}

	res, err := Estimate(&x, Options{NumComponents: 2, Tolerance: 1e-300, MaxIterations: 60})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(res.Trace), 50)

	for i := 1; i < len(res.Trace); i++ {
		slack := 1e-6 * math.Max(1, math.Abs(res.Trace[i-1]))
		assert.GreaterOrEqual(t, res.Trace[i], res.Trace[i-1]-slack,
			"log-likelihood decreased at iteration %d", i)
	}
}

// The fitted noise variance on noisy data should approach the
// generating noise level.
func TestNoiseVarianceEstimate(t *testing.T) {

	x := syntheticData(2000, 0.5, model.DefaultSeed)
	res, err := Estimate(x, Options{NumComponents: 2, Tolerance: 1e-10, MaxIterations: 500})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, res.NoiseVariance, 0.05)
}

// maxIterations = 1 must return converged == false with exactly one
// iteration, not an error.
func TestNonConvergenceReporting(t *testing.T) {

	x := syntheticData(200, 0.5, model.DefaultSeed)
	res, err := Estimate(x, Options{NumComponents: 2, Tolerance: 1e-300, MaxIterations: 1})
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.Len(t, res.Trace, 1)
}

// Reapplying the post-processing pass to an already-orthonormalized,
// axis-aligned loading matrix returns the same matrix up to sign.
func TestPostProcessIdempotent(t *testing.T) {

	x := syntheticData(300, 0.3, model.DefaultSeed)
	res, err := Estimate(x, Options{NumComponents: 2, Tolerance: 1e-10, MaxIterations: 300})
	require.NoError(t, err)

	again, scores, _, errSq, err := postProcess(x, res.Loadings)
	require.NoError(t, err)

	d, l := res.Loadings.Dims()
	for j := 0; j < l; j++ {
		// Fix the column sign by the largest-magnitude entry.
		sign := 1.0
		var bestI int
		var best float64
		for i := 0; i < d; i++ {
			if a := math.Abs(res.Loadings.At(i, j)); a > best {
				best = a
				bestI = i
			}
		}
		if res.Loadings.At(bestI, j)*again.At(bestI, j) < 0 {
			sign = -1.0
		}
		for i := 0; i < d; i++ {
			assert.InDelta(t, res.Loadings.At(i, j), sign*again.At(i, j), 1e-8)
		}
	}

	assert.InDelta(t, res.ReconstructionError, errSq, 1e-6)
	n, _ := scores.Dims()
	assert.Equal(t, 300, n)
}

func TestInvalidConfiguration(t *testing.T) {

	x := syntheticData(50, 0.1, model.DefaultSeed)

	_, err := Estimate(x, Options{NumComponents: 0, Tolerance: 1e-6, MaxIterations: 10})
	assert.ErrorIs(t, err, model.ErrInvalidConfig)

	_, err = Estimate(x, Options{NumComponents: 5, Tolerance: 1e-6, MaxIterations: 10})
	assert.ErrorIs(t, err, model.ErrInvalidConfig, "L must be strictly less than D")

	_, err = Estimate(x, Options{NumComponents: 2, Tolerance: 0, MaxIterations: 10})
	assert.ErrorIs(t, err, model.ErrInvalidConfig)

	_, err = Estimate(x, Options{NumComponents: 2, Tolerance: 1e-6, MaxIterations: 0})
	assert.ErrorIs(t, err, model.ErrInvalidConfig)

	bad := mat.DenseCopyOf(x)
	bad.Set(3, 1, math.NaN())
	_, err = Estimate(bad, Options{NumComponents: 2, Tolerance: 1e-6, MaxIterations: 10})
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
}
