package model

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// DefaultSeed provided for deterministic sampling in tests and demos.
const DefaultSeed = 33

// RandNormalVector returns a random draw from a Gaussian with the
// given mean and per-coordinate standard deviation.
func RandNormalVector(mean, std []float64, r *rand.Rand) ([]float64, error) {
	if len(mean) != len(std) {
		return nil, fmt.Errorf("length of mean [%d] and std [%d] don't match", len(mean), len(std))
	}
	vector := make([]float64, len(mean))
	for i := range mean {
		vector[i] = r.NormFloat64()*std[i] + mean[i]
	}
	return vector, nil
}

// SampleGaussianMixture draws counts[k] rows from each full-covariance
// Gaussian component and returns them stacked in component order.
func SampleGaussianMixture(means [][]float64, covs []*mat.SymDense, counts []int, src rand.Source) (*mat.Dense, error) {
	if len(means) != len(covs) || len(means) != len(counts) {
		return nil, fmt.Errorf("mismatched component slices: %d means, %d covariances, %d counts",
			len(means), len(covs), len(counts))
	}
	if len(means) == 0 {
		return nil, fmt.Errorf("no components to sample from")
	}
	d := len(means[0])
	total := 0
	for _, c := range counts {
		total += c
	}
	x := mat.NewDense(total, d, nil)
	row := 0
	for k := range means {
		norm, ok := distmv.NewNormal(means[k], covs[k], src)
		if !ok {
			return nil, fmt.Errorf("component %d covariance is not positive definite", k)
		}
		for i := 0; i < counts[k]; i++ {
			norm.Rand(x.RawRowView(row))
			row++
		}
	}
	return x, nil
}

// SampleLatent draws an n×l matrix of standard normal latent scores.
func SampleLatent(n, l int, src rand.Source) *mat.Dense {
	r := rand.New(src)
	z := mat.NewDense(n, l, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < l; j++ {
			z.Set(i, j, r.NormFloat64())
		}
	}
	return z
}
