package main

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/statml/emfit"
	"github.com/statml/emfit/linalg"
	"github.com/statml/emfit/model/gmm"
)

func gmmCommand() *cobra.Command {
	var clusters int
	cmd := &cobra.Command{
		Use:   "gmm",
		Short: "Fit a Gaussian mixture model",
		Long: `Fits a full-covariance Gaussian mixture to the observation matrix.

Initial components are derived from the data: evenly spaced rows as
means, the global covariance for every cluster and uniform weights.
For a different starting point use the library API directly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			applyGMMConfig(cmd, cfg.GMM, &clusters)

			x, err := readMatrix(dataFile)
			if err != nil {
				return err
			}

			res, err := gmm.Estimate(x, seedComponents(x, clusters), gmm.Options{
				NumClusters:   clusters,
				Tolerance:     tol,
				MaxIterations: maxIter,
				Verbose:       verbose,
			})
			if err != nil {
				return err
			}
			if !res.Converged {
				glog.Warningf("did not converge after %d iterations", res.Iterations)
			}
			fmt.Printf("converged=%v iterations=%d log-likelihood=%f\n",
				res.Converged, res.Iterations, res.LogLikelihood)
			for k, m := range res.Means {
				fmt.Printf("cluster %d: weight=%.4f mean=%v\n", k, res.Weights[k], m)
			}
			if outFile != "" {
				return writeGMMResult(outFile, res)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&clusters, "clusters", "k", 2, "number of mixture clusters")
	return cmd
}

func applyGMMConfig(cmd *cobra.Command, cfg emfit.GMMConfig, clusters *int) {
	if cfg.Clusters > 0 && !cmd.Flags().Changed("clusters") {
		*clusters = cfg.Clusters
	}
	if cfg.Tolerance > 0 && !cmd.Flags().Changed("tol") {
		tol = cfg.Tolerance
	}
	if cfg.MaxIterations > 0 && !cmd.Flags().Changed("max-iter") {
		maxIter = cfg.MaxIterations
	}
}

// seedComponents builds a deterministic starting point: evenly spaced
// data rows as means, the global ML covariance for every cluster and
// uniform mixing weights.
func seedComponents(x *mat.Dense, k int) []gmm.Component {
	n, d := x.Dims()
	if k < 1 {
		return nil
	}
	cov := linalg.Covariance(x)
	init := make([]gmm.Component, k)
	for j := 0; j < k; j++ {
		mean := make([]float64, d)
		copy(mean, x.RawRowView(j*n/k))
		c := mat.NewSymDense(d, nil)
		c.CopySym(cov)
		init[j] = gmm.Component{Mean: mean, Covariance: c, Weight: 1 / float64(k)}
	}
	return init
}

// gmmResult is the JSON export shape.
type gmmResult struct {
	Means         [][]float64   `json:"means"`
	Covariances   [][][]float64 `json:"covariances"`
	Weights       []float64     `json:"weights"`
	Assignments   []int         `json:"assignments"`
	LogLikelihood float64       `json:"log_likelihood"`
	Converged     bool          `json:"converged"`
	Iterations    int           `json:"iterations"`
}

func writeGMMResult(fn string, res *gmm.Result) error {
	out := gmmResult{
		Means:         res.Means,
		Covariances:   make([][][]float64, len(res.Covariances)),
		Weights:       res.Weights,
		Assignments:   res.Assignments,
		LogLikelihood: res.LogLikelihood,
		Converged:     res.Converged,
		Iterations:    res.Iterations,
	}
	for k, cov := range res.Covariances {
		d, _ := cov.Dims()
		rows := make([][]float64, d)
		for i := 0; i < d; i++ {
			rows[i] = make([]float64, d)
			for j := 0; j < d; j++ {
				rows[i][j] = cov.At(i, j)
			}
		}
		out.Covariances[k] = rows
	}
	return emfit.WriteJSONFile(fn, out)
}
